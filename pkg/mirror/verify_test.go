package mirror

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/olimci/kanna/pkg/digest"
)

// fakeFetcher serves canned bodies keyed by url.
type fakeFetcher struct {
	mu sync.Mutex

	content     map[string][]byte
	rangeOK     bool
	rangeErr    error
	fetchErrs   map[string]error
	fetchDelay  time.Duration
	rangeCalls  int
	fetchCalls  int
	fetchedURLs []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		content:   make(map[string][]byte),
		fetchErrs: make(map[string]error),
		rangeOK:   true,
	}
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	f.fetchCalls++
	f.fetchedURLs = append(f.fetchedURLs, url)
	err := f.fetchErrs[url]
	body, ok := f.content[url]
	delay := f.fetchDelay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("no content for %s", url)
	}
	return append([]byte(nil), body...), nil
}

func (f *fakeFetcher) FetchRange(_ context.Context, url string, length int) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.rangeCalls++

	if f.rangeErr != nil {
		return nil, false, f.rangeErr
	}
	if !f.rangeOK {
		return nil, false, nil
	}
	body, ok := f.content[url]
	if !ok {
		return nil, false, fmt.Errorf("no content for %s", url)
	}
	if len(body) > length {
		body = body[:length]
	}
	return append([]byte(nil), body...), true, nil
}

func writeArtifact(t *testing.T, dir string, content []byte) string {
	t.Helper()

	path := filepath.Join(dir, "artifact.jpg")
	if _, err := digest.WriteFileWithSidecar(path, content); err != nil {
		t.Fatalf("write artifact pair: %v", err)
	}
	return path
}

func TestCheckMissingLocalFileMustFetchWithoutProbing(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	v := NewVerifier(fetcher)

	d := v.Check(context.Background(), "https://img.example/a.jpg", filepath.Join(t.TempDir(), "absent.jpg"), false)
	if !d.MustFetch || d.FullVerified {
		t.Fatalf("unexpected decision %+v", d)
	}
	if fetcher.rangeCalls != 0 {
		t.Fatalf("missing local file should not trigger a range probe")
	}
}

func TestCheckMissingSidecarMustFetch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeArtifact(t, dir, []byte("content"))
	if err := os.Remove(digest.SidecarPath(path)); err != nil {
		t.Fatalf("remove sidecar: %v", err)
	}

	d := NewVerifier(newFakeFetcher()).Check(context.Background(), "https://img.example/a.jpg", path, false)
	if !d.MustFetch || d.FullVerified {
		t.Fatalf("unexpected decision %+v", d)
	}
}

func TestCheckForcedFullVerificationUnchanged(t *testing.T) {
	t.Parallel()

	path := writeArtifact(t, t.TempDir(), []byte("stable content"))

	fetcher := newFakeFetcher()
	fetcher.content["https://img.example/a.jpg"] = []byte("stable content")
	v := NewVerifier(fetcher)

	d := v.Check(context.Background(), "https://img.example/a.jpg", path, true)
	if d.MustFetch || !d.FullVerified {
		t.Fatalf("intact artifact under forced check: %+v", d)
	}
	if fetcher.rangeCalls != 0 {
		t.Fatalf("forced verification must not use the prefix probe")
	}
	if fetcher.fetchCalls != 1 {
		t.Fatalf("forced verification should fetch the full body once, got %d", fetcher.fetchCalls)
	}
}

func TestCheckForcedFullVerificationCatchesTailDivergence(t *testing.T) {
	t.Parallel()

	// Same first 8 KiB, different tail: invisible to the fast path,
	// caught by the forced full-signature comparison.
	head := make([]byte, digest.PrefixLength)
	local := append(append([]byte(nil), head...), []byte("old tail")...)
	remote := append(append([]byte(nil), head...), []byte("new tail")...)

	path := writeArtifact(t, t.TempDir(), local)

	fetcher := newFakeFetcher()
	fetcher.content["https://img.example/a.jpg"] = remote

	d := NewVerifier(fetcher).Check(context.Background(), "https://img.example/a.jpg", path, true)
	if !d.MustFetch || !d.FullVerified {
		t.Fatalf("tail divergence under forced check: %+v", d)
	}
}

func TestCheckForcedFullVerificationFetchErrorFailsOpen(t *testing.T) {
	t.Parallel()

	path := writeArtifact(t, t.TempDir(), []byte("content"))

	fetcher := newFakeFetcher()
	fetcher.fetchErrs["https://img.example/a.jpg"] = errors.New("connection reset")

	d := NewVerifier(fetcher).Check(context.Background(), "https://img.example/a.jpg", path, true)
	if !d.MustFetch || d.FullVerified {
		t.Fatalf("fetch failure under forced check should fail open: %+v", d)
	}
}

func TestCheckPrefixMatchIgnoresTailDifference(t *testing.T) {
	t.Parallel()

	// The fast path only covers the first 8 KiB. Content that diverges
	// past the prefix is reported unchanged; the periodic forced full
	// verification is the designed mitigation.
	head := make([]byte, digest.PrefixLength)
	for i := range head {
		head[i] = byte(i)
	}
	local := append(append([]byte(nil), head...), []byte("old tail")...)
	remote := append(append([]byte(nil), head...), []byte("new tail")...)

	path := writeArtifact(t, t.TempDir(), local)

	fetcher := newFakeFetcher()
	fetcher.content["https://img.example/a.jpg"] = remote

	d := NewVerifier(fetcher).Check(context.Background(), "https://img.example/a.jpg", path, false)
	if d.MustFetch || d.FullVerified {
		t.Fatalf("prefix match should report unchanged, got %+v", d)
	}
}

func TestCheckPrefixMismatchMustFetch(t *testing.T) {
	t.Parallel()

	path := writeArtifact(t, t.TempDir(), []byte("old bytes"))

	fetcher := newFakeFetcher()
	fetcher.content["https://img.example/a.jpg"] = []byte("new bytes")

	d := NewVerifier(fetcher).Check(context.Background(), "https://img.example/a.jpg", path, false)
	if !d.MustFetch || d.FullVerified {
		t.Fatalf("unexpected decision %+v", d)
	}
}

func TestCheckRangeUnsupportedFailsOpen(t *testing.T) {
	t.Parallel()

	path := writeArtifact(t, t.TempDir(), []byte("content"))

	fetcher := newFakeFetcher()
	fetcher.rangeOK = false

	d := NewVerifier(fetcher).Check(context.Background(), "https://img.example/a.jpg", path, false)
	if !d.MustFetch || d.FullVerified {
		t.Fatalf("unsupported range should force a fetch, got %+v", d)
	}
}

func TestCheckRangeErrorFailsOpen(t *testing.T) {
	t.Parallel()

	path := writeArtifact(t, t.TempDir(), []byte("content"))

	fetcher := newFakeFetcher()
	fetcher.rangeErr = errors.New("connection reset")

	d := NewVerifier(fetcher).Check(context.Background(), "https://img.example/a.jpg", path, false)
	if !d.MustFetch || d.FullVerified {
		t.Fatalf("range failure should force a fetch, got %+v", d)
	}
}
