package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync/atomic"

	"github.com/olimci/kanna/pkg/catalog"
	"github.com/olimci/kanna/pkg/digest"
	"golang.org/x/sync/errgroup"
)

// Result reports the outcome of synchronizing one entity.
type Result struct {
	Name    string
	Updated bool
	// FullChecks counts full-signature verifications performed for this
	// entity. Valid even when SyncEntity also returns an error.
	FullChecks int
}

// Syncer reconciles one catalog entity's metadata and images against the
// local mirror.
type Syncer struct {
	mirror   Mirror
	fetcher  Fetcher
	verifier *Verifier
}

func NewSyncer(m Mirror, fetcher Fetcher) *Syncer {
	return &Syncer{
		mirror:   m,
		fetcher:  fetcher,
		verifier: NewVerifier(fetcher),
	}
}

// SyncEntity brings the entity's metadata records and image sets up to date.
// Metadata and images proceed concurrently; forceFull is threaded into every
// verifier check. A failed artifact does not stop the entity's remaining
// artifacts, but is reported in the returned error.
func (s *Syncer) SyncEntity(ctx context.Context, ent *catalog.Entity, forceFull bool) (Result, error) {
	res := Result{Name: ent.Name}

	var (
		infoChanged   bool
		infoErr       error
		imagesChanged bool
		fullChecks    int64
		imagesErr     error
	)

	var g errgroup.Group
	g.Go(func() error {
		infoChanged, infoErr = s.syncInfo(ent)
		return nil
	})
	g.Go(func() error {
		imagesChanged, imagesErr = s.syncImages(ctx, ent, forceFull, &fullChecks)
		return nil
	})
	_ = g.Wait()

	res.Updated = infoChanged || imagesChanged
	res.FullChecks = int(fullChecks)

	if err := errors.Join(infoErr, imagesErr); err != nil {
		return res, fmt.Errorf("sync %q: %w", ent.Name, err)
	}
	return res, nil
}

// syncInfo materializes the metadata payload under every identity the entity
// is published as, writing only when the stored record differs semantically.
func (s *Syncer) syncInfo(ent *catalog.Entity) (bool, error) {
	var changed bool
	var errs []error

	for _, identity := range ent.Identities() {
		payload, err := ent.PayloadFor(identity)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		wrote, err := s.writeInfoIfChanged(s.mirror.InfoPath(identity), payload)
		if err != nil {
			errs = append(errs, fmt.Errorf("metadata for id %d: %w", identity, err))
			continue
		}
		if wrote {
			changed = true
		}
	}

	return changed, errors.Join(errs...)
}

func (s *Syncer) writeInfoIfChanged(path string, payload map[string]any) (bool, error) {
	desired, err := json.MarshalIndent(payload, "", "    ")
	if err != nil {
		return false, fmt.Errorf("encode metadata: %w", err)
	}

	existing, err := os.ReadFile(path)
	if err == nil && jsonEqual(existing, desired) {
		return false, nil
	}
	// An unreadable or unparseable record is treated as absent.

	if err := writeFileAtomic(path, desired); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Syncer) syncImages(ctx context.Context, ent *catalog.Entity, forceFull bool, fullChecks *int64) (bool, error) {
	type artifact struct {
		identity int64
		role     Role
		url      string
		path     string
	}

	// Resolve every download before launching any, so a bad descriptor
	// never leaves goroutines running behind an early return.
	var artifacts []artifact
	for _, identity := range ent.Identities() {
		set, err := ent.ImageSetFor(identity)
		if err != nil {
			return false, err
		}
		for _, role := range Roles() {
			url := role.URL(set)
			if url == "" {
				continue
			}
			artifacts = append(artifacts, artifact{
				identity: identity,
				role:     role,
				url:      url,
				path:     s.mirror.ImagePath(identity, role),
			})
		}
	}

	var changed atomic.Bool
	var g errgroup.Group
	for _, a := range artifacts {
		g.Go(func() error {
			updated, err := s.syncImage(ctx, a.url, a.path, forceFull, fullChecks)
			if err != nil {
				return fmt.Errorf("image %s for id %d: %w", a.role, a.identity, err)
			}
			if updated {
				changed.Store(true)
			}
			return nil
		})
	}

	// The flag must not be read until every download has finished.
	err := g.Wait()
	return changed.Load(), err
}

func (s *Syncer) syncImage(ctx context.Context, url, path string, forceFull bool, fullChecks *int64) (bool, error) {
	decision := s.verifier.Check(ctx, url, path, forceFull)
	if decision.FullVerified {
		atomic.AddInt64(fullChecks, 1)
	}
	if !decision.MustFetch {
		return false, nil
	}

	content, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return false, err
	}

	if _, err := digest.WriteFileWithSidecar(path, content); err != nil {
		return false, err
	}
	return true, nil
}

// jsonEqual compares two JSON documents structurally.
func jsonEqual(a, b []byte) bool {
	var left, right any
	if err := json.Unmarshal(a, &left); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &right); err != nil {
		return false
	}
	return reflect.DeepEqual(left, right)
}

func writeFileAtomic(path string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}

	tp := path + ".tmp"
	if err := os.WriteFile(tp, content, 0o644); err != nil {
		_ = os.Remove(tp)
		return fmt.Errorf("write %s: %w", tp, err)
	}
	if err := os.Rename(tp, path); err != nil {
		_ = os.Remove(tp)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
