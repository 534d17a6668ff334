package runner

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/olimci/kanna/pkg/catalog"
	"github.com/olimci/kanna/pkg/ledger"
	"github.com/olimci/kanna/pkg/mirror"
)

// catalogServer serves a one-card listing plus its three images, honoring
// range requests the way the real image host does.
func catalogServer(t *testing.T) *httptest.Server {
	t.Helper()

	var srv *httptest.Server
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v7/cardinfo.php", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"data": [{
			"id": 1,
			"name": "Blue-Eyes White Dragon",
			"type": "Normal Monster",
			"card_images": [{
				"id": 1,
				"image_url": "%[1]s/images/full.jpg",
				"image_url_small": "%[1]s/images/small.jpg",
				"image_url_cropped": "%[1]s/images/cropped.jpg"
			}]
		}]}`, srv.URL)
	})
	mux.HandleFunc("/images/", func(w http.ResponseWriter, r *http.Request) {
		content := bytes.Repeat([]byte(r.URL.Path), 64)
		http.ServeContent(w, r, "image.jpg", time.Time{}, bytes.NewReader(content))
	})

	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRunEndToEndAcrossThreeRuns(t *testing.T) {
	t.Parallel()

	srv := catalogServer(t)

	m := mirror.Mirror{Root: t.TempDir()}
	client := catalog.NewClient(srv.URL, 7)
	syncer := mirror.NewSyncer(m, client)
	l := ledger.New(m.LedgerPath())

	run := func() Summary {
		t.Helper()
		summary, err := New(client, syncer, l, Options{}).Run(context.Background())
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
		return summary
	}

	// First run: nothing local, no verification history. Full sync,
	// everything downloaded.
	first := run()
	if first.Mode != ModeFullSync || first.APIUnchanged {
		t.Fatalf("first run: mode=%s unchanged=%v", first.Mode, first.APIUnchanged)
	}
	if len(first.UpdatedCards) != 1 || first.UpdatedCards[0] != "Blue-Eyes White Dragon" {
		t.Fatalf("first run updates: %v", first.UpdatedCards)
	}

	if _, err := os.Stat(m.InfoPath(1)); err != nil {
		t.Fatalf("metadata missing after first run: %v", err)
	}
	for _, role := range mirror.Roles() {
		if _, err := os.Stat(m.ImagePath(1, role)); err != nil {
			t.Fatalf("image %s missing after first run: %v", role, err)
		}
	}

	// Second run: the first run downloaded everything without verifying,
	// so full verification is still owed. Everything is intact, so this
	// pass performs the full-signature checks and records them.
	second := run()
	if second.Mode != ModeFullSync {
		t.Fatalf("second run mode = %s, want %s", second.Mode, ModeFullSync)
	}
	if len(second.UpdatedCards) != 0 {
		t.Fatalf("second run should find nothing to update: %v", second.UpdatedCards)
	}
	if second.FullChecks != 3 {
		t.Fatalf("second run full checks = %d, want 3", second.FullChecks)
	}

	// Third run: listing unchanged and full verification is recent, so the
	// cheap sampled path suffices.
	third := run()
	if third.Mode != ModeSampleVerify || !third.APIUnchanged {
		t.Fatalf("third run: mode=%s unchanged=%v", third.Mode, third.APIUnchanged)
	}

	history := l.History(0)
	if len(history) != 3 {
		t.Fatalf("expected 3 audit entries, got %d", len(history))
	}
	if !history[2].APIUnchanged || history[2].FullHashChecks != 3 {
		t.Fatalf("third record: %+v", history[2])
	}
}
