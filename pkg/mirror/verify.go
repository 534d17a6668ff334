package mirror

import (
	"context"
	"os"

	"github.com/olimci/kanna/pkg/digest"
)

// Fetcher is the remote side the verifier and synchronizer talk to.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
	FetchRange(ctx context.Context, url string, length int) ([]byte, bool, error)
}

// Decision is the verifier's verdict for one artifact.
type Decision struct {
	// MustFetch reports that local content is absent, stale, or could not
	// be cheaply confirmed as current.
	MustFetch bool
	// FullVerified reports that the verdict rests on a full-content
	// signature comparison rather than the prefix proxy. The ledger uses
	// this to schedule future full-verification passes.
	FullVerified bool
}

// Verifier decides whether a remote artifact differs from its local copy at
// minimum network cost. It is purely read-side.
type Verifier struct {
	fetcher Fetcher
}

func NewVerifier(fetcher Fetcher) *Verifier {
	return &Verifier{fetcher: fetcher}
}

// Check compares the remote content at url against the local artifact at
// path and its signature sidecar. Every failure mode folds into MustFetch:
// the verifier fails open toward re-downloading, never toward skipping.
func (v *Verifier) Check(ctx context.Context, url, path string, forceFull bool) Decision {
	if _, err := os.Stat(path); err != nil {
		return Decision{MustFetch: true}
	}

	stored, err := digest.ReadSidecar(path)
	if err != nil || stored.IsZero() {
		return Decision{MustFetch: true}
	}

	// Forced verification pays for the whole remote body. Only a full
	// remote signature catches divergence past the prefix boundary.
	if forceFull {
		body, err := v.fetcher.Fetch(ctx, url)
		if err != nil {
			return Decision{MustFetch: true}
		}
		if !digest.ForBytes(body).Equal(stored) {
			return Decision{MustFetch: true, FullVerified: true}
		}
		return Decision{MustFetch: false, FullVerified: true}
	}

	// Fast path: probe the first 8 KiB of the remote resource. Matching
	// prefixes are taken as unchanged; divergence past the prefix goes
	// undetected until the next forced full verification.
	prefix, ok, err := v.fetcher.FetchRange(ctx, url, digest.PrefixLength)
	if err != nil || !ok {
		return Decision{MustFetch: true}
	}

	local, err := digest.ForFilePrefix(path, len(prefix))
	if err != nil {
		return Decision{MustFetch: true}
	}

	if !digest.ForBytes(prefix).Equal(local) {
		return Decision{MustFetch: true}
	}
	return Decision{MustFetch: false}
}
