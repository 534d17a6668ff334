package digest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// SidecarSuffix is appended to an artifact path to name its signature file.
const SidecarSuffix = ".hash"

func SidecarPath(path string) string {
	return path + SidecarSuffix
}

// ReadSidecar loads the signature stored next to the artifact at path.
func ReadSidecar(path string) (Digest, error) {
	raw, err := os.ReadFile(SidecarPath(path))
	if err != nil {
		return Digest{}, err
	}
	d, err := Parse(string(raw))
	if err != nil {
		return Digest{}, fmt.Errorf("parse sidecar for %s: %w", path, err)
	}
	return d, nil
}

// WriteFileWithSidecar persists content at path together with its signature
// sidecar. Both files are staged as temporaries and renamed into place as the
// final step, so an observer never sees a completed write with a missing or
// stale sidecar. On failure any staged temporaries are removed.
func WriteFileWithSidecar(path string, content []byte) (Digest, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Digest{}, fmt.Errorf("create directory for %s: %w", path, err)
	}

	d := ForBytes(content)

	tmpContent := path + ".tmp"
	tmpSidecar := SidecarPath(path) + ".tmp"

	cleanup := func() {
		_ = os.Remove(tmpContent)
		_ = os.Remove(tmpSidecar)
	}

	if err := os.WriteFile(tmpContent, content, 0o644); err != nil {
		cleanup()
		return Digest{}, fmt.Errorf("write %s: %w", tmpContent, err)
	}
	if err := os.WriteFile(tmpSidecar, []byte(d.String()), 0o644); err != nil {
		cleanup()
		return Digest{}, fmt.Errorf("write %s: %w", tmpSidecar, err)
	}

	// Content lands first. A crash between the renames leaves new content
	// beside the old sidecar, which the next verification flags as changed.
	if err := os.Rename(tmpContent, path); err != nil {
		cleanup()
		return Digest{}, fmt.Errorf("replace %s: %w", path, err)
	}
	if err := os.Rename(tmpSidecar, SidecarPath(path)); err != nil {
		cleanup()
		return Digest{}, fmt.Errorf("replace %s: %w", SidecarPath(path), err)
	}

	return d, nil
}

// VerifySidecar recomputes the full signature of path and compares it to the
// stored sidecar. Returns false when either file is missing.
func VerifySidecar(path string) (bool, error) {
	stored, err := ReadSidecar(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}

	actual, err := ForFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}

	return actual.Equal(stored), nil
}
