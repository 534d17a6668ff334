package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Ledger is a handle to one persisted ledger file. A missing, corrupt, or
// unreadable file reads as empty history; only writes can fail.
type Ledger struct {
	Path string
}

func New(path string) Ledger {
	return Ledger{Path: path}
}

// load reads and normalizes the store, failing open to an empty history.
// A legacy-shaped store is upgraded in place before first use.
func (l Ledger) load() store {
	raw, err := os.ReadFile(l.Path)
	if err != nil {
		return store{AuditLog: []RunRecord{}}
	}

	normalized, migrated, err := upgrade(raw)
	if err != nil {
		return store{AuditLog: []RunRecord{}}
	}

	if migrated {
		// Best effort: if this write fails the next successful write
		// persists the upgraded shape anyway.
		_ = l.save(normalized)
	}

	return normalized
}

func (l Ledger) save(s store) error {
	if s.AuditLog == nil {
		s.AuditLog = []RunRecord{}
	}
	return writeJSON(l.Path, s)
}

// LastAPIHash returns the catalog-listing signature observed by the most
// recent run, or "" when there is none.
func (l Ledger) LastAPIHash() string {
	s := l.load()
	for i := len(s.AuditLog) - 1; i >= 0; i-- {
		if s.AuditLog[i].APIHash != "" {
			return s.AuditLog[i].APIHash
		}
	}
	return ""
}

// LastFullVerification returns the completion time of the most recent run
// that verified the whole catalog with full signatures. The second return
// value is false when no such run exists or its timestamp cannot be parsed.
func (l Ledger) LastFullVerification() (time.Time, bool) {
	s := l.load()
	for i := len(s.AuditLog) - 1; i >= 0; i-- {
		rec := s.AuditLog[i]
		if !rec.isFullVerification() {
			continue
		}
		return rec.completedAt()
	}
	return time.Time{}, false
}

// History returns the most recent n audit entries, oldest first. n <= 0
// returns the full history.
func (l Ledger) History(n int) []RunRecord {
	s := l.load()
	if n <= 0 || n >= len(s.AuditLog) {
		return s.AuditLog
	}
	return s.AuditLog[len(s.AuditLog)-n:]
}

// ResumeState returns the live checkpoint, or nil when there is none.
func (l Ledger) ResumeState() *Checkpoint {
	s := l.load()
	return s.ResumeState
}

// Append adds one audit entry.
func (l Ledger) Append(rec RunRecord) error {
	s := l.load()
	s.AuditLog = append(s.AuditLog, rec)
	if err := l.save(s); err != nil {
		return fmt.Errorf("append run record: %w", err)
	}
	return nil
}

// SaveCheckpoint overwrites the live checkpoint.
func (l Ledger) SaveCheckpoint(cp Checkpoint) error {
	s := l.load()
	s.ResumeState = &cp
	if err := l.save(s); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// ClearCheckpoint removes the live checkpoint, if any.
func (l Ledger) ClearCheckpoint() error {
	s := l.load()
	if s.ResumeState == nil {
		return nil
	}
	s.ResumeState = nil
	if err := l.save(s); err != nil {
		return fmt.Errorf("clear checkpoint: %w", err)
	}
	return nil
}

func writeJSON(path string, value any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}

	encoded, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	tp := path + ".tmp"
	if err := os.WriteFile(tp, encoded, 0o644); err != nil {
		_ = os.Remove(tp)
		return fmt.Errorf("write %s: %w", tp, err)
	}
	if err := os.Rename(tp, path); err != nil {
		_ = os.Remove(tp)
		return fmt.Errorf("replace %s: %w", path, err)
	}

	return nil
}
