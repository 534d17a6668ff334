package ledger

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// RunRecord is one audit entry per orchestrator run. Field names match the
// on-disk history written by earlier versions of this tool.
type RunRecord struct {
	TriggeredTime  string   `json:"triggered_time"`
	CompletedTime  string   `json:"completed_time"`
	TimeTaken      string   `json:"time_taken"`
	CardsProcessed int      `json:"cards_processed"`
	CardsFound     int      `json:"cards_found"`
	CardsUpdated   int      `json:"cards_updated"`
	UpdatedCards   []string `json:"updated_cards"`
	APIHash        string   `json:"api_hash,omitempty"`
	APIUnchanged   bool     `json:"api_unchanged"`
	FullHashChecks int      `json:"full_hash_checks"`
}

func NewRunRecord(start, end time.Time, processed, found int, updated []string, apiHash string, apiUnchanged bool, fullChecks int) RunRecord {
	if updated == nil {
		updated = []string{}
	}
	return RunRecord{
		TriggeredTime:  start.Format(time.RFC3339),
		CompletedTime:  end.Format(time.RFC3339),
		TimeTaken:      end.Sub(start).String(),
		CardsProcessed: processed,
		CardsFound:     found,
		CardsUpdated:   len(updated),
		UpdatedCards:   updated,
		APIHash:        apiHash,
		APIUnchanged:   apiUnchanged,
		FullHashChecks: fullChecks,
	}
}

// completedAt parses the record's completion timestamp.
func (r RunRecord) completedAt() (time.Time, bool) {
	t, err := time.Parse(time.RFC3339, r.CompletedTime)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// isFullVerification reports whether this run covered the whole catalog with
// at least one full-signature check. Only such runs advance the
// full-verification clock.
func (r RunRecord) isFullVerification() bool {
	return r.CardsFound > 0 && r.CardsProcessed == r.CardsFound && r.FullHashChecks > 0
}

// Checkpoint marks progress through a partially completed full sync so an
// interrupted run can resume. At most one checkpoint is live at a time.
type Checkpoint struct {
	LastIndex   int    `json:"last_index"`
	APIHash     string `json:"api_hash"`
	TargetCount int    `json:"target_count"`
	FoundCount  int    `json:"found_count"`
	SessionID   string `json:"session_id"`
}

func NewCheckpoint(lastIndex int, apiHash string, target, found int) Checkpoint {
	return Checkpoint{
		LastIndex:   lastIndex,
		APIHash:     apiHash,
		TargetCount: target,
		FoundCount:  found,
		SessionID:   uuid.NewString(),
	}
}

// store is the persisted ledger shape.
type store struct {
	ResumeState *Checkpoint `json:"resume_state"`
	AuditLog    []RunRecord `json:"audit_log"`
}

// upgrade normalizes raw ledger bytes into the current store shape. Legacy
// stores were a bare JSON array of RunRecords; they are wrapped with a null
// resume state. Applying upgrade to an already-current store is a no-op.
func upgrade(raw []byte) (store, bool, error) {
	trimmed := firstNonSpace(raw)
	if trimmed == 0 {
		return store{AuditLog: []RunRecord{}}, false, nil
	}

	if trimmed == '[' {
		var legacy []RunRecord
		if err := json.Unmarshal(raw, &legacy); err != nil {
			return store{}, false, err
		}
		return store{ResumeState: nil, AuditLog: legacy}, true, nil
	}

	var current store
	if err := json.Unmarshal(raw, &current); err != nil {
		return store{}, false, err
	}
	if current.AuditLog == nil {
		current.AuditLog = []RunRecord{}
	}
	return current, false, nil
}

func firstNonSpace(raw []byte) byte {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		}
		return b
	}
	return 0
}
