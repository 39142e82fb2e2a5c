package approval

import (
	"sort"
	"strings"
	"time"

	"github.com/erp/stockflow/internal/domain/shared"
	"github.com/google/uuid"
)

// Status of one approval level on one transfer
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
	StatusSkipped  Status = "SKIPPED"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusSkipped:
		return true
	}
	return false
}

// Record is the state of one rule level for one transfer. The approver and
// mode are copied from the rule when the record is created, so later rule
// edits do not change gates already in force.
type Record struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	TransferID     uuid.UUID
	RuleID         uuid.UUID
	Mode           Mode
	Level          int
	LevelName      string
	Approver       Approver
	Status         Status
	ActedByActorID *uuid.UUID
	ActedAt        *time.Time
	Notes          string
	CreatedAt      time.Time
}

// NewRecords materializes one PENDING record per rule level
func NewRecords(rule *Rule, transferID uuid.UUID) []*Record {
	now := time.Now().UTC()
	records := make([]*Record, 0, len(rule.Levels))
	for _, l := range rule.Levels {
		records = append(records, &Record{
			ID:         uuid.New(),
			TenantID:   rule.TenantID,
			TransferID: transferID,
			RuleID:     rule.ID,
			Mode:       rule.Mode,
			Level:      l.Level,
			LevelName:  l.Name,
			Approver:   l.Approver,
			Status:     StatusPending,
			CreatedAt:  now,
		})
	}
	return records
}

// IsEligible reports whether rec's level may act now given its siblings
func IsEligible(rec *Record, records []*Record) bool {
	switch rec.Mode {
	case ModeParallel:
		return true
	case ModeHybrid:
		if rec.Level == 1 {
			return true
		}
		return levelStatus(records, 1) == StatusApproved
	default:
		for _, other := range records {
			if other.Level < rec.Level && other.Status != StatusApproved {
				return false
			}
		}
		return true
	}
}

func levelStatus(records []*Record, level int) Status {
	for _, r := range records {
		if r.Level == level {
			return r.Status
		}
	}
	return ""
}

// CanAct is true iff rec is PENDING, actor is its approver and the level is eligible
func CanAct(rec *Record, records []*Record, actor shared.Actor) bool {
	return checkAct(rec, records, actor) == nil
}

func checkAct(rec *Record, records []*Record, actor shared.Actor) error {
	if rec.Status != StatusPending {
		return ErrNotPending
	}
	if rec.Approver == nil || !rec.Approver.Allows(actor) {
		return ErrNotApprover
	}
	if !IsEligible(rec, records) {
		return ErrLevelNotEligible
	}
	return nil
}

// Decide applies an approve/reject decision in memory. The store must
// persist it with a conditional update from PENDING.
func Decide(rec *Record, records []*Record, actor shared.Actor, approve bool, notes string, at time.Time) error {
	if err := checkAct(rec, records, actor); err != nil {
		return err
	}
	if !approve && strings.TrimSpace(notes) == "" {
		return ErrRejectionNotes
	}
	at = at.UTC()
	actorID := actor.ID
	rec.ActedByActorID = &actorID
	rec.ActedAt = &at
	rec.Notes = notes
	rec.Status = StatusApproved
	if !approve {
		rec.Status = StatusRejected
	}
	return nil
}

// SkipPending marks every still-pending record SKIPPED and returns them
func SkipPending(records []*Record) []*Record {
	var skipped []*Record
	for _, r := range records {
		if r.Status == StatusPending {
			r.Status = StatusSkipped
			skipped = append(skipped, r)
		}
	}
	return skipped
}

// Satisfied is true when no level is pending or rejected
func Satisfied(records []*Record) bool {
	for _, r := range records {
		if r.Status == StatusPending || r.Status == StatusRejected {
			return false
		}
	}
	return true
}

// FindLevel returns the record of one level
func FindLevel(records []*Record, level int) (*Record, bool) {
	for _, r := range records {
		if r.Level == level {
			return r, true
		}
	}
	return nil, false
}

// Progress summarizes the approval gate of a transfer
type Progress struct {
	Mode      Mode
	Total     int
	Approved  int
	Pending   int
	Rejected  int
	Skipped   int
	Satisfied bool
	// EligibleLevels lists pending levels that may act now
	EligibleLevels []int
	Records        []*Record
}

// Summarize builds a progress view over records
func Summarize(records []*Record) Progress {
	sorted := make([]*Record, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Level < sorted[j].Level })

	p := Progress{Total: len(sorted), Records: sorted, Satisfied: Satisfied(sorted), EligibleLevels: []int{}}
	for _, r := range sorted {
		p.Mode = r.Mode
		switch r.Status {
		case StatusApproved:
			p.Approved++
		case StatusRejected:
			p.Rejected++
		case StatusSkipped:
			p.Skipped++
		case StatusPending:
			p.Pending++
			if IsEligible(r, sorted) {
				p.EligibleLevels = append(p.EligibleLevels, r.Level)
			}
		}
	}
	return p
}
