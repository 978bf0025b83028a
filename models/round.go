package models

import (
	"time"
)

// Round status constants
const (
	RoundStatusDraft     = "draft"
	RoundStatusActive    = "active"
	RoundStatusLocked    = "locked"
	RoundStatusCompleted = "completed"
)

// Round kind constants
const (
	RoundKindSingle   = "single"   // pick one option from the candidate list
	RoundKindMultiple = "multiple" // submit up to MaxPicks free-text entries
)

// Round is one prediction opportunity tied to a sporting event.
// LockTime is always stored in UTC; Timezone is the IANA zone name used
// only to render the lock time in participant-facing messages.
type Round struct {
	ID          string     `json:"id" gorm:"primaryKey"`
	SeasonID    string     `json:"season_id" gorm:"not null;index"`
	Name        string     `json:"name" gorm:"not null"`
	Kind        string     `json:"kind" gorm:"not null;default:'single'"`
	MaxPicks    int        `json:"max_picks" gorm:"default:1"`
	LockTime    time.Time  `json:"lock_time" gorm:"not null"`
	Timezone    string     `json:"timezone" gorm:"not null;default:'UTC'"`
	Status      string     `json:"status" gorm:"default:'draft'"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	// Relationships
	Candidates []RoundCandidate `json:"candidates,omitempty" gorm:"foreignKey:RoundID"`
	Results    []RoundResult    `json:"results,omitempty" gorm:"foreignKey:RoundID"`
}

// IsLocked reports whether the round no longer accepts picks. It is the
// single source of truth for lock enforcement: an explicit lock/complete
// status and an elapsed lock time are deliberately indistinguishable here.
// The comparison is on absolute instants; Timezone plays no part in it.
func (r *Round) IsLocked(now time.Time) bool {
	if r.Status == RoundStatusLocked || r.Status == RoundStatusCompleted {
		return true
	}
	return now.After(r.LockTime)
}

// LockTimeLocal returns the lock time in the round's declared timezone for
// user-facing messaging. Falls back to UTC if the zone name fails to load.
func (r *Round) LockTimeLocal() time.Time {
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return r.LockTime.UTC()
	}
	return r.LockTime.In(loc)
}

// RoundCandidate is one entry of a single-kind round's canonical option list.
// Submitted picks are matched against Name case-sensitively.
type RoundCandidate struct {
	ID        string `json:"id" gorm:"primaryKey"`
	RoundID   string `json:"round_id" gorm:"not null;index"`
	Name      string `json:"name" gorm:"not null"`
	SortOrder int    `json:"sort_order" gorm:"column:sort_order;default:0"`
}

// RoundResult records one placed outcome of a completed round. Several rows
// may share a Placement (ties).
type RoundResult struct {
	ID        string `json:"id" gorm:"primaryKey"`
	RoundID   string `json:"round_id" gorm:"not null;index"`
	Placement int    `json:"placement" gorm:"not null"`
	Value     string `json:"value" gorm:"not null"`
}
