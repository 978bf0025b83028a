package models

import (
	"time"
)

// Point schedule bounds (inclusive) for every placement value.
const (
	PointValueMin = 0
	PointValueMax = 20
)

// PointSchedule is the single global mapping from placement rank to points.
// Version is bumped on every update so recompute runs are deterministic
// against a given snapshot.
type PointSchedule struct {
	ID      string `json:"id" gorm:"primaryKey"`
	First   int    `json:"first" gorm:"not null;default:6"`
	Second  int    `json:"second" gorm:"not null;default:5"`
	Third   int    `json:"third" gorm:"not null;default:4"`
	Fourth  int    `json:"fourth" gorm:"not null;default:3"`
	Fifth   int    `json:"fifth" gorm:"not null;default:2"`
	Other   int    `json:"other" gorm:"not null;default:1"`
	Version int    `json:"version" gorm:"not null;default:1"`

	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// PointsFor returns the point value for a placement rank. Anything outside
// 1..5 (including 0, "no match") earns the catch-all value.
func (ps *PointSchedule) PointsFor(placement int) int {
	switch placement {
	case 1:
		return ps.First
	case 2:
		return ps.Second
	case 3:
		return ps.Third
	case 4:
		return ps.Fourth
	case 5:
		return ps.Fifth
	default:
		return ps.Other
	}
}

// Valid checks every placement value against the configured bounds.
func (ps *PointSchedule) Valid() bool {
	for _, v := range []int{ps.First, ps.Second, ps.Third, ps.Fourth, ps.Fifth, ps.Other} {
		if v < PointValueMin || v > PointValueMax {
			return false
		}
	}
	return true
}

// ScoreRecord is the derived point award for one (participant, round) pair.
// Owned exclusively by the scoring engine: rewritten from scratch on every
// recompute, never patched incrementally.
type ScoreRecord struct {
	ID              string `json:"id" gorm:"primaryKey"`
	SeasonID        string `json:"season_id" gorm:"not null;index"`
	ParticipantID   string `json:"participant_id" gorm:"not null;uniqueIndex:idx_score_participant_round"`
	RoundID         string `json:"round_id" gorm:"not null;uniqueIndex:idx_score_participant_round"`
	Points          int    `json:"points"`
	ScheduleVersion int    `json:"schedule_version"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
