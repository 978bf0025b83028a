package models

import (
	"time"
)

// Season status constants
const (
	SeasonStatusActive = "active"
	SeasonStatusEnded  = "ended"
)

// Season groups the rounds of one contest year/series.
// Ending a season freezes its ScoreRecords: the scoring engine skips
// ended seasons on every recompute, so later point-schedule edits never
// rewrite historical standings.
type Season struct {
	ID      string     `json:"id" gorm:"primaryKey"`
	Name    string     `json:"name" gorm:"not null"`
	Slug    string     `json:"slug" gorm:"uniqueIndex;not null"`
	Status  string     `json:"status" gorm:"default:'active'"`
	EndedAt *time.Time `json:"ended_at,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	// Relationships
	Rounds       []Round       `json:"rounds,omitempty" gorm:"foreignKey:SeasonID"`
	Participants []Participant `json:"participants,omitempty" gorm:"foreignKey:SeasonID"`
}

// SeasonWinner is derived from the final leaderboard when a season is ended.
// Reopening any round of the season deletes these rows.
type SeasonWinner struct {
	ID            string `json:"id" gorm:"primaryKey"`
	SeasonID      string `json:"season_id" gorm:"not null;index"`
	ParticipantID string `json:"participant_id" gorm:"not null"`
	Place         int    `json:"place"`
	Points        int    `json:"points"`
}

// Participant is one invited player within a season.
type Participant struct {
	ID       string `json:"id" gorm:"primaryKey"`
	SeasonID string `json:"season_id" gorm:"not null;index"`
	Name     string `json:"name" gorm:"not null"`
	Email    string `json:"email" gorm:"not null"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
