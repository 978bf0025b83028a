package models

import (
	"time"
)

// Prediction is one participant's stored answer for one round. Exactly one
// row exists per (participant, round); resubmission rewrites the child value
// rows atomically instead of appending.
type Prediction struct {
	ID            string `json:"id" gorm:"primaryKey"`
	ParticipantID string `json:"participant_id" gorm:"not null;uniqueIndex:idx_prediction_participant_round"`
	RoundID       string `json:"round_id" gorm:"not null;uniqueIndex:idx_prediction_participant_round"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	// Relationship: ordered value list, Position starts at 1
	Values []PredictionValue `json:"values,omitempty" gorm:"foreignKey:PredictionID"`
}

// PredictionValue is one entry of a prediction's ordered value list. Keyed
// by (prediction_id, position) so ordering and arbitrary cardinality are
// both representable.
type PredictionValue struct {
	ID           string `json:"id" gorm:"primaryKey"`
	PredictionID string `json:"prediction_id" gorm:"not null;uniqueIndex:idx_prediction_value_position"`
	Position     int    `json:"position" gorm:"not null;uniqueIndex:idx_prediction_value_position"`
	Value        string `json:"value" gorm:"not null"`
}
