package services

import (
	"errors"
	"fmt"
	"log"

	"github.com/andrewbusbee/go-make-your-picks-sub003/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ScoringService owns every ScoreRecord. Records are derived: rewritten from
// scratch whenever a round outcome or the point schedule changes, never
// patched incrementally.
type ScoringService struct {
	DB *gorm.DB
}

func NewScoringService(db *gorm.DB) *ScoringService {
	return &ScoringService{DB: db}
}

// ScorePrediction awards points for one stored pick against a round's placed
// outcomes. The best (lowest) placement whose value matches wins; no match
// earns the schedule's catch-all value. Matching is case-sensitive, same as
// candidate validation on the write path.
func ScorePrediction(pick string, results []models.RoundResult, schedule models.PointSchedule) int {
	best := 0
	for _, r := range results {
		if r.Value != pick {
			continue
		}
		if best == 0 || r.Placement < best {
			best = r.Placement
		}
	}
	return schedule.PointsFor(best)
}

// RecomputeSeason rebuilds every ScoreRecord of one season inside a single
// transaction so a reader never observes a half-updated leaderboard. Ended
// seasons are skipped entirely; their records stay frozen at end-time.
func (s *ScoringService) RecomputeSeason(seasonID string) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		return s.recomputeSeasonTx(tx, seasonID)
	})
}

// RecomputeAllSeasons recomputes every non-ended season, each in its own
// transaction. Triggered by point-schedule updates.
func (s *ScoringService) RecomputeAllSeasons() error {
	var seasons []models.Season
	if err := s.DB.Where("status = ?", models.SeasonStatusActive).Find(&seasons).Error; err != nil {
		return fmt.Errorf("failed to list seasons for recompute: %w", err)
	}
	for i := range seasons {
		if err := s.RecomputeSeason(seasons[i].ID); err != nil {
			return fmt.Errorf("recompute failed for season %s: %w", seasons[i].ID, err)
		}
	}
	return nil
}

type pickKey struct {
	participantID string
	roundID       string
}

// recomputeSeasonTx is the transactional body of RecomputeSeason, shared
// with round completion so scores are never observably stale. Total and
// idempotent: delete everything, re-derive everything.
func (s *ScoringService) recomputeSeasonTx(tx *gorm.DB, seasonID string) error {
	var season models.Season
	if err := tx.First(&season, "id = ?", seasonID).Error; err != nil {
		return fmt.Errorf("season %s not found: %w", seasonID, err)
	}
	if season.Status == models.SeasonStatusEnded {
		// Historical standings survive later point-value edits.
		return nil
	}

	schedule, err := s.scheduleTx(tx)
	if err != nil {
		return err
	}

	var participants []models.Participant
	if err := tx.Where("season_id = ?", seasonID).Find(&participants).Error; err != nil {
		return err
	}

	var rounds []models.Round
	if err := tx.Where("season_id = ? AND status = ?", seasonID, models.RoundStatusCompleted).
		Preload("Results").
		Find(&rounds).Error; err != nil {
		return err
	}

	roundIDs := make([]string, 0, len(rounds))
	for i := range rounds {
		roundIDs = append(roundIDs, rounds[i].ID)
	}

	// Only the first stored value is scored, even for multiple-kind rounds.
	firstPick := map[pickKey]string{}
	if len(roundIDs) > 0 {
		var predictions []models.Prediction
		if err := tx.Where("round_id IN ?", roundIDs).
			Preload("Values", func(db *gorm.DB) *gorm.DB {
				return db.Order("position ASC")
			}).
			Find(&predictions).Error; err != nil {
			return err
		}
		for i := range predictions {
			if len(predictions[i].Values) == 0 {
				continue
			}
			firstPick[pickKey{predictions[i].ParticipantID, predictions[i].RoundID}] = predictions[i].Values[0].Value
		}
	}

	if err := tx.Where("season_id = ?", seasonID).Delete(&models.ScoreRecord{}).Error; err != nil {
		return err
	}

	var records []models.ScoreRecord
	for ri := range rounds {
		for pi := range participants {
			points := 0
			// No prediction earns nothing; the catch-all value is only
			// for a submitted pick that finished 6th or worse.
			if pick, ok := firstPick[pickKey{participants[pi].ID, rounds[ri].ID}]; ok {
				points = ScorePrediction(pick, rounds[ri].Results, schedule)
			}
			records = append(records, models.ScoreRecord{
				ID:              uuid.NewString(),
				SeasonID:        seasonID,
				ParticipantID:   participants[pi].ID,
				RoundID:         rounds[ri].ID,
				Points:          points,
				ScheduleVersion: schedule.Version,
			})
		}
	}
	if len(records) > 0 {
		if err := tx.Create(&records).Error; err != nil {
			return err
		}
	}

	return nil
}

// scheduleTx loads the global point schedule, seeding the default on first
// use so scoring never runs without one.
func (s *ScoringService) scheduleTx(tx *gorm.DB) (models.PointSchedule, error) {
	var schedule models.PointSchedule
	err := tx.First(&schedule).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		schedule = models.PointSchedule{
			ID:      uuid.NewString(),
			First:   6,
			Second:  5,
			Third:   4,
			Fourth:  3,
			Fifth:   2,
			Other:   1,
			Version: 1,
		}
		if err := tx.Create(&schedule).Error; err != nil {
			return schedule, fmt.Errorf("failed to seed point schedule: %w", err)
		}
		return schedule, nil
	}
	if err != nil {
		return schedule, err
	}
	return schedule, nil
}

// GetPointSchedule handles GET /admin/point-schedule
func (s *ScoringService) GetPointSchedule(c *fiber.Ctx) error {
	schedule, err := s.scheduleTx(s.DB)
	if err != nil {
		log.Printf("ERROR loading point schedule: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to load point schedule"})
	}
	return c.JSON(schedule)
}

// UpdatePointSchedule handles PUT /admin/point-schedule. Bumps the schedule
// version and recomputes every non-ended season.
func (s *ScoringService) UpdatePointSchedule(c *fiber.Ctx) error {
	type Req struct {
		First  int `json:"first"`
		Second int `json:"second"`
		Third  int `json:"third"`
		Fourth int `json:"fourth"`
		Fifth  int `json:"fifth"`
		Other  int `json:"other"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON"})
	}

	candidate := models.PointSchedule{
		First:  req.First,
		Second: req.Second,
		Third:  req.Third,
		Fourth: req.Fourth,
		Fifth:  req.Fifth,
		Other:  req.Other,
	}
	if !candidate.Valid() {
		return c.Status(400).JSON(fiber.Map{
			"error": fmt.Sprintf("point values must be between %d and %d", models.PointValueMin, models.PointValueMax),
		})
	}

	var schedule models.PointSchedule
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		current, err := s.scheduleTx(tx)
		if err != nil {
			return err
		}
		current.First = candidate.First
		current.Second = candidate.Second
		current.Third = candidate.Third
		current.Fourth = candidate.Fourth
		current.Fifth = candidate.Fifth
		current.Other = candidate.Other
		current.Version++
		if err := tx.Save(&current).Error; err != nil {
			return err
		}
		schedule = current
		return nil
	})
	if err != nil {
		log.Printf("ERROR updating point schedule: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to update point schedule"})
	}

	if err := s.RecomputeAllSeasons(); err != nil {
		log.Printf("ERROR recomputing after schedule update: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "schedule saved but recompute failed"})
	}

	return c.JSON(schedule)
}
