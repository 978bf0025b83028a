package services

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/andrewbusbee/go-make-your-picks-sub003/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PickService is the participant-facing surface. Participants never log in;
// a pick token from their email is the only credential.
type PickService struct {
	DB     *gorm.DB
	Tokens *TokenService
}

func NewPickService(db *gorm.DB, tokens *TokenService) *PickService {
	return &PickService{DB: db, Tokens: tokens}
}

// pickTokenIdentity unpacks the participant and round a pick token is bound
// to. Both fields are always set at issue time; a row missing either is
// corrupt and treated like an unknown token.
func pickTokenIdentity(token *models.AccessToken) (participantID, roundID string, err error) {
	if token.ParticipantID == nil || token.RoundID == nil {
		return "", "", fmt.Errorf("pick token %s has no participant or round binding", token.ID)
	}
	return *token.ParticipantID, *token.RoundID, nil
}

// ValidateToken handles GET /picks/validate/:token. Returns round metadata
// and the participant's current prediction when the link is usable; invalid
// and expired links get the same generic message, told apart only by the
// machine code.
func (s *PickService) ValidateToken(c *fiber.Ctx) error {
	now := time.Now().UTC()

	token, err := s.Tokens.Resolve(c.Params("token"), models.TokenKindPick, now)
	if errors.Is(err, ErrTokenExpired) {
		return c.Status(401).JSON(fiber.Map{
			"error": "this link is no longer valid",
			"code":  "expired",
		})
	}
	if errors.Is(err, ErrTokenNotFound) {
		return c.Status(401).JSON(fiber.Map{
			"error": "this link is no longer valid",
			"code":  "invalid",
		})
	}
	if err != nil {
		log.Printf("ERROR validating pick token: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to validate link"})
	}

	participantID, roundID, err := pickTokenIdentity(token)
	if err != nil {
		log.Printf("ERROR validating pick token: %v", err)
		return c.Status(401).JSON(fiber.Map{
			"error": "this link is no longer valid",
			"code":  "invalid",
		})
	}

	var round models.Round
	err = s.DB.
		Preload("Candidates", func(db *gorm.DB) *gorm.DB {
			return db.Order("\"sort_order\" ASC")
		}).
		First(&round, "id = ?", roundID).Error
	if err != nil {
		log.Printf("ERROR loading round %s for pick token: %v", roundID, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to validate link"})
	}

	var participant models.Participant
	if err := s.DB.First(&participant, "id = ?", participantID).Error; err != nil {
		log.Printf("ERROR loading participant %s for pick token: %v", participantID, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to validate link"})
	}

	if round.IsLocked(now) {
		return c.Status(403).JSON(fiber.Map{
			"error":           "picks for this round are closed",
			"code":            "locked",
			"locked":          true,
			"round_name":      round.Name,
			"lock_time_local": round.LockTimeLocal().Format("Mon Jan 2, 2006 3:04 PM MST"),
		})
	}

	candidates := make([]string, 0, len(round.Candidates))
	for i := range round.Candidates {
		candidates = append(candidates, round.Candidates[i].Name)
	}

	var existing []string
	var prediction models.Prediction
	err = s.DB.
		Preload("Values", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Where("participant_id = ? AND round_id = ?", participant.ID, round.ID).
		First(&prediction).Error
	if err == nil {
		for i := range prediction.Values {
			existing = append(existing, prediction.Values[i].Value)
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Printf("ERROR loading existing prediction: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to validate link"})
	}

	return c.JSON(fiber.Map{
		"locked":           false,
		"participant_name": participant.Name,
		"round_id":         round.ID,
		"round_name":       round.Name,
		"kind":             round.Kind,
		"max_picks":        round.MaxPicks,
		"lock_time":        round.LockTime.Format(time.RFC3339),
		"lock_time_local":  round.LockTimeLocal().Format("Mon Jan 2, 2006 3:04 PM MST"),
		"candidates":       candidates,
		"existing_values":  existing,
	})
}

// Submit handles POST /picks/:token. Resubmission replaces the previous
// prediction wholesale. The same token stays valid until the round locks.
func (s *PickService) Submit(c *fiber.Ctx) error {
	now := time.Now().UTC()
	type Req struct {
		Values []string `json:"values"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON"})
	}

	token, err := s.Tokens.Resolve(c.Params("token"), models.TokenKindPick, now)
	if errors.Is(err, ErrTokenExpired) {
		return c.Status(401).JSON(fiber.Map{"error": "this link is no longer valid", "code": "expired"})
	}
	if errors.Is(err, ErrTokenNotFound) {
		return c.Status(401).JSON(fiber.Map{"error": "this link is no longer valid", "code": "invalid"})
	}
	if err != nil {
		log.Printf("ERROR resolving pick token: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to submit picks"})
	}

	participantID, roundID, err := pickTokenIdentity(token)
	if err != nil {
		log.Printf("ERROR resolving pick token: %v", err)
		return c.Status(401).JSON(fiber.Map{"error": "this link is no longer valid", "code": "invalid"})
	}

	err = s.submitTx(participantID, roundID, req.Values, now)
	if errors.Is(err, ErrRoundLocked) {
		return c.Status(403).JSON(fiber.Map{
			"error":  "picks for this round are closed",
			"code":   "locked",
			"locked": true,
		})
	}
	if errors.Is(err, ErrEmptySubmission) || errors.Is(err, ErrTooManyValues) || errors.Is(err, ErrInvalidCandidate) {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		log.Printf("ERROR submitting picks for participant %s round %s: %v",
			participantID, roundID, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to submit picks"})
	}

	return c.JSON(fiber.Map{"message": "picks saved"})
}

// submitTx performs the upsert. The round row is locked FOR UPDATE and the
// lock state rechecked inside the transaction, which serializes submissions
// against a concurrent lock or complete on the same round.
func (s *PickService) submitTx(participantID, roundID string, values []string, now time.Time) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var round models.Round
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&round, "id = ?", roundID).Error; err != nil {
			return err
		}
		if round.IsLocked(now) {
			return ErrRoundLocked
		}

		cleaned := make([]string, 0, len(values))
		for _, v := range values {
			v = strings.TrimSpace(v)
			if v != "" {
				cleaned = append(cleaned, v)
			}
		}
		if len(cleaned) == 0 {
			return ErrEmptySubmission
		}

		switch round.Kind {
		case models.RoundKindSingle:
			if len(cleaned) > 1 {
				return ErrTooManyValues
			}
			var count int64
			err := tx.Model(&models.RoundCandidate{}).
				Where("round_id = ? AND name = ?", round.ID, cleaned[0]).
				Count(&count).Error
			if err != nil {
				return err
			}
			// Candidate match is case sensitive.
			if count == 0 {
				return ErrInvalidCandidate
			}
		case models.RoundKindMultiple:
			if len(cleaned) > round.MaxPicks {
				cleaned = cleaned[:round.MaxPicks]
			}
		}

		var prediction models.Prediction
		err := tx.Where("participant_id = ? AND round_id = ?", participantID, roundID).
			First(&prediction).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			prediction = models.Prediction{
				ID:            uuid.NewString(),
				ParticipantID: participantID,
				RoundID:       roundID,
			}
			if err := tx.Create(&prediction).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		if err := tx.Where("prediction_id = ?", prediction.ID).
			Delete(&models.PredictionValue{}).Error; err != nil {
			return err
		}

		rows := make([]models.PredictionValue, 0, len(cleaned))
		for i, v := range cleaned {
			rows = append(rows, models.PredictionValue{
				ID:           uuid.NewString(),
				PredictionID: prediction.ID,
				Position:     i + 1,
				Value:        v,
			})
		}
		if err := tx.Create(&rows).Error; err != nil {
			return err
		}

		return tx.Model(&prediction).Update("updated_at", now).Error
	})
}
