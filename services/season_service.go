package services

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/andrewbusbee/go-make-your-picks-sub003/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SeasonService manages seasons and their participant rosters, including the
// end-of-season freeze and the reopen escape hatch.
type SeasonService struct {
	DB          *gorm.DB
	Leaderboard *LeaderboardService
	Scoring     *ScoringService
}

func NewSeasonService(db *gorm.DB, leaderboard *LeaderboardService, scoring *ScoringService) *SeasonService {
	return &SeasonService{DB: db, Leaderboard: leaderboard, Scoring: scoring}
}

// CreateSeason handles POST /admin/seasons
func (s *SeasonService) CreateSeason(c *fiber.Ctx) error {
	type Req struct {
		Name string `json:"name"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON"})
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return c.Status(400).JSON(fiber.Map{"error": "name is required"})
	}

	seasonSlug := slug.Make(req.Name)
	var count int64
	if err := s.DB.Model(&models.Season{}).Where("slug = ?", seasonSlug).Count(&count).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}
	if count > 0 {
		return c.Status(409).JSON(fiber.Map{"error": "a season with this name already exists"})
	}

	season := &models.Season{
		ID:     uuid.NewString(),
		Name:   req.Name,
		Slug:   seasonSlug,
		Status: models.SeasonStatusActive,
	}
	if err := s.DB.Create(season).Error; err != nil {
		log.Printf("ERROR creating season: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to create season"})
	}

	return c.Status(201).JSON(season)
}

// ListSeasons handles GET /admin/seasons
func (s *SeasonService) ListSeasons(c *fiber.Ctx) error {
	var seasons []models.Season
	if err := s.DB.Order("created_at DESC").Find(&seasons).Error; err != nil {
		log.Printf("ERROR listing seasons: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to fetch seasons"})
	}
	return c.JSON(seasons)
}

// GetSeason handles GET /admin/seasons/:id
func (s *SeasonService) GetSeason(c *fiber.Ctx) error {
	var season models.Season
	err := s.DB.
		Preload("Participants", func(db *gorm.DB) *gorm.DB {
			return db.Order("name ASC")
		}).
		Preload("Rounds", func(db *gorm.DB) *gorm.DB {
			return db.Order("lock_time ASC")
		}).
		First(&season, "id = ?", c.Params("id")).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(404).JSON(fiber.Map{"error": "season not found"})
	}
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(&season)
}

// AddParticipants handles POST /admin/seasons/:id/participants. Accepts one
// or many; duplicates by email within the season are skipped.
func (s *SeasonService) AddParticipants(c *fiber.Ctx) error {
	id := c.Params("id")
	type Entry struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	type Req struct {
		Participants []Entry `json:"participants"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON"})
	}
	if len(req.Participants) == 0 {
		return c.Status(400).JSON(fiber.Map{"error": "participants is required"})
	}

	var season models.Season
	if err := s.DB.First(&season, "id = ?", id).Error; err != nil {
		return c.Status(404).JSON(fiber.Map{"error": "season not found"})
	}
	if season.Status == models.SeasonStatusEnded {
		return c.Status(409).JSON(fiber.Map{"error": "season has ended"})
	}

	added := make([]models.Participant, 0, len(req.Participants))
	skipped := 0
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		for _, e := range req.Participants {
			name := strings.TrimSpace(e.Name)
			email := strings.ToLower(strings.TrimSpace(e.Email))
			if name == "" || email == "" {
				skipped++
				continue
			}
			var count int64
			if err := tx.Model(&models.Participant{}).
				Where("season_id = ? AND email = ?", id, email).
				Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				skipped++
				continue
			}
			p := models.Participant{
				ID:       uuid.NewString(),
				SeasonID: id,
				Name:     name,
				Email:    email,
			}
			if err := tx.Create(&p).Error; err != nil {
				return err
			}
			added = append(added, p)
		}
		return nil
	})
	if err != nil {
		log.Printf("ERROR adding participants to season %s: %v", id, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to add participants"})
	}

	return c.Status(201).JSON(fiber.Map{
		"added":        added,
		"skipped":      skipped,
		"participants": len(added),
	})
}

// RemoveParticipant handles DELETE /admin/seasons/:id/participants/:pid
func (s *SeasonService) RemoveParticipant(c *fiber.Ctx) error {
	res := s.DB.Where("id = ? AND season_id = ?", c.Params("pid"), c.Params("id")).
		Delete(&models.Participant{})
	if res.Error != nil {
		log.Printf("ERROR removing participant: %v", res.Error)
		return c.Status(500).JSON(fiber.Map{"error": "failed to remove participant"})
	}
	if res.RowsAffected == 0 {
		return c.Status(404).JSON(fiber.Map{"error": "participant not found"})
	}
	return c.JSON(fiber.Map{"message": "participant removed"})
}

// EndSeason handles POST /admin/seasons/:id/end. Derives the final podium
// from the leaderboard and freezes the season's scores in one transaction.
func (s *SeasonService) EndSeason(c *fiber.Ctx) error {
	id := c.Params("id")

	var season models.Season
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&season, "id = ?", id).Error; err != nil {
			return err
		}
		if season.Status == models.SeasonStatusEnded {
			return ErrInvalidTransition
		}

		board, err := s.Leaderboard.assembleTx(tx, &season)
		if err != nil {
			return err
		}
		for _, row := range board.Rows {
			if row.Rank > 3 {
				break
			}
			winner := models.SeasonWinner{
				ID:            uuid.NewString(),
				SeasonID:      season.ID,
				ParticipantID: row.ParticipantID,
				Place:         row.Rank,
				Points:        row.Total,
			}
			if err := tx.Create(&winner).Error; err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		season.Status = models.SeasonStatusEnded
		season.EndedAt = &now
		return tx.Save(&season).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(404).JSON(fiber.Map{"error": "season not found"})
	}
	if errors.Is(err, ErrInvalidTransition) {
		return c.Status(409).JSON(fiber.Map{"error": "season has already ended"})
	}
	if err != nil {
		log.Printf("ERROR ending season %s: %v", id, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to end season"})
	}

	log.Printf("🏁 Season %s (%s) ended", season.ID, season.Name)
	return c.JSON(&season)
}

// GetWinners handles GET /seasons/:slug/winners (public).
func (s *SeasonService) GetWinners(c *fiber.Ctx) error {
	var season models.Season
	if err := s.DB.First(&season, "slug = ?", c.Params("slug")).Error; err != nil {
		return c.Status(404).JSON(fiber.Map{"error": "season not found"})
	}

	var winners []models.SeasonWinner
	if err := s.DB.Where("season_id = ?", season.ID).Order("place ASC").
		Find(&winners).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to fetch winners"})
	}
	return c.JSON(winners)
}

// ReopenRound handles POST /admin/seasons/:id/reopen/:roundID. It unwinds a
// completed round back to locked, deletes the round's outcome and the
// season's podium, reactivates an ended season, and recomputes. One
// transaction covers all of it.
func (s *SeasonService) ReopenRound(c *fiber.Ctx) error {
	seasonID := c.Params("id")
	roundID := c.Params("roundID")

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var season models.Season
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&season, "id = ?", seasonID).Error; err != nil {
			return err
		}

		var round models.Round
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&round, "id = ? AND season_id = ?", roundID, seasonID).Error; err != nil {
			return err
		}
		if round.Status != models.RoundStatusCompleted {
			return ErrInvalidTransition
		}

		if err := tx.Where("round_id = ?", round.ID).
			Delete(&models.RoundResult{}).Error; err != nil {
			return err
		}
		round.Status = models.RoundStatusLocked
		round.CompletedAt = nil
		if err := tx.Save(&round).Error; err != nil {
			return err
		}

		if err := tx.Where("season_id = ?", seasonID).
			Delete(&models.SeasonWinner{}).Error; err != nil {
			return err
		}
		if season.Status == models.SeasonStatusEnded {
			season.Status = models.SeasonStatusActive
			season.EndedAt = nil
			if err := tx.Save(&season).Error; err != nil {
				return err
			}
		}

		return s.Scoring.recomputeSeasonTx(tx, seasonID)
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(404).JSON(fiber.Map{"error": "round not found in this season"})
	}
	if errors.Is(err, ErrInvalidTransition) {
		return c.Status(409).JSON(fiber.Map{"error": "only completed rounds can be reopened"})
	}
	if err != nil {
		log.Printf("ERROR reopening round %s: %v", roundID, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to reopen round"})
	}

	log.Printf("♻️  Round %s reopened in season %s", roundID, seasonID)
	return c.JSON(fiber.Map{"message": "round reopened"})
}
