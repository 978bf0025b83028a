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

// RoundService owns the round lifecycle state machine:
// draft → active → locked → completed.
type RoundService struct {
	DB      *gorm.DB
	Tokens  *TokenService
	Scoring *ScoringService
}

func NewRoundService(db *gorm.DB, tokens *TokenService, scoring *ScoringService) *RoundService {
	return &RoundService{DB: db, Tokens: tokens, Scoring: scoring}
}

// CreateRound handles POST /admin/rounds
func (s *RoundService) CreateRound(c *fiber.Ctx) error {
	type Req struct {
		SeasonID   string   `json:"season_id"`
		Name       string   `json:"name"`
		Kind       string   `json:"kind"`
		MaxPicks   int      `json:"max_picks"`
		LockTime   string   `json:"lock_time"` // RFC3339
		Timezone   string   `json:"timezone"`  // IANA name
		Candidates []string `json:"candidates"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON"})
	}

	if req.SeasonID == "" || req.Name == "" || req.LockTime == "" {
		return c.Status(400).JSON(fiber.Map{"error": "season_id, name, and lock_time are required"})
	}

	if req.Kind == "" {
		req.Kind = models.RoundKindSingle
	}
	if req.Kind != models.RoundKindSingle && req.Kind != models.RoundKindMultiple {
		return c.Status(400).JSON(fiber.Map{"error": "kind must be 'single' or 'multiple'"})
	}

	lockTime, err := time.Parse(time.RFC3339, req.LockTime)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid lock_time (use RFC3339)"})
	}

	if req.Timezone == "" {
		req.Timezone = "UTC"
	}
	if _, err := time.LoadLocation(req.Timezone); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid timezone (use an IANA zone name)"})
	}

	maxPicks := req.MaxPicks
	if maxPicks <= 0 {
		maxPicks = 1
	}
	if req.Kind == models.RoundKindSingle {
		maxPicks = 1
		if len(dedupeNonBlank(req.Candidates)) < 2 {
			return c.Status(400).JSON(fiber.Map{"error": "single kind requires at least two candidates"})
		}
	}

	if err := s.DB.First(&models.Season{}, "id = ?", req.SeasonID).Error; err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "season_id not found"})
	}

	round := &models.Round{
		ID:       uuid.NewString(),
		SeasonID: req.SeasonID,
		Name:     req.Name,
		Kind:     req.Kind,
		MaxPicks: maxPicks,
		LockTime: lockTime.UTC(),
		Timezone: req.Timezone,
		Status:   models.RoundStatusDraft,
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(round).Error; err != nil {
			return err
		}
		return s.replaceCandidatesTx(tx, round, req.Candidates)
	})
	if err != nil {
		log.Printf("ERROR creating round: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to create round"})
	}

	s.preloadRound(round)
	return c.Status(201).JSON(round)
}

// UpdateRound handles PUT /admin/rounds/:id. Completed rounds are immutable
// here; edit their outcome through the results endpoint instead.
func (s *RoundService) UpdateRound(c *fiber.Ctx) error {
	id := c.Params("id")
	type Req struct {
		Name       string   `json:"name"`
		MaxPicks   int      `json:"max_picks"`
		LockTime   string   `json:"lock_time"`
		Timezone   string   `json:"timezone"`
		Candidates []string `json:"candidates"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON"})
	}

	var round models.Round
	if err := s.DB.First(&round, "id = ?", id).Error; err != nil {
		return c.Status(404).JSON(fiber.Map{"error": "round not found"})
	}
	if round.Status == models.RoundStatusCompleted {
		return c.Status(409).JSON(fiber.Map{"error": "completed rounds cannot be edited"})
	}

	if req.Name != "" {
		round.Name = req.Name
	}
	if req.MaxPicks > 0 && round.Kind == models.RoundKindMultiple {
		round.MaxPicks = req.MaxPicks
	}
	if req.LockTime != "" {
		t, err := time.Parse(time.RFC3339, req.LockTime)
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid lock_time (use RFC3339)"})
		}
		round.LockTime = t.UTC()
	}
	if req.Timezone != "" {
		if _, err := time.LoadLocation(req.Timezone); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid timezone (use an IANA zone name)"})
		}
		round.Timezone = req.Timezone
	}
	if round.Kind == models.RoundKindSingle && req.Candidates != nil && len(dedupeNonBlank(req.Candidates)) < 2 {
		return c.Status(400).JSON(fiber.Map{"error": "single kind requires at least two candidates"})
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(&round).Error; err != nil {
			return err
		}
		if req.Candidates != nil {
			return s.replaceCandidatesTx(tx, &round, req.Candidates)
		}
		return nil
	})
	if err != nil {
		log.Printf("ERROR updating round %s: %v", id, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to update round"})
	}

	s.preloadRound(&round)
	return c.JSON(&round)
}

// GetRound handles GET /admin/rounds/:id
func (s *RoundService) GetRound(c *fiber.Ctx) error {
	var round models.Round
	if err := s.loadRound(c.Params("id"), &round); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "round not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(&round)
}

// ListRoundsBySeason handles GET /admin/seasons/:id/rounds
func (s *RoundService) ListRoundsBySeason(c *fiber.Ctx) error {
	var rounds []models.Round
	err := s.DB.Where("season_id = ?", c.Params("id")).
		Preload("Candidates", func(db *gorm.DB) *gorm.DB {
			return db.Order("\"sort_order\" ASC")
		}).
		Preload("Results", func(db *gorm.DB) *gorm.DB {
			return db.Order("placement ASC")
		}).
		Order("lock_time ASC").
		Find(&rounds).Error
	if err != nil {
		log.Printf("ERROR listing rounds: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to fetch rounds"})
	}
	return c.JSON(rounds)
}

// ActivateRound handles POST /admin/rounds/:id/activate. Opens the round for
// picks and emails every season participant a fresh link.
func (s *RoundService) ActivateRound(c *fiber.Ctx) error {
	id := c.Params("id")

	var round models.Round
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&round, "id = ?", id).Error; err != nil {
			return err
		}
		if round.Status != models.RoundStatusDraft {
			return ErrInvalidTransition
		}
		round.Status = models.RoundStatusActive
		return tx.Save(&round).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(404).JSON(fiber.Map{"error": "round not found"})
	}
	if errors.Is(err, ErrInvalidTransition) {
		log.Printf("ERROR activating round %s: not in draft (status=%s)", id, round.Status)
		return c.Status(409).JSON(fiber.Map{"error": "only draft rounds can be activated"})
	}
	if err != nil {
		log.Printf("ERROR activating round %s: %v", id, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to activate round"})
	}

	var participants []models.Participant
	if err := s.DB.Where("season_id = ?", round.SeasonID).Find(&participants).Error; err != nil {
		log.Printf("ERROR loading participants for round %s: %v", id, err)
		return c.Status(500).JSON(fiber.Map{"error": "round activated but invitations failed"})
	}

	invited := 0
	for i := range participants {
		if _, err := s.Tokens.IssuePickToken(&participants[i], &round, c.IP()); err != nil {
			log.Printf("ERROR issuing pick token for participant %s: %v", participants[i].ID, err)
			continue
		}
		invited++
	}

	return c.JSON(fiber.Map{
		"message": "round activated",
		"invited": invited,
	})
}

// LockRound handles POST /admin/rounds/:id/lock (explicit operator lock).
func (s *RoundService) LockRound(c *fiber.Ctx) error {
	id := c.Params("id")

	var round models.Round
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&round, "id = ?", id).Error; err != nil {
			return err
		}
		switch round.Status {
		case models.RoundStatusActive:
			round.Status = models.RoundStatusLocked
			return tx.Save(&round).Error
		case models.RoundStatusLocked:
			return nil // already locked, no-op
		default:
			return ErrInvalidTransition
		}
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(404).JSON(fiber.Map{"error": "round not found"})
	}
	if errors.Is(err, ErrInvalidTransition) {
		log.Printf("ERROR locking round %s: status=%s", id, round.Status)
		return c.Status(409).JSON(fiber.Map{"error": "only active rounds can be locked"})
	}
	if err != nil {
		log.Printf("ERROR locking round %s: %v", id, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to lock round"})
	}

	return c.JSON(fiber.Map{"message": "round locked"})
}

type placementReq struct {
	Placement int    `json:"placement"`
	Value     string `json:"value"`
}

// CompleteRound handles POST /admin/rounds/:id/complete. Records the outcome
// and recomputes the season's scores in the same transaction, so a round is
// never observably completed with stale scores.
func (s *RoundService) CompleteRound(c *fiber.Ctx) error {
	id := c.Params("id")
	type Req struct {
		Results []placementReq `json:"results"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON"})
	}

	var round models.Round
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&round, "id = ?", id).Error; err != nil {
			return err
		}
		if round.Status != models.RoundStatusLocked {
			return ErrInvalidTransition
		}
		if err := s.writeResultsTx(tx, &round, req.Results); err != nil {
			return err
		}
		now := time.Now().UTC()
		round.Status = models.RoundStatusCompleted
		round.CompletedAt = &now
		if err := tx.Save(&round).Error; err != nil {
			return err
		}
		return s.Scoring.recomputeSeasonTx(tx, round.SeasonID)
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(404).JSON(fiber.Map{"error": "round not found"})
	}
	if errors.Is(err, ErrInvalidTransition) {
		log.Printf("ERROR completing round %s: not locked (status=%s)", id, round.Status)
		return c.Status(409).JSON(fiber.Map{"error": "round must be locked before it can be completed"})
	}
	if errors.Is(err, ErrInvalidCandidate) || errors.Is(err, ErrEmptySubmission) || errors.Is(err, ErrInvalidPlacement) {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		log.Printf("ERROR completing round %s: %v", id, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to complete round"})
	}

	s.preloadRound(&round)
	return c.JSON(&round)
}

// UpdateResults handles PUT /admin/rounds/:id/results: edit a completed
// round's outcome. Scores recompute in the same transaction.
func (s *RoundService) UpdateResults(c *fiber.Ctx) error {
	id := c.Params("id")
	type Req struct {
		Results []placementReq `json:"results"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON"})
	}

	var round models.Round
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&round, "id = ?", id).Error; err != nil {
			return err
		}
		if round.Status != models.RoundStatusCompleted {
			return ErrInvalidTransition
		}
		if err := s.writeResultsTx(tx, &round, req.Results); err != nil {
			return err
		}
		return s.Scoring.recomputeSeasonTx(tx, round.SeasonID)
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(404).JSON(fiber.Map{"error": "round not found"})
	}
	if errors.Is(err, ErrInvalidTransition) {
		log.Printf("ERROR editing results of round %s: status=%s", id, round.Status)
		return c.Status(409).JSON(fiber.Map{"error": "only completed rounds have editable results"})
	}
	if errors.Is(err, ErrInvalidCandidate) || errors.Is(err, ErrEmptySubmission) || errors.Is(err, ErrInvalidPlacement) {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		log.Printf("ERROR editing results of round %s: %v", id, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to update results"})
	}

	s.preloadRound(&round)
	return c.JSON(&round)
}

// ResendLink handles POST /admin/rounds/:id/resend. Re-issues one
// participant's pick link; the old token is invalidated.
func (s *RoundService) ResendLink(c *fiber.Ctx) error {
	id := c.Params("id")
	type Req struct {
		ParticipantID string `json:"participant_id"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON"})
	}
	if req.ParticipantID == "" {
		return c.Status(400).JSON(fiber.Map{"error": "participant_id is required"})
	}

	var round models.Round
	if err := s.DB.First(&round, "id = ?", id).Error; err != nil {
		return c.Status(404).JSON(fiber.Map{"error": "round not found"})
	}
	if round.IsLocked(time.Now()) {
		return c.Status(409).JSON(fiber.Map{"error": "round is locked", "code": "locked"})
	}

	var participant models.Participant
	if err := s.DB.Where("id = ? AND season_id = ?", req.ParticipantID, round.SeasonID).
		First(&participant).Error; err != nil {
		return c.Status(404).JSON(fiber.Map{"error": "participant not found in this season"})
	}

	if _, err := s.Tokens.IssuePickToken(&participant, &round, c.IP()); err != nil {
		log.Printf("ERROR reissuing pick token: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to resend link"})
	}

	return c.JSON(fiber.Map{"message": "link sent"})
}

// LockDueRounds flips active rounds past their lock time to locked. Called
// every minute by the scheduler; IsLocked already rejects late picks by
// time, so this only makes the state visible.
func (s *RoundService) LockDueRounds(now time.Time) {
	var rounds []models.Round
	err := s.DB.Where("status = ? AND lock_time <= ?", models.RoundStatusActive, now).
		Find(&rounds).Error
	if err != nil {
		log.Printf("[Scheduler] DB error: %v", err)
		return
	}

	for i := range rounds {
		// Conditional on status so a flip committed by an operator
		// between the read and this write is never overwritten.
		res := s.DB.Model(&models.Round{}).
			Where("id = ? AND status = ?", rounds[i].ID, models.RoundStatusActive).
			Update("status", models.RoundStatusLocked)
		if res.Error != nil {
			log.Printf("[Scheduler] Failed to lock round %s: %v", rounds[i].ID, res.Error)
			continue
		}
		if res.RowsAffected == 0 {
			continue // already moved on by an operator
		}
		log.Printf("[Scheduler] Locked round %s (%s) at its lock time", rounds[i].ID, rounds[i].Name)
	}
}

// writeResultsTx validates and rewrites a round's placed outcomes. Ties are
// allowed (several values at one placement). For single-kind rounds every
// value must be an entrant from the candidate list.
func (s *RoundService) writeResultsTx(tx *gorm.DB, round *models.Round, results []placementReq) error {
	if len(results) == 0 {
		return fmt.Errorf("%w: at least one placement is required", ErrEmptySubmission)
	}

	var candidates map[string]bool
	if round.Kind == models.RoundKindSingle {
		var list []models.RoundCandidate
		if err := tx.Where("round_id = ?", round.ID).Find(&list).Error; err != nil {
			return err
		}
		candidates = make(map[string]bool, len(list))
		for i := range list {
			candidates[list[i].Name] = true
		}
	}

	rows := make([]models.RoundResult, 0, len(results))
	for _, r := range results {
		value := strings.TrimSpace(r.Value)
		if value == "" {
			return fmt.Errorf("%w: blank placement value", ErrEmptySubmission)
		}
		if r.Placement < 1 || r.Placement > 5 {
			return fmt.Errorf("%w: got %d", ErrInvalidPlacement, r.Placement)
		}
		if candidates != nil && !candidates[value] {
			return fmt.Errorf("%w: %q is not an entrant of this round", ErrInvalidCandidate, value)
		}
		rows = append(rows, models.RoundResult{
			ID:        uuid.NewString(),
			RoundID:   round.ID,
			Placement: r.Placement,
			Value:     value,
		})
	}

	if err := tx.Where("round_id = ?", round.ID).Delete(&models.RoundResult{}).Error; err != nil {
		return err
	}
	return tx.Create(&rows).Error
}

// replaceCandidatesTx rewrites a round's candidate list in submission order.
func (s *RoundService) replaceCandidatesTx(tx *gorm.DB, round *models.Round, names []string) error {
	if err := tx.Where("round_id = ?", round.ID).Delete(&models.RoundCandidate{}).Error; err != nil {
		return err
	}
	cleaned := dedupeNonBlank(names)
	if len(cleaned) == 0 {
		return nil
	}
	rows := make([]models.RoundCandidate, 0, len(cleaned))
	for i, name := range cleaned {
		rows = append(rows, models.RoundCandidate{
			ID:        uuid.NewString(),
			RoundID:   round.ID,
			Name:      name,
			SortOrder: i,
		})
	}
	return tx.Create(&rows).Error
}

func (s *RoundService) loadRound(id string, round *models.Round) error {
	return s.DB.
		Preload("Candidates", func(db *gorm.DB) *gorm.DB {
			return db.Order("\"sort_order\" ASC")
		}).
		Preload("Results", func(db *gorm.DB) *gorm.DB {
			return db.Order("placement ASC")
		}).
		First(round, "id = ?", id).Error
}

func (s *RoundService) preloadRound(round *models.Round) {
	if err := s.loadRound(round.ID, round); err != nil {
		log.Printf("ERROR refetching round %s: %v", round.ID, err)
	}
}

// dedupeNonBlank trims, drops blanks, and keeps first occurrence order.
func dedupeNonBlank(values []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
