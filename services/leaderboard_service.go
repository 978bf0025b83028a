package services

import (
	"errors"
	"log"
	"sort"

	"github.com/andrewbusbee/go-make-your-picks-sub003/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// LeaderboardService assembles standings views from ScoreRecords. It is a
// pure reader: the scoring engine owns every number it displays.
type LeaderboardService struct {
	DB *gorm.DB
}

func NewLeaderboardService(db *gorm.DB) *LeaderboardService {
	return &LeaderboardService{DB: db}
}

// LeaderboardRow is one participant's line in the standings. RoundPoints is
// keyed by round ID and carries a value for every displayed round.
type LeaderboardRow struct {
	ParticipantID string         `json:"participant_id"`
	Name          string         `json:"name"`
	RoundPoints   map[string]int `json:"round_points"`
	Total         int            `json:"total"`
	Rank          int            `json:"rank"`
}

// LeaderboardRound is the column header metadata for one displayed round.
type LeaderboardRound struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Leaderboard is the full standings payload for a season.
type Leaderboard struct {
	SeasonID   string             `json:"season_id"`
	SeasonName string             `json:"season_name"`
	Status     string             `json:"status"`
	Rounds     []LeaderboardRound `json:"rounds"`
	Rows       []LeaderboardRow   `json:"rows"`
}

// GetBySlug handles GET /seasons/:slug/leaderboard (public, no auth).
func (s *LeaderboardService) GetBySlug(c *fiber.Ctx) error {
	var season models.Season
	if err := s.DB.First(&season, "slug = ?", c.Params("slug")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "season not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}

	board, err := s.assembleTx(s.DB, &season)
	if err != nil {
		log.Printf("ERROR assembling leaderboard for season %s: %v", season.ID, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to build leaderboard"})
	}
	return c.JSON(board)
}

// assembleTx builds the standings inside the caller's transaction (or plain
// DB handle). Only locked and completed rounds appear as columns; draft and
// active rounds stay invisible so standings never leak in-flight picks.
// Ranking is competition style: tied totals share a rank and the next
// distinct total skips the tied count (1, 1, 3).
func (s *LeaderboardService) assembleTx(tx *gorm.DB, season *models.Season) (*Leaderboard, error) {
	var rounds []models.Round
	err := tx.Where("season_id = ? AND status IN ?", season.ID,
		[]string{models.RoundStatusLocked, models.RoundStatusCompleted}).
		Order("lock_time ASC").
		Find(&rounds).Error
	if err != nil {
		return nil, err
	}

	var participants []models.Participant
	if err := tx.Where("season_id = ?", season.ID).Order("name ASC").
		Find(&participants).Error; err != nil {
		return nil, err
	}

	var records []models.ScoreRecord
	if err := tx.Where("season_id = ?", season.ID).Find(&records).Error; err != nil {
		return nil, err
	}

	shownRound := make(map[string]bool, len(rounds))
	cols := make([]LeaderboardRound, 0, len(rounds))
	for i := range rounds {
		shownRound[rounds[i].ID] = true
		cols = append(cols, LeaderboardRound{ID: rounds[i].ID, Name: rounds[i].Name})
	}

	points := make(map[string]map[string]int, len(participants))
	for _, rec := range records {
		if !shownRound[rec.RoundID] {
			continue
		}
		if points[rec.ParticipantID] == nil {
			points[rec.ParticipantID] = make(map[string]int)
		}
		points[rec.ParticipantID][rec.RoundID] = rec.Points
	}

	rows := make([]LeaderboardRow, 0, len(participants))
	for i := range participants {
		p := &participants[i]
		row := LeaderboardRow{
			ParticipantID: p.ID,
			Name:          p.Name,
			RoundPoints:   make(map[string]int, len(cols)),
		}
		for _, col := range cols {
			pts := points[p.ID][col.ID]
			row.RoundPoints[col.ID] = pts
			row.Total += pts
		}
		rows = append(rows, row)
	}

	// Stable so equal totals keep alphabetical order.
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Total > rows[j].Total
	})
	for i := range rows {
		if i > 0 && rows[i].Total == rows[i-1].Total {
			rows[i].Rank = rows[i-1].Rank
		} else {
			rows[i].Rank = i + 1
		}
	}

	return &Leaderboard{
		SeasonID:   season.ID,
		SeasonName: season.Name,
		Status:     season.Status,
		Rounds:     cols,
		Rows:       rows,
	}, nil
}
