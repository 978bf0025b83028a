package testutil

import (
	"testing"
	"time"

	"github.com/andrewbusbee/go-make-your-picks-sub003/models"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestDBURL is the connection string for the test database
const TestDBURL = "host=localhost user=picks password=picks dbname=make_your_picks_test port=5432 sslmode=disable"

// SetupTestDB opens the test database and rebuilds the full schema so every
// test starts from empty tables.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(postgres.Open(TestDBURL), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	all := []interface{}{
		&models.ScoreRecord{},
		&models.PredictionValue{},
		&models.Prediction{},
		&models.AccessToken{},
		&models.RoundResult{},
		&models.RoundCandidate{},
		&models.Round{},
		&models.SeasonWinner{},
		&models.Participant{},
		&models.PointSchedule{},
		&models.AdminUser{},
		&models.Season{},
	}
	// Children first so FK-less drops stay order-insensitive.
	for _, m := range all {
		if err := db.Migrator().DropTable(m); err != nil {
			t.Fatalf("Failed to drop table: %v", err)
		}
	}
	if err := db.AutoMigrate(
		&models.Season{},
		&models.SeasonWinner{},
		&models.Participant{},
		&models.Round{},
		&models.RoundCandidate{},
		&models.RoundResult{},
		&models.AccessToken{},
		&models.Prediction{},
		&models.PredictionValue{},
		&models.PointSchedule{},
		&models.ScoreRecord{},
		&models.AdminUser{},
	); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	return db
}

// CreateTestSeason inserts an active season
func CreateTestSeason(t *testing.T, db *gorm.DB, name, slugVal string) *models.Season {
	t.Helper()
	season := &models.Season{
		ID:     uuid.NewString(),
		Name:   name,
		Slug:   slugVal,
		Status: models.SeasonStatusActive,
	}
	if err := db.Create(season).Error; err != nil {
		t.Fatalf("Failed to create season: %v", err)
	}
	return season
}

// CreateTestParticipant inserts one participant into a season
func CreateTestParticipant(t *testing.T, db *gorm.DB, seasonID, name, email string) *models.Participant {
	t.Helper()
	p := &models.Participant{
		ID:       uuid.NewString(),
		SeasonID: seasonID,
		Name:     name,
		Email:    email,
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("Failed to create participant: %v", err)
	}
	return p
}

// CreateTestRound inserts a round with the given status and lock time
func CreateTestRound(t *testing.T, db *gorm.DB, seasonID, name, kind, status string, lockTime time.Time) *models.Round {
	t.Helper()
	round := &models.Round{
		ID:       uuid.NewString(),
		SeasonID: seasonID,
		Name:     name,
		Kind:     kind,
		MaxPicks: 1,
		LockTime: lockTime.UTC(),
		Timezone: "UTC",
		Status:   status,
	}
	if round.Kind == models.RoundKindMultiple {
		round.MaxPicks = 3
	}
	if err := db.Create(round).Error; err != nil {
		t.Fatalf("Failed to create round: %v", err)
	}
	return round
}

// AddCandidates attaches a candidate list to a round in the given order
func AddCandidates(t *testing.T, db *gorm.DB, roundID string, names ...string) {
	t.Helper()
	for i, name := range names {
		c := &models.RoundCandidate{
			ID:        uuid.NewString(),
			RoundID:   roundID,
			Name:      name,
			SortOrder: i,
		}
		if err := db.Create(c).Error; err != nil {
			t.Fatalf("Failed to create candidate: %v", err)
		}
	}
}

// AddResults records placed outcomes for a round
func AddResults(t *testing.T, db *gorm.DB, roundID string, placements map[int]string) {
	t.Helper()
	for placement, value := range placements {
		r := &models.RoundResult{
			ID:        uuid.NewString(),
			RoundID:   roundID,
			Placement: placement,
			Value:     value,
		}
		if err := db.Create(r).Error; err != nil {
			t.Fatalf("Failed to create result: %v", err)
		}
	}
}

// AddPrediction stores a prediction with the given ordered values
func AddPrediction(t *testing.T, db *gorm.DB, participantID, roundID string, values ...string) *models.Prediction {
	t.Helper()
	pred := &models.Prediction{
		ID:            uuid.NewString(),
		ParticipantID: participantID,
		RoundID:       roundID,
	}
	if err := db.Create(pred).Error; err != nil {
		t.Fatalf("Failed to create prediction: %v", err)
	}
	for i, v := range values {
		pv := &models.PredictionValue{
			ID:           uuid.NewString(),
			PredictionID: pred.ID,
			Position:     i + 1,
			Value:        v,
		}
		if err := db.Create(pv).Error; err != nil {
			t.Fatalf("Failed to create prediction value: %v", err)
		}
	}
	return pred
}

// DefaultSchedule returns the stock 6/5/4/3/2/1 point schedule (not saved)
func DefaultSchedule() models.PointSchedule {
	return models.PointSchedule{
		ID:      uuid.NewString(),
		First:   6,
		Second:  5,
		Third:   4,
		Fourth:  3,
		Fifth:   2,
		Other:   1,
		Version: 1,
	}
}
