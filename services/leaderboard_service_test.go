package services

import (
	"testing"
	"time"

	"github.com/andrewbusbee/go-make-your-picks-sub003/models"
	"github.com/andrewbusbee/go-make-your-picks-sub003/testutil"
)

func TestLeaderboardCompetitionRanking(t *testing.T) {
	db := testutil.SetupTestDB(t)
	scoring := NewScoringService(db)
	boards := NewLeaderboardService(db)

	season := testutil.CreateTestSeason(t, db, "Trophy 2026", "trophy-2026")
	alice := testutil.CreateTestParticipant(t, db, season.ID, "Alice", "alice@example.com")
	bob := testutil.CreateTestParticipant(t, db, season.ID, "Bob", "bob@example.com")
	carol := testutil.CreateTestParticipant(t, db, season.ID, "Carol", "carol@example.com")

	round := testutil.CreateTestRound(t, db, season.ID, "Race 1", models.RoundKindSingle, models.RoundStatusCompleted, time.Now().UTC().Add(-time.Hour))
	testutil.AddResults(t, db, round.ID, map[int]string{1: "Verstappen", 2: "Norris"})
	testutil.AddPrediction(t, db, alice.ID, round.ID, "Verstappen") // 6
	testutil.AddPrediction(t, db, bob.ID, round.ID, "Verstappen")   // 6
	testutil.AddPrediction(t, db, carol.ID, round.ID, "Norris")     // 5

	if err := scoring.RecomputeSeason(season.ID); err != nil {
		t.Fatalf("recompute failed: %v", err)
	}

	board, err := boards.assembleTx(db, season)
	if err != nil {
		t.Fatalf("assemble failed: %v", err)
	}
	if len(board.Rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(board.Rows))
	}

	// Tied totals share a rank; the next distinct total skips the tie count.
	if board.Rows[0].Rank != 1 || board.Rows[1].Rank != 1 {
		t.Errorf("expected shared rank 1, got %d and %d", board.Rows[0].Rank, board.Rows[1].Rank)
	}
	if board.Rows[2].Rank != 3 {
		t.Errorf("expected rank 3 after a two-way tie, got %d", board.Rows[2].Rank)
	}
	if board.Rows[2].ParticipantID != carol.ID {
		t.Errorf("expected Carol last, got %s", board.Rows[2].Name)
	}
}

func TestLeaderboardHidesDraftAndActiveRounds(t *testing.T) {
	db := testutil.SetupTestDB(t)
	scoring := NewScoringService(db)
	boards := NewLeaderboardService(db)

	season := testutil.CreateTestSeason(t, db, "Trophy 2026", "trophy-2026")
	testutil.CreateTestParticipant(t, db, season.ID, "Alice", "alice@example.com")

	past := time.Now().UTC().Add(-time.Hour)
	future := time.Now().UTC().Add(time.Hour)
	completed := testutil.CreateTestRound(t, db, season.ID, "Race 1", models.RoundKindSingle, models.RoundStatusCompleted, past)
	testutil.AddResults(t, db, completed.ID, map[int]string{1: "Verstappen"})
	locked := testutil.CreateTestRound(t, db, season.ID, "Race 2", models.RoundKindSingle, models.RoundStatusLocked, past)
	testutil.CreateTestRound(t, db, season.ID, "Race 3", models.RoundKindSingle, models.RoundStatusActive, future)
	testutil.CreateTestRound(t, db, season.ID, "Race 4", models.RoundKindSingle, models.RoundStatusDraft, future)

	if err := scoring.RecomputeSeason(season.ID); err != nil {
		t.Fatalf("recompute failed: %v", err)
	}

	board, err := boards.assembleTx(db, season)
	if err != nil {
		t.Fatalf("assemble failed: %v", err)
	}

	if len(board.Rounds) != 2 {
		t.Fatalf("expected only locked and completed rounds, got %d columns", len(board.Rounds))
	}
	shown := map[string]bool{}
	for _, col := range board.Rounds {
		shown[col.ID] = true
	}
	if !shown[completed.ID] || !shown[locked.ID] {
		t.Error("completed and locked rounds must both appear as columns")
	}
}

func TestLeaderboardZeroFillsMissingScores(t *testing.T) {
	db := testutil.SetupTestDB(t)
	boards := NewLeaderboardService(db)

	season := testutil.CreateTestSeason(t, db, "Trophy 2026", "trophy-2026")
	alice := testutil.CreateTestParticipant(t, db, season.ID, "Alice", "alice@example.com")
	locked := testutil.CreateTestRound(t, db, season.ID, "Race 1", models.RoundKindSingle, models.RoundStatusLocked, time.Now().UTC().Add(-time.Hour))

	// A locked round has no ScoreRecords yet; the column still renders.
	board, err := boards.assembleTx(db, season)
	if err != nil {
		t.Fatalf("assemble failed: %v", err)
	}
	if len(board.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(board.Rows))
	}
	row := board.Rows[0]
	if row.ParticipantID != alice.ID {
		t.Fatalf("unexpected participant %s", row.ParticipantID)
	}
	if pts, ok := row.RoundPoints[locked.ID]; !ok || pts != 0 {
		t.Errorf("expected a zero entry for the unscored locked round, got %v (present=%v)", pts, ok)
	}
	if row.Total != 0 || row.Rank != 1 {
		t.Errorf("expected total 0 rank 1, got total=%d rank=%d", row.Total, row.Rank)
	}
}
