package services

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/andrewbusbee/go-make-your-picks-sub003/models"
	"github.com/andrewbusbee/go-make-your-picks-sub003/testutil"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

func newRoundTestApp(db *gorm.DB) (*fiber.App, *RoundService) {
	tokens := newTestTokenService(db)
	scoring := NewScoringService(db)
	rounds := NewRoundService(db, tokens, scoring)
	app := fiber.New()
	app.Post("/admin/rounds", rounds.CreateRound)
	app.Get("/admin/rounds/:id", rounds.GetRound)
	app.Put("/admin/rounds/:id", rounds.UpdateRound)
	app.Post("/admin/rounds/:id/activate", rounds.ActivateRound)
	app.Post("/admin/rounds/:id/lock", rounds.LockRound)
	app.Post("/admin/rounds/:id/complete", rounds.CompleteRound)
	app.Put("/admin/rounds/:id/results", rounds.UpdateResults)
	return app, rounds
}

func doJSON(t *testing.T, app *fiber.App, method, path string, payload interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		raw, _ := json.Marshal(payload)
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	var parsed map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&parsed)
	return resp, parsed
}

func TestRoundIsLocked(t *testing.T) {
	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	tests := []struct {
		name     string
		status   string
		lockTime time.Time
		want     bool
	}{
		{"active before deadline", models.RoundStatusActive, future, false},
		{"active past deadline", models.RoundStatusActive, past, true},
		{"active exactly at deadline", models.RoundStatusActive, now, false},
		{"draft before deadline", models.RoundStatusDraft, future, false},
		{"locked despite future deadline", models.RoundStatusLocked, future, true},
		{"completed despite future deadline", models.RoundStatusCompleted, future, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := models.Round{Status: tt.status, LockTime: tt.lockTime}
			if got := r.IsLocked(now); got != tt.want {
				t.Errorf("IsLocked = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCreateRoundValidation(t *testing.T) {
	db := testutil.SetupTestDB(t)
	app, _ := newRoundTestApp(db)
	season := testutil.CreateTestSeason(t, db, "Trophy 2026", "trophy-2026")

	lockTime := time.Now().UTC().Add(time.Hour).Format(time.RFC3339)

	resp, _ := doJSON(t, app, "POST", "/admin/rounds", map[string]interface{}{
		"season_id":  season.ID,
		"name":       "Race 1",
		"kind":       "single",
		"lock_time":  lockTime,
		"timezone":   "America/Chicago",
		"candidates": []string{"Verstappen", "Norris"},
	})
	if resp.StatusCode != 201 {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	bad := []map[string]interface{}{
		{"season_id": season.ID, "name": "X", "lock_time": "not-a-time"},
		{"season_id": season.ID, "name": "X", "lock_time": lockTime, "timezone": "Mars/Olympus"},
		{"season_id": season.ID, "name": "X", "kind": "single", "lock_time": lockTime, "candidates": []string{"only-one"}},
		{"season_id": "missing", "name": "X", "lock_time": lockTime, "candidates": []string{"A", "B"}},
		{"season_id": season.ID, "name": "X", "kind": "triple", "lock_time": lockTime},
	}
	for i, payload := range bad {
		resp, _ := doJSON(t, app, "POST", "/admin/rounds", payload)
		if resp.StatusCode != 400 {
			t.Errorf("bad payload %d: expected 400, got %d", i, resp.StatusCode)
		}
	}
}

func TestActivateRoundIssuesLinks(t *testing.T) {
	db := testutil.SetupTestDB(t)
	app, _ := newRoundTestApp(db)

	season := testutil.CreateTestSeason(t, db, "Trophy 2026", "trophy-2026")
	testutil.CreateTestParticipant(t, db, season.ID, "Alice", "alice@example.com")
	testutil.CreateTestParticipant(t, db, season.ID, "Bob", "bob@example.com")
	round := testutil.CreateTestRound(t, db, season.ID, "Race 1", models.RoundKindSingle, models.RoundStatusDraft, time.Now().UTC().Add(time.Hour))
	testutil.AddCandidates(t, db, round.ID, "Verstappen", "Norris")

	resp, parsed := doJSON(t, app, "POST", "/admin/rounds/"+round.ID+"/activate", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if parsed["invited"] != float64(2) {
		t.Errorf("expected 2 invitations, got %v", parsed["invited"])
	}

	var tokenCount int64
	db.Model(&models.AccessToken{}).
		Where("round_id = ? AND kind = ?", round.ID, models.TokenKindPick).
		Count(&tokenCount)
	if tokenCount != 2 {
		t.Errorf("expected a pick token per participant, got %d", tokenCount)
	}

	// Activation is draft-only.
	resp, _ = doJSON(t, app, "POST", "/admin/rounds/"+round.ID+"/activate", nil)
	if resp.StatusCode != 409 {
		t.Errorf("re-activation: expected 409, got %d", resp.StatusCode)
	}
}

func TestCompleteRoundRequiresLockedStatus(t *testing.T) {
	db := testutil.SetupTestDB(t)
	app, _ := newRoundTestApp(db)

	season := testutil.CreateTestSeason(t, db, "Trophy 2026", "trophy-2026")
	results := map[string]interface{}{
		"results": []map[string]interface{}{{"placement": 1, "value": "Verstappen"}},
	}

	for _, status := range []string{models.RoundStatusDraft, models.RoundStatusActive} {
		round := testutil.CreateTestRound(t, db, season.ID, "Race "+status, models.RoundKindSingle, status, time.Now().UTC().Add(time.Hour))
		testutil.AddCandidates(t, db, round.ID, "Verstappen", "Norris")
		resp, _ := doJSON(t, app, "POST", "/admin/rounds/"+round.ID+"/complete", results)
		if resp.StatusCode != 409 {
			t.Errorf("status %s: expected 409, got %d", status, resp.StatusCode)
		}
	}
}

func TestCompleteRoundScoresSynchronously(t *testing.T) {
	db := testutil.SetupTestDB(t)
	app, _ := newRoundTestApp(db)

	season := testutil.CreateTestSeason(t, db, "Trophy 2026", "trophy-2026")
	alice := testutil.CreateTestParticipant(t, db, season.ID, "Alice", "alice@example.com")
	round := testutil.CreateTestRound(t, db, season.ID, "Race 1", models.RoundKindSingle, models.RoundStatusLocked, time.Now().UTC().Add(-time.Hour))
	testutil.AddCandidates(t, db, round.ID, "Verstappen", "Norris")
	testutil.AddPrediction(t, db, alice.ID, round.ID, "Verstappen")

	resp, _ := doJSON(t, app, "POST", "/admin/rounds/"+round.ID+"/complete", map[string]interface{}{
		"results": []map[string]interface{}{
			{"placement": 1, "value": "Verstappen"},
			{"placement": 2, "value": "Norris"},
		},
	})
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	// Scores must already exist the moment the complete call returns.
	var rec models.ScoreRecord
	if err := db.Where("participant_id = ? AND round_id = ?", alice.ID, round.ID).First(&rec).Error; err != nil {
		t.Fatalf("score record missing right after completion: %v", err)
	}
	if rec.Points != 6 {
		t.Errorf("expected 6 points, got %d", rec.Points)
	}

	var got models.Round
	db.First(&got, "id = ?", round.ID)
	if got.Status != models.RoundStatusCompleted || got.CompletedAt == nil {
		t.Errorf("round not completed: status=%s completedAt=%v", got.Status, got.CompletedAt)
	}
}

func TestCompleteRoundValidatesResults(t *testing.T) {
	db := testutil.SetupTestDB(t)
	app, _ := newRoundTestApp(db)

	season := testutil.CreateTestSeason(t, db, "Trophy 2026", "trophy-2026")
	round := testutil.CreateTestRound(t, db, season.ID, "Race 1", models.RoundKindSingle, models.RoundStatusLocked, time.Now().UTC().Add(-time.Hour))
	testutil.AddCandidates(t, db, round.ID, "Verstappen", "Norris")

	bad := []map[string]interface{}{
		{"results": []map[string]interface{}{}},
		{"results": []map[string]interface{}{{"placement": 0, "value": "Verstappen"}}},
		{"results": []map[string]interface{}{{"placement": 6, "value": "Verstappen"}}},
		{"results": []map[string]interface{}{{"placement": 1, "value": ""}}},
		{"results": []map[string]interface{}{{"placement": 1, "value": "Alonso"}}},
	}
	for i, payload := range bad {
		resp, _ := doJSON(t, app, "POST", "/admin/rounds/"+round.ID+"/complete", payload)
		if resp.StatusCode != 400 {
			t.Errorf("bad results %d: expected 400, got %d", i, resp.StatusCode)
		}
	}

	var got models.Round
	db.First(&got, "id = ?", round.ID)
	if got.Status != models.RoundStatusLocked {
		t.Errorf("rejected completion must leave the round locked, got %s", got.Status)
	}
}

func TestUpdateResultsRecomputes(t *testing.T) {
	db := testutil.SetupTestDB(t)
	app, _ := newRoundTestApp(db)

	season := testutil.CreateTestSeason(t, db, "Trophy 2026", "trophy-2026")
	alice := testutil.CreateTestParticipant(t, db, season.ID, "Alice", "alice@example.com")
	round := testutil.CreateTestRound(t, db, season.ID, "Race 1", models.RoundKindSingle, models.RoundStatusLocked, time.Now().UTC().Add(-time.Hour))
	testutil.AddCandidates(t, db, round.ID, "Verstappen", "Norris")
	testutil.AddPrediction(t, db, alice.ID, round.ID, "Norris")

	resp, _ := doJSON(t, app, "POST", "/admin/rounds/"+round.ID+"/complete", map[string]interface{}{
		"results": []map[string]interface{}{{"placement": 1, "value": "Verstappen"}},
	})
	if resp.StatusCode != 200 {
		t.Fatalf("complete returned %d", resp.StatusCode)
	}

	var rec models.ScoreRecord
	db.Where("participant_id = ?", alice.ID).First(&rec)
	if rec.Points != 1 {
		t.Fatalf("expected catch-all 1 point before correction, got %d", rec.Points)
	}

	// Steward decision flips the winner; scores follow immediately.
	resp, _ = doJSON(t, app, "PUT", "/admin/rounds/"+round.ID+"/results", map[string]interface{}{
		"results": []map[string]interface{}{{"placement": 1, "value": "Norris"}},
	})
	if resp.StatusCode != 200 {
		t.Fatalf("results edit returned %d", resp.StatusCode)
	}

	// Fresh struct: recompute rewrites score records under new primary keys,
	// and reusing rec would pin the query to the stale id.
	var after models.ScoreRecord
	db.Where("participant_id = ?", alice.ID).First(&after)
	if after.Points != 6 {
		t.Errorf("expected 6 points after correction, got %d", after.Points)
	}
}

func TestLockDueRounds(t *testing.T) {
	db := testutil.SetupTestDB(t)
	_, rounds := newRoundTestApp(db)

	season := testutil.CreateTestSeason(t, db, "Trophy 2026", "trophy-2026")
	now := time.Now().UTC()
	due := testutil.CreateTestRound(t, db, season.ID, "Due", models.RoundKindSingle, models.RoundStatusActive, now.Add(-time.Minute))
	notDue := testutil.CreateTestRound(t, db, season.ID, "Not due", models.RoundKindSingle, models.RoundStatusActive, now.Add(time.Hour))
	draft := testutil.CreateTestRound(t, db, season.ID, "Draft", models.RoundKindSingle, models.RoundStatusDraft, now.Add(-time.Minute))

	rounds.LockDueRounds(now)

	check := func(id, want string) {
		var r models.Round
		db.First(&r, "id = ?", id)
		if r.Status != want {
			t.Errorf("round %s: expected status %s, got %s", id, want, r.Status)
		}
	}
	check(due.ID, models.RoundStatusLocked)
	check(notDue.ID, models.RoundStatusActive)
	check(draft.ID, models.RoundStatusDraft)
}

func TestLockDueRoundsKeepsOperatorTransitions(t *testing.T) {
	db := testutil.SetupTestDB(t)
	_, rounds := newRoundTestApp(db)

	season := testutil.CreateTestSeason(t, db, "Trophy 2026", "trophy-2026")
	now := time.Now().UTC()

	// A round completed past its deadline must never be demoted back to
	// locked by the sweep.
	done := testutil.CreateTestRound(t, db, season.ID, "Done", models.RoundKindSingle, models.RoundStatusCompleted, now.Add(-time.Hour))
	rounds.LockDueRounds(now)
	var r models.Round
	db.First(&r, "id = ?", done.ID)
	if r.Status != models.RoundStatusCompleted {
		t.Fatalf("sweep demoted a completed round to %s", r.Status)
	}

	// Race the sweep against an operator completing a due round. The
	// sweep writes conditionally on status, so whichever side wins the
	// interleaving the operator's transition must survive.
	racy := testutil.CreateTestRound(t, db, season.ID, "Racy", models.RoundKindSingle, models.RoundStatusActive, now.Add(-time.Minute))
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 25; i++ {
			rounds.LockDueRounds(now)
		}
	}()
	db.Model(&models.Round{}).Where("id = ?", racy.ID).
		Update("status", models.RoundStatusCompleted)
	wg.Wait()
	rounds.LockDueRounds(now)

	db.First(&r, "id = ?", racy.ID)
	if r.Status != models.RoundStatusCompleted {
		t.Errorf("sweep overwrote an operator completion, got %s", r.Status)
	}
}

func TestUpdateRoundRejectsCompleted(t *testing.T) {
	db := testutil.SetupTestDB(t)
	app, _ := newRoundTestApp(db)

	season := testutil.CreateTestSeason(t, db, "Trophy 2026", "trophy-2026")
	round := testutil.CreateTestRound(t, db, season.ID, "Race 1", models.RoundKindSingle, models.RoundStatusCompleted, time.Now().UTC().Add(-time.Hour))

	resp, _ := doJSON(t, app, "PUT", "/admin/rounds/"+round.ID, map[string]interface{}{"name": "Renamed"})
	if resp.StatusCode != 409 {
		t.Errorf("expected 409 editing a completed round, got %d", resp.StatusCode)
	}
}
