package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/debetter/tournament-service/models"
)

type tournamentFixture struct {
	users        *fakeUserRepo
	tournaments  *fakeTournamentRepo
	participants *fakeParticipantRepo
	svc          *tournamentService
}

func newTournamentFixture(now time.Time) *tournamentFixture {
	users := newFakeUserRepo()
	tournaments := newFakeTournamentRepo()
	participants := newFakeParticipantRepo(users)
	svc := &tournamentService{
		tournamentRepo:  tournaments,
		participantRepo: participants,
		userRepo:        users,
		logger:          testLogger(),
		now:             func() time.Time { return now },
	}
	return &tournamentFixture{
		users:        users,
		tournaments:  tournaments,
		participants: participants,
		svc:          svc,
	}
}

func validCreateInput(now time.Time) CreateTournamentInput {
	return CreateTournamentInput{
		Title:       "City Championship",
		Description: "Annual city-wide debate championship",
		Category:    "politics",
		Difficulty:  "intermediate",
		Format:      models.FormatStandard,
		Location:    "Main Hall",
		StartDate:   now.Add(72 * time.Hour),
	}
}

func TestCreateTournamentAdmitsCreator(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fx := newTournamentFixture(now)
	creator := fx.users.mustAddUser("alice", models.RoleOrganizer)

	tournament, err := fx.svc.CreateTournament(context.Background(), creator.ID, validCreateInput(now))
	if err != nil {
		t.Fatalf("CreateTournament: %v", err)
	}

	if tournament.Status != models.StatusUpcoming {
		t.Errorf("status = %q, want %q", tournament.Status, models.StatusUpcoming)
	}
	if tournament.CurrentDebaters != 1 || tournament.CurrentJudges != 0 {
		t.Errorf("counters = %d/%d, want 1/0", tournament.CurrentDebaters, tournament.CurrentJudges)
	}

	p, err := fx.participants.FindByUserAndTournament(context.Background(), creator.ID, tournament.ID)
	if err != nil {
		t.Fatalf("creator not admitted: %v", err)
	}
	if p.Role != models.ParticipantDebater {
		t.Errorf("creator role = %q, want debater", p.Role)
	}
}

func TestCreateTournamentJudgeCreatorCountsAsJudge(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fx := newTournamentFixture(now)
	creator := fx.users.mustAddUser("judy", models.RoleJudge)

	tournament, err := fx.svc.CreateTournament(context.Background(), creator.ID, validCreateInput(now))
	if err != nil {
		t.Fatalf("CreateTournament: %v", err)
	}
	if tournament.CurrentDebaters != 0 || tournament.CurrentJudges != 1 {
		t.Errorf("counters = %d/%d, want 0/1", tournament.CurrentDebaters, tournament.CurrentJudges)
	}
}

func TestCreateTournamentReportsAllViolations(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fx := newTournamentFixture(now)
	creator := fx.users.mustAddUser("alice", models.RoleOrganizer)

	_, err := fx.svc.CreateTournament(context.Background(), creator.ID, CreateTournamentInput{
		Category:   "cooking",
		Difficulty: "impossible",
		Format:     models.FormatStandard,
		StartDate:  now.Add(-time.Hour),
	})

	var v *ValidationError
	if !errors.As(err, &v) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	for _, field := range []string{"title", "description", "location", "category", "difficulty", "start_date"} {
		if _, ok := v.Fields[field]; !ok {
			t.Errorf("missing violation for %q: %v", field, v.Fields)
		}
	}
}

func TestCreateTournamentFormatNoticeRules(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fx := newTournamentFixture(now)
	creator := fx.users.mustAddUser("alice", models.RoleOrganizer)

	t.Run("too soon", func(t *testing.T) {
		input := validCreateInput(now)
		input.Format = models.FormatTournament
		input.StartDate = now.Add(24 * time.Hour)
		deadline := now.Add(-time.Hour)
		input.RegistrationDeadline = &deadline

		_, err := fx.svc.CreateTournament(context.Background(), creator.ID, input)
		var v *ValidationError
		if !errors.As(err, &v) {
			t.Fatalf("expected *ValidationError, got %v", err)
		}
		if _, ok := v.Fields["start_date"]; !ok {
			t.Errorf("missing start_date violation: %v", v.Fields)
		}
	})

	t.Run("deadline missing", func(t *testing.T) {
		input := validCreateInput(now)
		input.Format = models.FormatTournament

		_, err := fx.svc.CreateTournament(context.Background(), creator.ID, input)
		var v *ValidationError
		if !errors.As(err, &v) {
			t.Fatalf("expected *ValidationError, got %v", err)
		}
		if _, ok := v.Fields["registration_deadline"]; !ok {
			t.Errorf("missing registration_deadline violation: %v", v.Fields)
		}
	})

	t.Run("deadline too close to start", func(t *testing.T) {
		input := validCreateInput(now)
		input.Format = models.FormatTournament
		deadline := input.StartDate.Add(-time.Hour)
		input.RegistrationDeadline = &deadline

		_, err := fx.svc.CreateTournament(context.Background(), creator.ID, input)
		var v *ValidationError
		if !errors.As(err, &v) {
			t.Fatalf("expected *ValidationError, got %v", err)
		}
		if _, ok := v.Fields["registration_deadline"]; !ok {
			t.Errorf("missing registration_deadline violation: %v", v.Fields)
		}
	})

	t.Run("valid tournament format", func(t *testing.T) {
		input := validCreateInput(now)
		input.Format = models.FormatTournament
		deadline := input.StartDate.Add(-36 * time.Hour)
		input.RegistrationDeadline = &deadline

		if _, err := fx.svc.CreateTournament(context.Background(), creator.ID, input); err != nil {
			t.Fatalf("CreateTournament: %v", err)
		}
	})
}

func TestJoinTournament(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fx := newTournamentFixture(now)
	creator := fx.users.mustAddUser("alice", models.RoleOrganizer)
	tournament, err := fx.svc.CreateTournament(context.Background(), creator.ID, validCreateInput(now))
	if err != nil {
		t.Fatalf("CreateTournament: %v", err)
	}

	bob := fx.users.mustAddUser("bob", models.RoleDebater)
	joined, err := fx.svc.JoinTournament(context.Background(), tournament.ID, bob.ID, JoinTournamentInput{})
	if err != nil {
		t.Fatalf("JoinTournament: %v", err)
	}
	if joined.CurrentDebaters != 2 {
		t.Errorf("current debaters = %d, want 2", joined.CurrentDebaters)
	}

	if _, err := fx.svc.JoinTournament(context.Background(), tournament.ID, bob.ID, JoinTournamentInput{}); !errors.Is(err, ErrAlreadyParticipant) {
		t.Errorf("second join error = %v, want ErrAlreadyParticipant", err)
	}
}

func TestJoinTournamentCapacityRace(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fx := newTournamentFixture(now)
	creator := fx.users.mustAddUser("alice", models.RoleOrganizer)

	input := validCreateInput(now)
	input.MaxParticipants = 4 // creator + 3 open slots
	tournament, err := fx.svc.CreateTournament(context.Background(), creator.ID, input)
	if err != nil {
		t.Fatalf("CreateTournament: %v", err)
	}

	const contenders = 20
	userIDs := make([]int, contenders)
	for i := range userIDs {
		userIDs[i] = fx.users.mustAddUser(fmt.Sprintf("debater%d", i), models.RoleDebater).ID
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	full := 0
	for _, userID := range userIDs {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			_, err := fx.svc.JoinTournament(context.Background(), tournament.ID, id, JoinTournamentInput{})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				admitted++
			case errors.Is(err, ErrCapacityExceeded):
				full++
			default:
				t.Errorf("unexpected join error: %v", err)
			}
		}(userID)
	}
	wg.Wait()

	if admitted != 3 {
		t.Errorf("admitted = %d, want 3", admitted)
	}
	if full != contenders-3 {
		t.Errorf("capacity rejections = %d, want %d", full, contenders-3)
	}

	final, err := fx.tournaments.GetByID(context.Background(), nil, tournament.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got := final.CurrentDebaters + final.CurrentJudges; got != 4 {
		t.Errorf("total admitted = %d, exceeds max participants 4", got)
	}
}

func TestJoinTournamentAfterDeadline(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fx := newTournamentFixture(now)
	creator := fx.users.mustAddUser("alice", models.RoleOrganizer)

	input := validCreateInput(now)
	input.Format = models.FormatTournament
	deadline := now.Add(-time.Hour)
	input.StartDate = now.Add(72 * time.Hour)
	input.RegistrationDeadline = &deadline
	// Bypass create validation: seed the tournament directly with an expired
	// deadline.
	tournament := &models.Tournament{
		Title:                input.Title,
		Format:               models.FormatTournament,
		Status:               models.StatusUpcoming,
		StartDate:            input.StartDate,
		RegistrationDeadline: &deadline,
		MaxDebaters:          models.DefaultMaxDebaters,
		MaxJudges:            models.DefaultMaxJudges,
		CreatorID:            creator.ID,
	}
	if err := fx.tournaments.Create(context.Background(), nil, tournament); err != nil {
		t.Fatal(err)
	}

	bob := fx.users.mustAddUser("bob", models.RoleDebater)
	if _, err := fx.svc.JoinTournament(context.Background(), tournament.ID, bob.ID, JoinTournamentInput{}); !errors.Is(err, ErrRegistrationClosed) {
		t.Errorf("join after deadline error = %v, want ErrRegistrationClosed", err)
	}
}

func TestLeaveTournamentReleasesSlot(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fx := newTournamentFixture(now)
	creator := fx.users.mustAddUser("alice", models.RoleOrganizer)
	tournament, err := fx.svc.CreateTournament(context.Background(), creator.ID, validCreateInput(now))
	if err != nil {
		t.Fatal(err)
	}

	bob := fx.users.mustAddUser("bob", models.RoleDebater)
	if _, err := fx.svc.JoinTournament(context.Background(), tournament.ID, bob.ID, JoinTournamentInput{}); err != nil {
		t.Fatal(err)
	}

	left, err := fx.svc.LeaveTournament(context.Background(), tournament.ID, bob.ID)
	if err != nil {
		t.Fatalf("LeaveTournament: %v", err)
	}
	if left.CurrentDebaters != 1 {
		t.Errorf("current debaters after leave = %d, want 1", left.CurrentDebaters)
	}

	if _, err := fx.svc.LeaveTournament(context.Background(), tournament.ID, bob.ID); !errors.Is(err, ErrNotAParticipant) {
		t.Errorf("second leave error = %v, want ErrNotAParticipant", err)
	}
}

func TestUpdateTournamentStatusForwardOnly(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fx := newTournamentFixture(now)
	creator := fx.users.mustAddUser("alice", models.RoleOrganizer)
	tournament, err := fx.svc.CreateTournament(context.Background(), creator.ID, validCreateInput(now))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := fx.svc.UpdateTournamentStatus(context.Background(), tournament.ID, creator.ID, models.StatusInProgress); err != nil {
		t.Fatalf("advance to in-progress: %v", err)
	}
	if _, err := fx.svc.UpdateTournamentStatus(context.Background(), tournament.ID, creator.ID, models.StatusUpcoming); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("regression error = %v, want ErrInvalidTransition", err)
	}

	other := fx.users.mustAddUser("mallory", models.RoleOrganizer)
	if _, err := fx.svc.UpdateTournamentStatus(context.Background(), tournament.ID, other.ID, models.StatusCompleted); !errors.Is(err, ErrCreatorOnly) {
		t.Errorf("non-creator error = %v, want ErrCreatorOnly", err)
	}
}

func TestAdvanceStatusesByDates(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fx := newTournamentFixture(now)
	creator := fx.users.mustAddUser("alice", models.RoleOrganizer)
	tournament, err := fx.svc.CreateTournament(context.Background(), creator.ID, validCreateInput(now))
	if err != nil {
		t.Fatal(err)
	}

	// Move the clock past the start date.
	fx.svc.now = func() time.Time { return now.Add(100 * time.Hour) }
	if err := fx.svc.AdvanceStatusesByDates(context.Background()); err != nil {
		t.Fatalf("AdvanceStatusesByDates: %v", err)
	}

	updated, err := fx.svc.GetTournamentByID(context.Background(), tournament.ID)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != models.StatusInProgress {
		t.Errorf("status = %q, want in-progress", updated.Status)
	}

	// Completed stays an explicit creator action.
	if err := fx.svc.AdvanceStatusesByDates(context.Background()); err != nil {
		t.Fatal(err)
	}
	updated, _ = fx.svc.GetTournamentByID(context.Background(), tournament.ID)
	if updated.Status != models.StatusInProgress {
		t.Errorf("status after second pass = %q, want in-progress", updated.Status)
	}
}

func TestAdvanceStatusesByDatesKeepsManualCompletion(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fx := newTournamentFixture(now)
	creator := fx.users.mustAddUser("alice", models.RoleOrganizer)
	tournament, err := fx.svc.CreateTournament(context.Background(), creator.ID, validCreateInput(now))
	if err != nil {
		t.Fatal(err)
	}

	fx.svc.now = func() time.Time { return now.Add(100 * time.Hour) }

	// The creator completes the tournament after the scheduler has taken its
	// snapshot but before it writes.
	fx.tournaments.afterListDue = func() {
		fx.tournaments.afterListDue = nil
		if err := fx.tournaments.UpdateStatus(context.Background(), nil, tournament.ID, models.StatusCompleted); err != nil {
			t.Error(err)
		}
	}
	if err := fx.svc.AdvanceStatusesByDates(context.Background()); err != nil {
		t.Fatalf("AdvanceStatusesByDates: %v", err)
	}

	updated, err := fx.svc.GetTournamentByID(context.Background(), tournament.ID)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != models.StatusCompleted {
		t.Errorf("status = %q, want completed to survive the scheduler pass", updated.Status)
	}
}

func TestJoinAndLeaveJudgeUsesJudgeCounter(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fx := newTournamentFixture(now)
	creator := fx.users.mustAddUser("alice", models.RoleOrganizer)
	tournament, err := fx.svc.CreateTournament(context.Background(), creator.ID, validCreateInput(now))
	if err != nil {
		t.Fatal(err)
	}

	judy := fx.users.mustAddUser("judy", models.RoleJudge)
	joined, err := fx.svc.JoinTournament(context.Background(), tournament.ID, judy.ID, JoinTournamentInput{})
	if err != nil {
		t.Fatalf("JoinTournament: %v", err)
	}
	if joined.CurrentJudges != 1 || joined.CurrentDebaters != 1 {
		t.Errorf("counters after judge join = %d/%d debaters/judges, want 1/1",
			joined.CurrentDebaters, joined.CurrentJudges)
	}

	left, err := fx.svc.LeaveTournament(context.Background(), tournament.ID, judy.ID)
	if err != nil {
		t.Fatalf("LeaveTournament: %v", err)
	}
	if left.CurrentJudges != 0 || left.CurrentDebaters != 1 {
		t.Errorf("counters after judge leave = %d/%d debaters/judges, want 1/0",
			left.CurrentDebaters, left.CurrentJudges)
	}
}

func TestLeaveTournamentOnlyWhileUpcoming(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fx := newTournamentFixture(now)
	creator := fx.users.mustAddUser("alice", models.RoleOrganizer)
	tournament, err := fx.svc.CreateTournament(context.Background(), creator.ID, validCreateInput(now))
	if err != nil {
		t.Fatal(err)
	}
	bob := fx.users.mustAddUser("bob", models.RoleDebater)
	if _, err := fx.svc.JoinTournament(context.Background(), tournament.ID, bob.ID, JoinTournamentInput{}); err != nil {
		t.Fatal(err)
	}

	if _, err := fx.svc.UpdateTournamentStatus(context.Background(), tournament.ID, creator.ID, models.StatusInProgress); err != nil {
		t.Fatal(err)
	}

	if _, err := fx.svc.LeaveTournament(context.Background(), tournament.ID, bob.ID); !errors.Is(err, ErrRegistrationClosed) {
		t.Fatalf("leave after start error = %v, want ErrRegistrationClosed", err)
	}

	// Membership and counters are untouched by the rejected leave.
	updated, err := fx.svc.GetTournamentByID(context.Background(), tournament.ID)
	if err != nil {
		t.Fatal(err)
	}
	if updated.CurrentDebaters != 2 {
		t.Errorf("current debaters = %d, want 2", updated.CurrentDebaters)
	}
	if _, err := fx.participants.FindByUserAndTournament(context.Background(), bob.ID, tournament.ID); err != nil {
		t.Errorf("participant record gone after rejected leave: %v", err)
	}
}

func TestUpdateTournamentCreatorOnlyPatch(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fx := newTournamentFixture(now)
	creator := fx.users.mustAddUser("alice", models.RoleOrganizer)
	tournament, err := fx.svc.CreateTournament(context.Background(), creator.ID, validCreateInput(now))
	if err != nil {
		t.Fatal(err)
	}

	other := fx.users.mustAddUser("bob", models.RoleDebater)
	title := "Renamed"
	if _, err := fx.svc.UpdateTournament(context.Background(), tournament.ID, other.ID, UpdateTournamentInput{Title: &title}); !errors.Is(err, ErrCreatorOnly) {
		t.Fatalf("non-creator update error = %v, want ErrCreatorOnly", err)
	}

	updated, err := fx.svc.UpdateTournament(context.Background(), tournament.ID, creator.ID, UpdateTournamentInput{Title: &title})
	if err != nil {
		t.Fatalf("UpdateTournament: %v", err)
	}
	if updated.Title != "Renamed" {
		t.Errorf("title = %q, want Renamed", updated.Title)
	}
}
