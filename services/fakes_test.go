package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/debetter/tournament-service/models"
	"github.com/debetter/tournament-service/repositories"
	"github.com/debetter/tournament-service/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeUserRepo struct {
	mu     sync.Mutex
	nextID int
	users  map[int]*models.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{nextID: 1, users: make(map[int]*models.User)}
}

func (r *fakeUserRepo) Create(ctx context.Context, u *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == u.Email {
			return repositories.ErrUserEmailConflict
		}
		if existing.Username == u.Username {
			return repositories.ErrUserNameConflict
		}
	}
	u.ID = r.nextID
	r.nextID++
	u.CreatedAt = time.Now()
	cp := *u
	r.users[u.ID] = &cp
	return nil
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id int) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repositories.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repositories.ErrUserNotFound
}

func (r *fakeUserRepo) ListByIDs(ctx context.Context, ids []int) ([]*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	users := make([]*models.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := r.users[id]; ok {
			cp := *u
			users = append(users, &cp)
		}
	}
	return users, nil
}

// mustAddUser seeds a user directly, bypassing validation.
func (r *fakeUserRepo) mustAddUser(username string, role models.UserRole) *models.User {
	u := &models.User{Username: username, Email: username + "@example.com", Role: role}
	if err := r.Create(context.Background(), u); err != nil {
		panic(err)
	}
	return u
}

type fakeTournamentRepo struct {
	mu          sync.Mutex
	nextID      int
	tournaments map[int]*models.Tournament

	// afterListDue runs after ListDueForStatusAdvance returns its snapshot,
	// outside the lock, so tests can interleave writes with the scheduler.
	afterListDue func()
}

func newFakeTournamentRepo() *fakeTournamentRepo {
	return &fakeTournamentRepo{nextID: 1, tournaments: make(map[int]*models.Tournament)}
}

func (r *fakeTournamentRepo) Create(ctx context.Context, exec repositories.SQLExecutor, t *models.Tournament) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t.ID = r.nextID
	r.nextID++
	t.CreatedAt = time.Now()
	cp := *t
	r.tournaments[t.ID] = &cp
	return nil
}

func (r *fakeTournamentRepo) GetByID(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Tournament, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tournaments[id]
	if !ok {
		return nil, repositories.ErrTournamentNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *fakeTournamentRepo) List(ctx context.Context, filter repositories.ListTournamentsFilter) ([]models.Tournament, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Tournament, 0, len(r.tournaments))
	for _, t := range r.tournaments {
		if filter.Category != nil && t.Category != *filter.Category {
			continue
		}
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		if filter.Format != nil && t.Format != *filter.Format {
			continue
		}
		if filter.CreatorID != nil && t.CreatorID != *filter.CreatorID {
			continue
		}
		out = append(out, *t)
	}
	return out, nil
}

func (r *fakeTournamentRepo) Update(ctx context.Context, t *models.Tournament) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tournaments[t.ID]; !ok {
		return repositories.ErrTournamentNotFound
	}
	cp := *t
	r.tournaments[t.ID] = &cp
	return nil
}

func (r *fakeTournamentRepo) UpdateStatus(ctx context.Context, exec repositories.SQLExecutor, id int, status models.TournamentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.Status = status
	return nil
}

func (r *fakeTournamentRepo) AdvanceStatus(ctx context.Context, exec repositories.SQLExecutor, id int, from, to models.TournamentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tournaments[id]
	if !ok || t.Status != from {
		return repositories.ErrTournamentStatusChanged
	}
	t.Status = to
	return nil
}

func (r *fakeTournamentRepo) UpdateMapKey(ctx context.Context, id int, mapKey *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.MapKey = mapKey
	return nil
}

// ReserveSlot mirrors the conditional-update semantics of the SQL
// implementation: check and increment happen under one lock.
func (r *fakeTournamentRepo) ReserveSlot(ctx context.Context, exec repositories.SQLExecutor, id int, role models.ParticipantRole, format models.TournamentFormat) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	if format == models.FormatStandard {
		if t.CurrentDebaters+t.CurrentJudges >= t.MaxParticipants {
			return repositories.ErrTournamentSlotsFull
		}
	} else if role == models.ParticipantJudge {
		if t.CurrentJudges >= t.MaxJudges {
			return repositories.ErrTournamentSlotsFull
		}
	} else if t.CurrentDebaters >= t.MaxDebaters {
		return repositories.ErrTournamentSlotsFull
	}
	if role == models.ParticipantJudge {
		t.CurrentJudges++
	} else {
		t.CurrentDebaters++
	}
	return nil
}

func (r *fakeTournamentRepo) ReleaseSlot(ctx context.Context, exec repositories.SQLExecutor, id int, role models.ParticipantRole) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	if role == models.ParticipantJudge {
		if t.CurrentJudges > 0 {
			t.CurrentJudges--
		}
	} else if t.CurrentDebaters > 0 {
		t.CurrentDebaters--
	}
	return nil
}

func (r *fakeTournamentRepo) ListDueForStatusAdvance(ctx context.Context, now time.Time) ([]*models.Tournament, error) {
	r.mu.Lock()
	var due []*models.Tournament
	for _, t := range r.tournaments {
		if t.Status == models.StatusUpcoming && !t.StartDate.After(now) {
			cp := *t
			due = append(due, &cp)
		}
	}
	r.mu.Unlock()
	if r.afterListDue != nil {
		r.afterListDue()
	}
	return due, nil
}

type fakeParticipantRepo struct {
	mu           sync.Mutex
	nextID       int
	participants []*models.Participant
	users        *fakeUserRepo
}

func newFakeParticipantRepo(users *fakeUserRepo) *fakeParticipantRepo {
	return &fakeParticipantRepo{nextID: 1, users: users}
}

func (r *fakeParticipantRepo) Create(ctx context.Context, exec repositories.SQLExecutor, p *models.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.participants {
		if existing.TournamentID == p.TournamentID && existing.UserID == p.UserID {
			return repositories.ErrParticipantConflict
		}
	}
	p.ID = r.nextID
	r.nextID++
	p.CreatedAt = time.Now()
	cp := *p
	r.participants = append(r.participants, &cp)
	return nil
}

func (r *fakeParticipantRepo) FindByUserAndTournament(ctx context.Context, userID, tournamentID int) (*models.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.participants {
		if p.UserID == userID && p.TournamentID == tournamentID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, repositories.ErrParticipantNotFound
}

func (r *fakeParticipantRepo) ListByTournament(ctx context.Context, tournamentID int, roleFilter *models.ParticipantRole) ([]*models.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Participant, 0)
	for _, p := range r.participants {
		if p.TournamentID != tournamentID {
			continue
		}
		if roleFilter != nil && p.Role != *roleFilter {
			continue
		}
		cp := *p
		if r.users != nil {
			if u, err := r.users.GetByID(ctx, p.UserID); err == nil {
				cp.User = u
			}
		}
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeParticipantRepo) Delete(ctx context.Context, exec repositories.SQLExecutor, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, p := range r.participants {
		if p.ID == id {
			r.participants = append(r.participants[:i], r.participants[i+1:]...)
			return nil
		}
	}
	return repositories.ErrParticipantNotFound
}

type fakeTeamRepo struct {
	mu     sync.Mutex
	nextID int
	teams  []*models.Team

	// postings, when set, models the foreign key from postings to teams.
	postings *fakePostingRepo
}

func newFakeTeamRepo() *fakeTeamRepo {
	return &fakeTeamRepo{nextID: 1}
}

func (r *fakeTeamRepo) Create(ctx context.Context, exec repositories.SQLExecutor, team *models.Team) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	team.ID = r.nextID
	r.nextID++
	team.CreatedAt = time.Now()
	cp := *team
	r.teams = append(r.teams, &cp)
	return nil
}

func (r *fakeTeamRepo) GetByID(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Team, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.teams {
		if t.ID == id {
			cp := *t
			return &cp, nil
		}
	}
	return nil, repositories.ErrTeamNotFound
}

func (r *fakeTeamRepo) ListByTournament(ctx context.Context, exec repositories.SQLExecutor, tournamentID int) ([]*models.Team, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Team, 0)
	for _, t := range r.teams {
		if t.TournamentID == tournamentID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeTeamRepo) ReplaceAll(ctx context.Context, exec repositories.SQLExecutor, tournamentID int, teams []*models.Team) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.postings != nil {
		for _, t := range r.teams {
			if t.TournamentID == tournamentID && r.postings.referencesTeam(t.ID) {
				return repositories.ErrTeamInUse
			}
		}
	}
	kept := r.teams[:0]
	for _, t := range r.teams {
		if t.TournamentID != tournamentID {
			kept = append(kept, t)
		}
	}
	r.teams = kept
	for _, team := range teams {
		team.ID = r.nextID
		r.nextID++
		team.CreatedAt = time.Now()
		cp := *team
		r.teams = append(r.teams, &cp)
	}
	return nil
}

func (r *fakeTeamRepo) RecordWin(ctx context.Context, exec repositories.SQLExecutor, teamID, points int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.teams {
		if t.ID == teamID {
			t.Wins++
			t.Points += points
			return nil
		}
	}
	return repositories.ErrTeamNotFound
}

func (r *fakeTeamRepo) RecordLoss(ctx context.Context, exec repositories.SQLExecutor, teamID, points int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.teams {
		if t.ID == teamID {
			t.Losses++
			t.Points += points
			return nil
		}
	}
	return repositories.ErrTeamNotFound
}

type fakePostingRepo struct {
	mu       sync.Mutex
	nextID   int
	postings []*models.Posting

	markNotifiedErr error
}

func newFakePostingRepo() *fakePostingRepo {
	return &fakePostingRepo{nextID: 1}
}

func (r *fakePostingRepo) Create(ctx context.Context, exec repositories.SQLExecutor, p *models.Posting) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.ID = r.nextID
	r.nextID++
	p.CreatedAt = time.Now()
	cp := *p
	cp.JudgeIDs = append([]int(nil), p.JudgeIDs...)
	r.postings = append(r.postings, &cp)
	return nil
}

func (r *fakePostingRepo) referencesTeam(teamID int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.postings {
		if p.Team1ID == teamID || p.Team2ID == teamID {
			return true
		}
	}
	return false
}

func (r *fakePostingRepo) find(id int) *models.Posting {
	for _, p := range r.postings {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (r *fakePostingRepo) GetByID(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Posting, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.find(id)
	if p == nil {
		return nil, repositories.ErrPostingNotFound
	}
	cp := *p
	cp.JudgeIDs = append([]int(nil), p.JudgeIDs...)
	return &cp, nil
}

func (r *fakePostingRepo) ListByTournament(ctx context.Context, tournamentID int, filter repositories.ListPostingsFilter) ([]*models.Posting, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Posting, 0)
	for _, p := range r.postings {
		if p.TournamentID != tournamentID {
			continue
		}
		if filter.Status != nil && p.Status != *filter.Status {
			continue
		}
		if filter.JudgeID != nil && !p.HasJudge(*filter.JudgeID) {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakePostingRepo) ListByJudge(ctx context.Context, judgeID int) ([]*models.Posting, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Posting, 0)
	for _, p := range r.postings {
		if p.HasJudge(judgeID) {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakePostingRepo) UpdateStatus(ctx context.Context, exec repositories.SQLExecutor, id int, status models.PostingStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.find(id)
	if p == nil {
		return repositories.ErrPostingNotFound
	}
	p.Status = status
	return nil
}

func (r *fakePostingRepo) RecordOutcome(ctx context.Context, exec repositories.SQLExecutor, id, winnerID, team1Score, team2Score int, comments string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.find(id)
	if p == nil {
		return repositories.ErrPostingNotFound
	}
	p.WinnerID = &winnerID
	p.Team1Score = &team1Score
	p.Team2Score = &team2Score
	p.Comments = &comments
	p.Status = models.PostingCompleted
	return nil
}

func (r *fakePostingRepo) MarkJudgesNotified(ctx context.Context, id int, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.markNotifiedErr != nil {
		return r.markNotifiedErr
	}
	p := r.find(id)
	if p == nil {
		return repositories.ErrPostingNotFound
	}
	p.JudgesNotified = true
	p.NotifiedAt = &at
	return nil
}

func (r *fakePostingRepo) UpdateBallotKey(ctx context.Context, id int, ballotKey *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.find(id)
	if p == nil {
		return repositories.ErrPostingNotFound
	}
	p.BallotKey = ballotKey
	return nil
}

type fakeEvaluationRepo struct {
	mu          sync.Mutex
	nextID      int
	evaluations []*models.Evaluation
}

func newFakeEvaluationRepo() *fakeEvaluationRepo {
	return &fakeEvaluationRepo{nextID: 1}
}

func (r *fakeEvaluationRepo) Create(ctx context.Context, exec repositories.SQLExecutor, e *models.Evaluation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.evaluations {
		if existing.PostingID == e.PostingID && existing.JudgeID == e.JudgeID {
			return repositories.ErrEvaluationConflict
		}
	}
	e.ID = r.nextID
	r.nextID++
	e.CreatedAt = time.Now()
	cp := *e
	r.evaluations = append(r.evaluations, &cp)
	return nil
}

func (r *fakeEvaluationRepo) GetByID(ctx context.Context, id int) (*models.Evaluation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.evaluations {
		if e.ID == id {
			cp := *e
			return &cp, nil
		}
	}
	return nil, repositories.ErrEvaluationNotFound
}

func (r *fakeEvaluationRepo) ListByPosting(ctx context.Context, postingID int) ([]*models.Evaluation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Evaluation, 0)
	for _, e := range r.evaluations {
		if e.PostingID == postingID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeEvaluationRepo) ListByTournament(ctx context.Context, exec repositories.SQLExecutor, tournamentID int) ([]*models.Evaluation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Evaluation, 0, len(r.evaluations))
	for _, e := range r.evaluations {
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

type notifierCall struct {
	kind    string
	posting int
	judges  int
	members int
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []notifierCall
}

func (n *recordingNotifier) PostingCreated(ctx context.Context, t *models.Tournament, p *models.Posting, judges, members []models.UserRef) {
	n.record("created", p, judges, members)
}

func (n *recordingNotifier) PostingReminder(ctx context.Context, t *models.Tournament, p *models.Posting, judges, members []models.UserRef) {
	n.record("reminder", p, judges, members)
}

func (n *recordingNotifier) record(kind string, p *models.Posting, judges, members []models.UserRef) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, notifierCall{kind: kind, posting: p.ID, judges: len(judges), members: len(members)})
}

type fakeUploader struct {
	mu      sync.Mutex
	uploads []string
	deletes []string
}

func (u *fakeUploader) Upload(ctx context.Context, key string, contentType string, reader io.Reader) (*storage.UploadResult, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.uploads = append(u.uploads, key)
	return &storage.UploadResult{Key: key, Location: "https://cdn.test/" + key}, nil
}

func (u *fakeUploader) Delete(ctx context.Context, key string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.deletes = append(u.deletes, key)
	return nil
}

func (u *fakeUploader) GetPublicURL(key string) string {
	return "https://cdn.test/" + key
}
