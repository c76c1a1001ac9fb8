package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/debetter/tournament-service/models"
	"github.com/debetter/tournament-service/repositories"
	"github.com/debetter/tournament-service/storage"
)

type CreatePostingInput struct {
	Team1ID        int        `json:"team1_id"`
	Team2ID        int        `json:"team2_id"`
	JudgeIDs       []int      `json:"judge_ids"`
	Location       string     `json:"location,omitempty"`
	VirtualLink    string     `json:"virtual_link,omitempty"`
	Theme          string     `json:"theme,omitempty"`
	UseCustomModel bool       `json:"use_custom_model"`
	CustomModel    string     `json:"custom_model,omitempty"`
	ScheduledTime  *time.Time `json:"scheduled_time,omitempty"`
}

// ReminderResult reports how many recipients a reminder went out to.
type ReminderResult struct {
	JudgesNotified      int `json:"judges_notified"`
	TeamMembersNotified int `json:"team_members_notified"`
}

type PostingService interface {
	CreatePosting(ctx context.Context, tournamentID, callerID int, input CreatePostingInput) (*models.Posting, error)
	GetPosting(ctx context.Context, id int) (*models.Posting, error)
	ListPostings(ctx context.Context, tournamentID int, filter repositories.ListPostingsFilter) ([]*models.Posting, error)
	UpdatePostingStatus(ctx context.Context, id, callerID int, status models.PostingStatus) (*models.Posting, error)
	SendReminder(ctx context.Context, id, callerID int) (*ReminderResult, error)
	JudgeAssignments(ctx context.Context, judgeID int) ([]*models.Posting, error)
	UploadBallot(ctx context.Context, id, callerID int, contentType string, r io.Reader) (*models.Posting, error)
}

type postingService struct {
	db              *sql.DB
	postingRepo     repositories.PostingRepository
	tournamentRepo  repositories.TournamentRepository
	teamRepo        repositories.TeamRepository
	participantRepo repositories.ParticipantRepository
	userRepo        repositories.UserRepository
	notifier        Notifier
	uploader        storage.FileUploader
	logger          *slog.Logger
	now             func() time.Time
}

func NewPostingService(
	db *sql.DB,
	postingRepo repositories.PostingRepository,
	tournamentRepo repositories.TournamentRepository,
	teamRepo repositories.TeamRepository,
	participantRepo repositories.ParticipantRepository,
	userRepo repositories.UserRepository,
	notifier Notifier,
	uploader storage.FileUploader,
	logger *slog.Logger,
) PostingService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &postingService{
		db:              db,
		postingRepo:     postingRepo,
		tournamentRepo:  tournamentRepo,
		teamRepo:        teamRepo,
		participantRepo: participantRepo,
		userRepo:        userRepo,
		notifier:        notifier,
		uploader:        uploader,
		logger:          logger,
		now:             time.Now,
	}
}

// CreatePosting validates the whole request before touching storage, so the
// caller gets every violated field in one response rather than one at a time.
func (s *postingService) CreatePosting(ctx context.Context, tournamentID, callerID int, input CreatePostingInput) (*models.Posting, error) {
	t, err := s.tournamentRepo.GetByID(ctx, nil, tournamentID)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}
	if t.CreatorID != callerID {
		return nil, ErrCreatorOnly
	}

	v := NewValidationError()

	if input.Team1ID == input.Team2ID {
		v.Add("team2_id", "a team cannot debate itself")
	}
	for field, teamID := range map[string]int{"team1_id": input.Team1ID, "team2_id": input.Team2ID} {
		team, err := s.teamRepo.GetByID(ctx, nil, teamID)
		if err != nil {
			if errors.Is(err, repositories.ErrTeamNotFound) {
				v.Add(field, "team does not exist")
				continue
			}
			return nil, err
		}
		if team.TournamentID != tournamentID {
			v.Add(field, "team belongs to a different tournament")
		}
	}

	if len(input.JudgeIDs) == 0 {
		v.Add("judge_ids", "at least one judge is required")
	}
	seen := make(map[int]bool, len(input.JudgeIDs))
	for _, judgeID := range input.JudgeIDs {
		if seen[judgeID] {
			v.Add("judge_ids", fmt.Sprintf("judge %d listed more than once", judgeID))
			continue
		}
		seen[judgeID] = true
		p, err := s.participantRepo.FindByUserAndTournament(ctx, judgeID, tournamentID)
		if err != nil {
			if errors.Is(err, repositories.ErrParticipantNotFound) {
				v.Add("judge_ids", fmt.Sprintf("user %d is not admitted to this tournament", judgeID))
				continue
			}
			return nil, err
		}
		if p.Role != models.ParticipantJudge {
			v.Add("judge_ids", fmt.Sprintf("user %d is not a judge in this tournament", judgeID))
		}
	}

	if input.Location == "" && input.VirtualLink == "" {
		v.Add("location", "either a location or a virtual link is required")
	}
	if input.UseCustomModel {
		if input.CustomModel == "" {
			v.Add("custom_model", "is required when use_custom_model is set")
		}
	} else if input.Theme == "" {
		v.Add("theme", "a theme is required unless a custom model is provided")
	}

	if err := v.ErrOrNil(); err != nil {
		return nil, err
	}

	posting := &models.Posting{
		TournamentID:   tournamentID,
		Team1ID:        input.Team1ID,
		Team2ID:        input.Team2ID,
		Location:       input.Location,
		VirtualLink:    input.VirtualLink,
		Theme:          input.Theme,
		UseCustomModel: input.UseCustomModel,
		CustomModel:    input.CustomModel,
		ScheduledTime:  input.ScheduledTime,
		Status:         models.PostingScheduled,
		CreatedBy:      callerID,
		JudgeIDs:       input.JudgeIDs,
	}

	err = withTx(ctx, s.db, func(exec repositories.SQLExecutor) error {
		return s.postingRepo.Create(ctx, exec, posting)
	})
	if err != nil {
		return nil, err
	}

	// Notification is best effort: the posting exists regardless of whether
	// anyone could be reached.
	judges, members, err := s.postingRecipients(ctx, posting)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to resolve posting recipients",
			slog.Int("posting_id", posting.ID), slog.Any("error", err))
		return posting, nil
	}
	s.notifier.PostingCreated(ctx, t, posting, judges, members)
	if err := s.postingRepo.MarkJudgesNotified(ctx, posting.ID, s.now()); err != nil {
		s.logger.WarnContext(ctx, "failed to mark judges notified",
			slog.Int("posting_id", posting.ID), slog.Any("error", err))
	} else {
		posting.JudgesNotified = true
	}

	s.logger.InfoContext(ctx, "posting created",
		slog.Int("tournament_id", tournamentID),
		slog.Int("posting_id", posting.ID),
		slog.Int("judges", len(posting.JudgeIDs)),
	)
	return posting, nil
}

// postingRecipients resolves the judge panel and both teams' members into
// notification targets.
func (s *postingService) postingRecipients(ctx context.Context, p *models.Posting) (judges, members []models.UserRef, err error) {
	memberIDs := make([]int, 0, 4)
	for _, teamID := range []int{p.Team1ID, p.Team2ID} {
		team, err := s.teamRepo.GetByID(ctx, nil, teamID)
		if err != nil {
			return nil, nil, err
		}
		memberIDs = append(memberIDs, team.LeaderID, team.SpeakerID)
	}

	judgeUsers, err := s.userRepo.ListByIDs(ctx, p.JudgeIDs)
	if err != nil {
		return nil, nil, err
	}
	memberUsers, err := s.userRepo.ListByIDs(ctx, memberIDs)
	if err != nil {
		return nil, nil, err
	}

	for _, u := range judgeUsers {
		judges = append(judges, userRef(u))
	}
	for _, u := range memberUsers {
		members = append(members, userRef(u))
	}
	return judges, members, nil
}

func (s *postingService) GetPosting(ctx context.Context, id int) (*models.Posting, error) {
	p, err := s.postingRepo.GetByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, repositories.ErrPostingNotFound) {
			return nil, ErrPostingNotFound
		}
		return nil, err
	}
	s.attachBallotURL(p)
	return p, nil
}

func (s *postingService) ListPostings(ctx context.Context, tournamentID int, filter repositories.ListPostingsFilter) ([]*models.Posting, error) {
	if _, err := s.tournamentRepo.GetByID(ctx, nil, tournamentID); err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}
	postings, err := s.postingRepo.ListByTournament(ctx, tournamentID, filter)
	if err != nil {
		return nil, err
	}
	for _, p := range postings {
		s.attachBallotURL(p)
	}
	return postings, nil
}

// UpdatePostingStatus only supports finishing a debate; completed postings
// are immutable.
func (s *postingService) UpdatePostingStatus(ctx context.Context, id, callerID int, status models.PostingStatus) (*models.Posting, error) {
	p, err := s.GetPosting(ctx, id)
	if err != nil {
		return nil, err
	}

	t, err := s.tournamentRepo.GetByID(ctx, nil, p.TournamentID)
	if err != nil {
		return nil, err
	}
	if t.CreatorID != callerID {
		return nil, ErrCreatorOnly
	}

	if p.Status != models.PostingScheduled || status != models.PostingCompleted {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.Status, status)
	}

	if err := s.postingRepo.UpdateStatus(ctx, nil, id, status); err != nil {
		return nil, err
	}
	p.Status = status
	return p, nil
}

func (s *postingService) SendReminder(ctx context.Context, id, callerID int) (*ReminderResult, error) {
	p, err := s.GetPosting(ctx, id)
	if err != nil {
		return nil, err
	}

	t, err := s.tournamentRepo.GetByID(ctx, nil, p.TournamentID)
	if err != nil {
		return nil, err
	}
	if t.CreatorID != callerID {
		return nil, ErrCreatorOnly
	}

	judges, members, err := s.postingRecipients(ctx, p)
	if err != nil {
		return nil, err
	}
	s.notifier.PostingReminder(ctx, t, p, judges, members)

	if err := s.postingRepo.MarkJudgesNotified(ctx, p.ID, s.now()); err != nil {
		s.logger.WarnContext(ctx, "failed to mark judges notified",
			slog.Int("posting_id", p.ID), slog.Any("error", err))
	}

	return &ReminderResult{
		JudgesNotified:      len(judges),
		TeamMembersNotified: len(members),
	}, nil
}

// JudgeAssignments lists every posting the judge sits on, most recent first.
func (s *postingService) JudgeAssignments(ctx context.Context, judgeID int) ([]*models.Posting, error) {
	postings, err := s.postingRepo.ListByJudge(ctx, judgeID)
	if err != nil {
		return nil, err
	}
	for _, p := range postings {
		s.attachBallotURL(p)
	}
	return postings, nil
}

func (s *postingService) UploadBallot(ctx context.Context, id, callerID int, contentType string, r io.Reader) (*models.Posting, error) {
	p, err := s.GetPosting(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.HasJudge(callerID) {
		return nil, ErrAssignedJudgeOnly
	}
	if s.uploader == nil {
		return nil, errors.New("ballot storage is not configured")
	}

	key := fmt.Sprintf("ballots/%d/%d-%d", p.TournamentID, p.ID, s.now().UnixNano())
	result, err := s.uploader.Upload(ctx, key, contentType, r)
	if err != nil {
		return nil, fmt.Errorf("failed to upload ballot: %w", err)
	}

	if p.BallotKey != nil && *p.BallotKey != result.Key {
		if err := s.uploader.Delete(ctx, *p.BallotKey); err != nil {
			s.logger.WarnContext(ctx, "failed to delete previous ballot",
				slog.Int("posting_id", p.ID), slog.Any("error", err))
		}
	}

	if err := s.postingRepo.UpdateBallotKey(ctx, p.ID, &result.Key); err != nil {
		return nil, err
	}
	p.BallotKey = &result.Key
	s.attachBallotURL(p)
	return p, nil
}

func (s *postingService) attachBallotURL(p *models.Posting) {
	if p.BallotKey == nil || s.uploader == nil {
		return
	}
	url := s.uploader.GetPublicURL(*p.BallotKey)
	if url != "" {
		p.BallotURL = &url
	}
}
