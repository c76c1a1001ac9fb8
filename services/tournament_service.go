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

// Tournament-format events must be announced well ahead of time, and
// registration has to close before the event starts.
const (
	minTournamentNotice   = 48 * time.Hour
	minRegistrationBuffer = 24 * time.Hour
)

type CreateTournamentInput struct {
	Title                string                  `json:"title"`
	Description          string                  `json:"description"`
	Category             string                  `json:"category"`
	Difficulty           string                  `json:"difficulty"`
	Format               models.TournamentFormat `json:"format"`
	Mode                 *models.TournamentMode  `json:"mode,omitempty"`
	Location             string                  `json:"location"`
	StartDate            time.Time               `json:"start_date"`
	RegistrationDeadline *time.Time              `json:"registration_deadline,omitempty"`
	MaxParticipants      int                     `json:"max_participants,omitempty"`
}

type UpdateTournamentInput struct {
	Title                *string    `json:"title,omitempty"`
	Description          *string    `json:"description,omitempty"`
	Category             *string    `json:"category,omitempty"`
	Difficulty           *string    `json:"difficulty,omitempty"`
	Location             *string    `json:"location,omitempty"`
	StartDate            *time.Time `json:"start_date,omitempty"`
	RegistrationDeadline *time.Time `json:"registration_deadline,omitempty"`
	MaxParticipants      *int       `json:"max_participants,omitempty"`
}

type JoinTournamentInput struct {
	// Role is optional; when empty it is derived from the user's account
	// role (judges join as judges, everyone else as debaters).
	Role models.ParticipantRole `json:"role,omitempty"`
}

type TournamentService interface {
	CreateTournament(ctx context.Context, creatorID int, input CreateTournamentInput) (*models.Tournament, error)
	GetTournamentByID(ctx context.Context, id int) (*models.Tournament, error)
	ListTournaments(ctx context.Context, filter repositories.ListTournamentsFilter) ([]models.Tournament, error)
	UpdateTournament(ctx context.Context, id, callerID int, input UpdateTournamentInput) (*models.Tournament, error)
	UpdateTournamentStatus(ctx context.Context, id, callerID int, status models.TournamentStatus) (*models.Tournament, error)
	JoinTournament(ctx context.Context, id, userID int, input JoinTournamentInput) (*models.Tournament, error)
	LeaveTournament(ctx context.Context, id, userID int) (*models.Tournament, error)
	ListParticipants(ctx context.Context, id int) ([]*models.Participant, error)
	UploadMap(ctx context.Context, id, callerID int, contentType string, r io.Reader) (*models.Tournament, error)
	AdvanceStatusesByDates(ctx context.Context) error
}

type tournamentService struct {
	db              *sql.DB
	tournamentRepo  repositories.TournamentRepository
	participantRepo repositories.ParticipantRepository
	userRepo        repositories.UserRepository
	uploader        storage.FileUploader
	logger          *slog.Logger
	now             func() time.Time
}

func NewTournamentService(
	db *sql.DB,
	tournamentRepo repositories.TournamentRepository,
	participantRepo repositories.ParticipantRepository,
	userRepo repositories.UserRepository,
	uploader storage.FileUploader,
	logger *slog.Logger,
) TournamentService {
	return &tournamentService{
		db:              db,
		tournamentRepo:  tournamentRepo,
		participantRepo: participantRepo,
		userRepo:        userRepo,
		uploader:        uploader,
		logger:          logger,
		now:             time.Now,
	}
}

func (s *tournamentService) validateCreateInput(input CreateTournamentInput, now time.Time) error {
	v := NewValidationError()

	if input.Title == "" {
		v.Add("title", "is required")
	}
	if input.Description == "" {
		v.Add("description", "is required")
	}
	if input.Location == "" {
		v.Add("location", "is required")
	}
	if !isValidCategory(input.Category) {
		v.Add("category", fmt.Sprintf("must be one of %v", models.ValidCategories))
	}
	if !isValidDifficulty(input.Difficulty) {
		v.Add("difficulty", fmt.Sprintf("must be one of %v", models.ValidDifficulties))
	}
	if input.Format != models.FormatStandard && input.Format != models.FormatTournament {
		v.Add("format", "must be standard or tournament")
	}
	if input.Mode != nil && *input.Mode != models.ModeSolo && *input.Mode != models.ModeDuo {
		v.Add("mode", "must be solo or duo")
	}
	if !input.StartDate.After(now) {
		v.Add("start_date", "must be in the future")
	}

	if input.Format == models.FormatTournament {
		if input.StartDate.Sub(now) < minTournamentNotice {
			v.Add("start_date", "tournaments must be scheduled at least 48 hours in advance")
		}
		switch {
		case input.RegistrationDeadline == nil:
			v.Add("registration_deadline", "is required for tournament format")
		case !input.RegistrationDeadline.Before(input.StartDate):
			v.Add("registration_deadline", "must be before the start date")
		case input.StartDate.Sub(*input.RegistrationDeadline) < minRegistrationBuffer:
			v.Add("registration_deadline", "registration must close at least 24 hours before the start")
		}
	} else if input.MaxParticipants < 0 {
		v.Add("max_participants", "must be positive")
	}

	return v.ErrOrNil()
}

func (s *tournamentService) CreateTournament(ctx context.Context, creatorID int, input CreateTournamentInput) (*models.Tournament, error) {
	now := s.now()
	if err := s.validateCreateInput(input, now); err != nil {
		return nil, err
	}

	creator, err := s.userRepo.GetByID(ctx, creatorID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load creator: %w", err)
	}

	t := &models.Tournament{
		Title:                input.Title,
		Description:          input.Description,
		Category:             input.Category,
		Difficulty:           input.Difficulty,
		Format:               input.Format,
		Mode:                 input.Mode,
		Status:               models.StatusUpcoming,
		Location:             input.Location,
		StartDate:            input.StartDate,
		RegistrationDeadline: input.RegistrationDeadline,
		MaxDebaters:          models.DefaultMaxDebaters,
		MaxJudges:            models.DefaultMaxJudges,
		MaxParticipants:      models.DefaultMaxParticipants,
		CreatorID:            creatorID,
	}
	if input.Format == models.FormatStandard && input.MaxParticipants > 0 {
		t.MaxParticipants = input.MaxParticipants
	}

	// The creator is admitted as the first participant; the counters start
	// out reflecting that.
	creatorRole := participantRole(creator)
	if creatorRole == models.ParticipantJudge {
		t.CurrentJudges = 1
	} else {
		t.CurrentDebaters = 1
	}

	err = withTx(ctx, s.db, func(exec repositories.SQLExecutor) error {
		if err := s.tournamentRepo.Create(ctx, exec, t); err != nil {
			return err
		}
		p := &models.Participant{TournamentID: t.ID, UserID: creatorID, Role: creatorRole}
		return s.participantRepo.Create(ctx, exec, p)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "tournament created",
		slog.Int("tournament_id", t.ID),
		slog.Int("creator_id", creatorID),
		slog.String("format", string(t.Format)),
	)
	return t, nil
}

func (s *tournamentService) GetTournamentByID(ctx context.Context, id int) (*models.Tournament, error) {
	t, err := s.tournamentRepo.GetByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}
	s.attachMapURL(t)
	return t, nil
}

func (s *tournamentService) ListTournaments(ctx context.Context, filter repositories.ListTournamentsFilter) ([]models.Tournament, error) {
	return s.tournamentRepo.List(ctx, filter)
}

func (s *tournamentService) UpdateTournament(ctx context.Context, id, callerID int, input UpdateTournamentInput) (*models.Tournament, error) {
	t, err := s.GetTournamentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.CreatorID != callerID {
		return nil, ErrCreatorOnly
	}

	// Whitelist-only patch: anything outside these fields is simply not
	// representable in the input type.
	v := NewValidationError()
	if input.Title != nil {
		if *input.Title == "" {
			v.Add("title", "must not be empty")
		}
		t.Title = *input.Title
	}
	if input.Description != nil {
		t.Description = *input.Description
	}
	if input.Category != nil {
		if !isValidCategory(*input.Category) {
			v.Add("category", fmt.Sprintf("must be one of %v", models.ValidCategories))
		}
		t.Category = *input.Category
	}
	if input.Difficulty != nil {
		if !isValidDifficulty(*input.Difficulty) {
			v.Add("difficulty", fmt.Sprintf("must be one of %v", models.ValidDifficulties))
		}
		t.Difficulty = *input.Difficulty
	}
	if input.Location != nil {
		t.Location = *input.Location
	}
	if input.StartDate != nil {
		if !input.StartDate.After(s.now()) {
			v.Add("start_date", "must be in the future")
		}
		t.StartDate = *input.StartDate
	}
	if input.RegistrationDeadline != nil {
		t.RegistrationDeadline = input.RegistrationDeadline
	}
	if input.MaxParticipants != nil {
		if *input.MaxParticipants <= 0 {
			v.Add("max_participants", "must be positive")
		}
		t.MaxParticipants = *input.MaxParticipants
	}
	if t.Format == models.FormatTournament && t.RegistrationDeadline != nil &&
		!t.RegistrationDeadline.Before(t.StartDate) {
		v.Add("registration_deadline", "must be before the start date")
	}
	if err := v.ErrOrNil(); err != nil {
		return nil, err
	}

	if err := s.tournamentRepo.Update(ctx, t); err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}
	return t, nil
}

func (s *tournamentService) UpdateTournamentStatus(ctx context.Context, id, callerID int, status models.TournamentStatus) (*models.Tournament, error) {
	t, err := s.GetTournamentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.CreatorID != callerID {
		return nil, ErrCreatorOnly
	}
	if !isForwardStatusTransition(t.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, status)
	}

	if err := s.tournamentRepo.UpdateStatus(ctx, nil, id, status); err != nil {
		return nil, err
	}
	t.Status = status
	return t, nil
}

// JoinTournament admits a user. The capacity check and counter increment run
// as one conditional update inside a transaction, so concurrent joins for the
// last slot cannot both succeed; the unique participant index backstops
// duplicate joins the same way.
func (s *tournamentService) JoinTournament(ctx context.Context, id, userID int, input JoinTournamentInput) (*models.Tournament, error) {
	t, err := s.GetTournamentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if t.Status != models.StatusUpcoming {
		return nil, ErrRegistrationClosed
	}
	if t.Format == models.FormatTournament && t.RegistrationClosed(s.now()) {
		return nil, ErrRegistrationClosed
	}

	role := input.Role
	if role == "" {
		role = participantRole(user)
	}
	if role != models.ParticipantDebater && role != models.ParticipantJudge {
		v := NewValidationError()
		v.Add("role", "must be debater or judge")
		return nil, v
	}

	if _, err := s.participantRepo.FindByUserAndTournament(ctx, userID, id); err == nil {
		return nil, ErrAlreadyParticipant
	} else if !errors.Is(err, repositories.ErrParticipantNotFound) {
		return nil, err
	}

	err = withTx(ctx, s.db, func(exec repositories.SQLExecutor) error {
		if err := s.tournamentRepo.ReserveSlot(ctx, exec, id, role, t.Format); err != nil {
			if errors.Is(err, repositories.ErrTournamentSlotsFull) {
				return ErrCapacityExceeded
			}
			return err
		}
		p := &models.Participant{TournamentID: id, UserID: userID, Role: role}
		if err := s.participantRepo.Create(ctx, exec, p); err != nil {
			if errors.Is(err, repositories.ErrParticipantConflict) {
				return ErrAlreadyParticipant
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.GetTournamentByID(ctx, id)
}

func (s *tournamentService) LeaveTournament(ctx context.Context, id, userID int) (*models.Tournament, error) {
	t, err := s.GetTournamentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status != models.StatusUpcoming {
		return nil, ErrRegistrationClosed
	}

	p, err := s.participantRepo.FindByUserAndTournament(ctx, userID, id)
	if err != nil {
		if errors.Is(err, repositories.ErrParticipantNotFound) {
			return nil, ErrNotAParticipant
		}
		return nil, err
	}

	err = withTx(ctx, s.db, func(exec repositories.SQLExecutor) error {
		if err := s.participantRepo.Delete(ctx, exec, p.ID); err != nil {
			return err
		}
		return s.tournamentRepo.ReleaseSlot(ctx, exec, id, p.Role)
	})
	if err != nil {
		return nil, err
	}

	return s.GetTournamentByID(ctx, id)
}

func (s *tournamentService) ListParticipants(ctx context.Context, id int) ([]*models.Participant, error) {
	if _, err := s.GetTournamentByID(ctx, id); err != nil {
		return nil, err
	}
	return s.participantRepo.ListByTournament(ctx, id, nil)
}

// UploadMap stores the venue map image and replaces any previous one.
func (s *tournamentService) UploadMap(ctx context.Context, id, callerID int, contentType string, r io.Reader) (*models.Tournament, error) {
	t, err := s.GetTournamentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.CreatorID != callerID {
		return nil, ErrCreatorOnly
	}
	if s.uploader == nil {
		return nil, errors.New("map storage is not configured")
	}

	key := fmt.Sprintf("maps/%d/%d", id, s.now().UnixNano())
	result, err := s.uploader.Upload(ctx, key, contentType, r)
	if err != nil {
		return nil, fmt.Errorf("failed to upload map: %w", err)
	}

	if t.MapKey != nil && *t.MapKey != result.Key {
		if err := s.uploader.Delete(ctx, *t.MapKey); err != nil {
			s.logger.WarnContext(ctx, "failed to delete previous map",
				slog.Int("tournament_id", id), slog.Any("error", err))
		}
	}

	if err := s.tournamentRepo.UpdateMapKey(ctx, id, &result.Key); err != nil {
		return nil, err
	}
	t.MapKey = &result.Key
	t.MapURL = nil
	s.attachMapURL(t)
	return t, nil
}

func (s *tournamentService) attachMapURL(t *models.Tournament) {
	if t.MapKey == nil || s.uploader == nil {
		return
	}
	url := s.uploader.GetPublicURL(*t.MapKey)
	if url != "" {
		t.MapURL = &url
	}
}

// AdvanceStatusesByDates moves tournaments forward once their start date has
// passed. Status never regresses; completion stays an explicit creator
// action.
func (s *tournamentService) AdvanceStatusesByDates(ctx context.Context) error {
	due, err := s.tournamentRepo.ListDueForStatusAdvance(ctx, s.now())
	if err != nil {
		return err
	}
	for _, t := range due {
		err := s.tournamentRepo.AdvanceStatus(ctx, nil, t.ID, models.StatusUpcoming, models.StatusInProgress)
		if errors.Is(err, repositories.ErrTournamentStatusChanged) {
			// Someone moved it manually between the query and the write.
			continue
		}
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to advance tournament status",
				slog.Int("tournament_id", t.ID), slog.Any("error", err))
			continue
		}
		s.logger.InfoContext(ctx, "tournament moved to in-progress",
			slog.Int("tournament_id", t.ID))
	}
	return nil
}
