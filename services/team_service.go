package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/debetter/tournament-service/models"
	"github.com/debetter/tournament-service/repositories"
)

type CreateTeamInput struct {
	Name      string `json:"name"`
	LeaderID  int    `json:"leader_id"`
	SpeakerID int    `json:"speaker_id"`
}

type RandomizeTeamsInput struct {
	// Overwrite must be set when the tournament already has teams;
	// randomization replaces every existing pairing.
	Overwrite bool `json:"overwrite"`
}

// RandomizeTeamsResult reports the generated pairings plus the debater left
// over when the field is odd.
type RandomizeTeamsResult struct {
	Teams      []*models.Team  `json:"teams"`
	Unassigned *models.UserRef `json:"unassigned,omitempty"`
}

type TeamService interface {
	CreateTeam(ctx context.Context, tournamentID, callerID int, input CreateTeamInput) (*models.Team, error)
	RandomizeTeams(ctx context.Context, tournamentID, callerID int, input RandomizeTeamsInput) (*RandomizeTeamsResult, error)
	ListTeams(ctx context.Context, tournamentID int) ([]*models.Team, error)
	GetTeamByID(ctx context.Context, id int) (*models.Team, error)
}

type teamService struct {
	db              *sql.DB
	teamRepo        repositories.TeamRepository
	tournamentRepo  repositories.TournamentRepository
	participantRepo repositories.ParticipantRepository
	userRepo        repositories.UserRepository
	logger          *slog.Logger
	shuffle         func(n int, swap func(i, j int))
}

func NewTeamService(
	db *sql.DB,
	teamRepo repositories.TeamRepository,
	tournamentRepo repositories.TournamentRepository,
	participantRepo repositories.ParticipantRepository,
	userRepo repositories.UserRepository,
	logger *slog.Logger,
) TeamService {
	return &teamService{
		db:              db,
		teamRepo:        teamRepo,
		tournamentRepo:  tournamentRepo,
		participantRepo: participantRepo,
		userRepo:        userRepo,
		logger:          logger,
		shuffle:         rand.Shuffle,
	}
}

func (s *teamService) CreateTeam(ctx context.Context, tournamentID, callerID int, input CreateTeamInput) (*models.Team, error) {
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
	if input.Name == "" {
		v.Add("name", "is required")
	}
	if input.LeaderID == input.SpeakerID {
		v.Add("speaker_id", "leader and speaker must be different debaters")
	}
	if err := v.ErrOrNil(); err != nil {
		return nil, err
	}

	for field, userID := range map[string]int{"leader_id": input.LeaderID, "speaker_id": input.SpeakerID} {
		p, err := s.participantRepo.FindByUserAndTournament(ctx, userID, tournamentID)
		if err != nil {
			if errors.Is(err, repositories.ErrParticipantNotFound) {
				v.Add(field, "user is not admitted to this tournament")
				continue
			}
			return nil, err
		}
		if p.Role != models.ParticipantDebater {
			v.Add(field, "user is not a debater in this tournament")
		}
	}
	if err := v.ErrOrNil(); err != nil {
		return nil, err
	}

	// A debater belongs to at most one team per tournament.
	existing, err := s.teamRepo.ListByTournament(ctx, nil, tournamentID)
	if err != nil {
		return nil, err
	}
	for _, team := range existing {
		if team.HasMember(input.LeaderID) || team.HasMember(input.SpeakerID) {
			return nil, fmt.Errorf("%w: team %q", ErrUserAlreadyInTeam, team.Name)
		}
	}

	team := &models.Team{
		TournamentID: tournamentID,
		Name:         input.Name,
		LeaderID:     input.LeaderID,
		SpeakerID:    input.SpeakerID,
	}
	if err := s.teamRepo.Create(ctx, nil, team); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "team created",
		slog.Int("tournament_id", tournamentID),
		slog.Int("team_id", team.ID),
	)
	return team, nil
}

// RandomizeTeams shuffles the admitted debaters and pairs them off in order.
// The whole replacement runs in one transaction so a failure cannot leave the
// tournament with a partial set of teams.
func (s *teamService) RandomizeTeams(ctx context.Context, tournamentID, callerID int, input RandomizeTeamsInput) (*RandomizeTeamsResult, error) {
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

	existing, err := s.teamRepo.ListByTournament(ctx, nil, tournamentID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 && !input.Overwrite {
		return nil, ErrTeamsExist
	}

	role := models.ParticipantDebater
	debaters, err := s.participantRepo.ListByTournament(ctx, tournamentID, &role)
	if err != nil {
		return nil, err
	}
	if len(debaters) < 2 {
		return nil, ErrNotEnoughDebaters
	}

	s.shuffle(len(debaters), func(i, j int) {
		debaters[i], debaters[j] = debaters[j], debaters[i]
	})

	teams := make([]*models.Team, 0, len(debaters)/2)
	for i := 0; i+1 < len(debaters); i += 2 {
		teams = append(teams, &models.Team{
			TournamentID: tournamentID,
			Name:         fmt.Sprintf("Team %d", len(teams)+1),
			LeaderID:     debaters[i].UserID,
			SpeakerID:    debaters[i+1].UserID,
		})
	}

	err = withTx(ctx, s.db, func(exec repositories.SQLExecutor) error {
		return s.teamRepo.ReplaceAll(ctx, exec, tournamentID, teams)
	})
	if err != nil {
		if errors.Is(err, repositories.ErrTeamInUse) {
			return nil, ErrTeamsInUse
		}
		return nil, err
	}

	result := &RandomizeTeamsResult{Teams: teams}
	if len(debaters)%2 != 0 {
		odd := debaters[len(debaters)-1]
		ref := userRef(odd.User)
		ref.ID = odd.UserID
		result.Unassigned = &ref
	}

	s.logger.InfoContext(ctx, "teams randomized",
		slog.Int("tournament_id", tournamentID),
		slog.Int("teams", len(teams)),
		slog.Bool("odd_debater", result.Unassigned != nil),
	)
	return result, nil
}

func (s *teamService) ListTeams(ctx context.Context, tournamentID int) ([]*models.Team, error) {
	if _, err := s.tournamentRepo.GetByID(ctx, nil, tournamentID); err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}
	return s.teamRepo.ListByTournament(ctx, nil, tournamentID)
}

func (s *teamService) GetTeamByID(ctx context.Context, id int) (*models.Team, error) {
	team, err := s.teamRepo.GetByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, repositories.ErrTeamNotFound) {
			return nil, ErrTeamNotFound
		}
		return nil, err
	}
	return team, nil
}
