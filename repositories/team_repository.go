package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/debetter/tournament-service/models"
	"github.com/lib/pq"
)

var (
	ErrTeamNotFound      = errors.New("team not found")
	ErrTeamMemberInvalid = errors.New("invalid team member reference")
	ErrTeamInUse         = errors.New("team is referenced by a posting")
)

type TeamRepository interface {
	Create(ctx context.Context, exec SQLExecutor, team *models.Team) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Team, error)
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]*models.Team, error)

	// ReplaceAll deletes every team of the tournament and inserts the given
	// set. Run inside a transaction so readers never observe a partial list.
	// Returns ErrTeamInUse when a posting still references one of the teams.
	ReplaceAll(ctx context.Context, exec SQLExecutor, tournamentID int, teams []*models.Team) error

	RecordWin(ctx context.Context, exec SQLExecutor, teamID, points int) error
	RecordLoss(ctx context.Context, exec SQLExecutor, teamID, points int) error
}

type postgresTeamRepository struct {
	db *sql.DB
}

func NewPostgresTeamRepository(db *sql.DB) TeamRepository {
	return &postgresTeamRepository{db: db}
}

func (r *postgresTeamRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresTeamRepository) Create(ctx context.Context, exec SQLExecutor, t *models.Team) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO teams (tournament_id, name, leader_id, speaker_id, wins, losses, points)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	err := executor.QueryRowContext(ctx, query,
		t.TournamentID, t.Name, t.LeaderID, t.SpeakerID, t.Wins, t.Losses, t.Points,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23503" {
			return ErrTeamMemberInvalid
		}
		return fmt.Errorf("failed to create team: %w", err)
	}
	return nil
}

const teamColumns = `id, tournament_id, name, leader_id, speaker_id, wins, losses, points, created_at`

func scanTeam(scanner interface{ Scan(dest ...interface{}) error }, t *models.Team) error {
	return scanner.Scan(
		&t.ID, &t.TournamentID, &t.Name, &t.LeaderID, &t.SpeakerID,
		&t.Wins, &t.Losses, &t.Points, &t.CreatedAt,
	)
}

func (r *postgresTeamRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Team, error) {
	executor := r.getExecutor(exec)
	query := `SELECT ` + teamColumns + ` FROM teams WHERE id = $1`

	t := &models.Team{}
	if err := scanTeam(executor.QueryRowContext(ctx, query, id), t); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTeamNotFound
		}
		return nil, fmt.Errorf("failed to get team %d: %w", id, err)
	}
	return t, nil
}

// ListByTournament returns teams in creation order, which doubles as the
// stable tie-break of the standings.
func (r *postgresTeamRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]*models.Team, error) {
	executor := r.getExecutor(exec)
	query := `SELECT ` + teamColumns + ` FROM teams WHERE tournament_id = $1 ORDER BY created_at ASC, id ASC`

	rows, err := executor.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	defer rows.Close()

	teams := make([]*models.Team, 0)
	for rows.Next() {
		var t models.Team
		if err := scanTeam(rows, &t); err != nil {
			return nil, fmt.Errorf("failed to scan team row: %w", err)
		}
		teams = append(teams, &t)
	}
	return teams, rows.Err()
}

func (r *postgresTeamRepository) ReplaceAll(ctx context.Context, exec SQLExecutor, tournamentID int, teams []*models.Team) error {
	executor := r.getExecutor(exec)

	if _, err := executor.ExecContext(ctx, `DELETE FROM teams WHERE tournament_id = $1`, tournamentID); err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23503" {
			return ErrTeamInUse
		}
		return fmt.Errorf("failed to clear teams for tournament %d: %w", tournamentID, err)
	}
	for _, t := range teams {
		if err := r.Create(ctx, executor, t); err != nil {
			return err
		}
	}
	return nil
}

func (r *postgresTeamRepository) RecordWin(ctx context.Context, exec SQLExecutor, teamID, points int) error {
	executor := r.getExecutor(exec)
	query := `UPDATE teams SET wins = wins + 1, points = points + $1 WHERE id = $2`
	result, err := executor.ExecContext(ctx, query, points, teamID)
	if err != nil {
		return fmt.Errorf("failed to record win for team %d: %w", teamID, err)
	}
	return checkAffectedRows(result, ErrTeamNotFound)
}

func (r *postgresTeamRepository) RecordLoss(ctx context.Context, exec SQLExecutor, teamID, points int) error {
	executor := r.getExecutor(exec)
	query := `UPDATE teams SET losses = losses + 1, points = points + $1 WHERE id = $2`
	result, err := executor.ExecContext(ctx, query, points, teamID)
	if err != nil {
		return fmt.Errorf("failed to record loss for team %d: %w", teamID, err)
	}
	return checkAffectedRows(result, ErrTeamNotFound)
}
