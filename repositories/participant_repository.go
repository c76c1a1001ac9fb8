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
	ErrParticipantNotFound          = errors.New("participant registration not found")
	ErrParticipantConflict          = errors.New("user is already registered for this tournament")
	ErrParticipantUserInvalid       = errors.New("invalid participant user reference")
	ErrParticipantTournamentInvalid = errors.New("invalid participant tournament reference")
)

type ParticipantRepository interface {
	Create(ctx context.Context, exec SQLExecutor, p *models.Participant) error
	FindByUserAndTournament(ctx context.Context, userID, tournamentID int) (*models.Participant, error)
	ListByTournament(ctx context.Context, tournamentID int, roleFilter *models.ParticipantRole) ([]*models.Participant, error)
	Delete(ctx context.Context, exec SQLExecutor, id int) error
}

type postgresParticipantRepository struct {
	db *sql.DB
}

func NewPostgresParticipantRepository(db *sql.DB) ParticipantRepository {
	return &postgresParticipantRepository{db: db}
}

func (r *postgresParticipantRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresParticipantRepository) Create(ctx context.Context, exec SQLExecutor, p *models.Participant) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO participants (tournament_id, user_id, role)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	err := executor.QueryRowContext(ctx, query, p.TournamentID, p.UserID, p.Role).
		Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			switch pqErr.Code {
			case "23505":
				if pqErr.Constraint == "participants_tournament_id_user_id_key" {
					return ErrParticipantConflict
				}
			case "23503":
				switch pqErr.Constraint {
				case "participants_user_id_fkey":
					return ErrParticipantUserInvalid
				case "participants_tournament_id_fkey":
					return ErrParticipantTournamentInvalid
				}
			}
		}
		return fmt.Errorf("failed to create participant: %w", err)
	}
	return nil
}

func (r *postgresParticipantRepository) FindByUserAndTournament(ctx context.Context, userID, tournamentID int) (*models.Participant, error) {
	query := `
		SELECT id, tournament_id, user_id, role, created_at
		FROM participants
		WHERE user_id = $1 AND tournament_id = $2`

	p := &models.Participant{}
	err := r.db.QueryRowContext(ctx, query, userID, tournamentID).
		Scan(&p.ID, &p.TournamentID, &p.UserID, &p.Role, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrParticipantNotFound
		}
		return nil, fmt.Errorf("failed to find participant: %w", err)
	}
	return p, nil
}

// ListByTournament returns participants in admission order, with usernames
// resolved so callers never have to branch on bare id vs embedded user.
func (r *postgresParticipantRepository) ListByTournament(ctx context.Context, tournamentID int, roleFilter *models.ParticipantRole) ([]*models.Participant, error) {
	query := `
		SELECT p.id, p.tournament_id, p.user_id, p.role, p.created_at,
		       u.id, u.username, u.email, u.role, u.created_at
		FROM participants p
		JOIN users u ON p.user_id = u.id
		WHERE p.tournament_id = $1`
	args := []interface{}{tournamentID}

	if roleFilter != nil {
		query += " AND p.role = $2"
		args = append(args, *roleFilter)
	}
	query += " ORDER BY p.created_at ASC, p.id ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	defer rows.Close()

	participants := make([]*models.Participant, 0)
	for rows.Next() {
		var p models.Participant
		var u models.User
		if err := rows.Scan(
			&p.ID, &p.TournamentID, &p.UserID, &p.Role, &p.CreatedAt,
			&u.ID, &u.Username, &u.Email, &u.Role, &u.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan participant row: %w", err)
		}
		p.User = &u
		participants = append(participants, &p)
	}
	return participants, rows.Err()
}

func (r *postgresParticipantRepository) Delete(ctx context.Context, exec SQLExecutor, id int) error {
	executor := r.getExecutor(exec)
	query := `DELETE FROM participants WHERE id = $1`
	result, err := executor.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete participant: %w", err)
	}
	return checkAffectedRows(result, ErrParticipantNotFound)
}
