package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/debetter/tournament-service/models"
	"github.com/lib/pq"
)

var (
	ErrTournamentNotFound       = errors.New("tournament not found")
	ErrTournamentInvalidCreator = errors.New("invalid creator reference")
	ErrTournamentSlotsFull      = errors.New("no open slot for this role")
	ErrTournamentStatusChanged  = errors.New("tournament status no longer matches")
)

type ListTournamentsFilter struct {
	Category  *string
	Format    *models.TournamentFormat
	Status    *models.TournamentStatus
	CreatorID *int
	Limit     int
	Offset    int
}

type TournamentRepository interface {
	Create(ctx context.Context, exec SQLExecutor, t *models.Tournament) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error)
	List(ctx context.Context, filter ListTournamentsFilter) ([]models.Tournament, error)
	Update(ctx context.Context, t *models.Tournament) error
	UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.TournamentStatus) error

	// AdvanceStatus moves the status forward only while the row still holds
	// the expected current status, so a concurrent manual transition is never
	// overwritten. Returns ErrTournamentStatusChanged when the guard fails.
	AdvanceStatus(ctx context.Context, exec SQLExecutor, id int, from, to models.TournamentStatus) error

	UpdateMapKey(ctx context.Context, id int, mapKey *string) error

	// ReserveSlot atomically claims one admission slot for the given role,
	// incrementing the matching counter only while it is below its cap. It
	// returns ErrTournamentSlotsFull when the conditional update matches no
	// row but the tournament exists.
	ReserveSlot(ctx context.Context, exec SQLExecutor, id int, role models.ParticipantRole, format models.TournamentFormat) error
	ReleaseSlot(ctx context.Context, exec SQLExecutor, id int, role models.ParticipantRole) error

	ListDueForStatusAdvance(ctx context.Context, now time.Time) ([]*models.Tournament, error)
}

type postgresTournamentRepository struct {
	db *sql.DB
}

func NewPostgresTournamentRepository(db *sql.DB) TournamentRepository {
	return &postgresTournamentRepository{db: db}
}

func (r *postgresTournamentRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const tournamentColumns = `
	id, title, description, category, difficulty, format, mode, status, location,
	start_date, registration_deadline, max_debaters, max_judges, max_participants,
	current_debaters, current_judges, creator_id, map_key, created_at`

func (r *postgresTournamentRepository) Create(ctx context.Context, exec SQLExecutor, t *models.Tournament) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO tournaments (
			title, description, category, difficulty, format, mode, status, location,
			start_date, registration_deadline, max_debaters, max_judges, max_participants,
			current_debaters, current_judges, creator_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id, created_at`

	err := executor.QueryRowContext(ctx, query,
		t.Title, t.Description, t.Category, t.Difficulty, t.Format, t.Mode, t.Status, t.Location,
		t.StartDate, t.RegistrationDeadline, t.MaxDebaters, t.MaxJudges, t.MaxParticipants,
		t.CurrentDebaters, t.CurrentJudges, t.CreatorID,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23503" &&
			pqErr.Constraint == "tournaments_creator_id_fkey" {
			return ErrTournamentInvalidCreator
		}
		return fmt.Errorf("failed to create tournament: %w", err)
	}
	return nil
}

func scanTournament(scanner interface{ Scan(dest ...interface{}) error }, t *models.Tournament) error {
	return scanner.Scan(
		&t.ID, &t.Title, &t.Description, &t.Category, &t.Difficulty, &t.Format, &t.Mode,
		&t.Status, &t.Location, &t.StartDate, &t.RegistrationDeadline,
		&t.MaxDebaters, &t.MaxJudges, &t.MaxParticipants,
		&t.CurrentDebaters, &t.CurrentJudges, &t.CreatorID, &t.MapKey, &t.CreatedAt,
	)
}

func (r *postgresTournamentRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error) {
	executor := r.getExecutor(exec)
	query := `SELECT` + tournamentColumns + ` FROM tournaments WHERE id = $1`

	t := &models.Tournament{}
	if err := scanTournament(executor.QueryRowContext(ctx, query, id), t); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, fmt.Errorf("failed to get tournament %d: %w", id, err)
	}
	return t, nil
}

func (r *postgresTournamentRepository) List(ctx context.Context, filter ListTournamentsFilter) ([]models.Tournament, error) {
	query := `SELECT` + tournamentColumns + ` FROM tournaments WHERE 1=1`
	args := []interface{}{}
	argID := 1

	if filter.Category != nil {
		query += fmt.Sprintf(" AND category = $%d", argID)
		args = append(args, *filter.Category)
		argID++
	}
	if filter.Format != nil {
		query += fmt.Sprintf(" AND format = $%d", argID)
		args = append(args, *filter.Format)
		argID++
	}
	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argID)
		args = append(args, *filter.Status)
		argID++
	}
	if filter.CreatorID != nil {
		query += fmt.Sprintf(" AND creator_id = $%d", argID)
		args = append(args, *filter.CreatorID)
		argID++
	}

	query += " ORDER BY start_date DESC, created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argID)
		args = append(args, filter.Limit)
		argID++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argID)
		args = append(args, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tournaments: %w", err)
	}
	defer rows.Close()

	tournaments := make([]models.Tournament, 0)
	for rows.Next() {
		var t models.Tournament
		if err := scanTournament(rows, &t); err != nil {
			return nil, fmt.Errorf("failed to scan tournament row: %w", err)
		}
		tournaments = append(tournaments, t)
	}
	return tournaments, rows.Err()
}

func (r *postgresTournamentRepository) Update(ctx context.Context, t *models.Tournament) error {
	query := `
		UPDATE tournaments SET
			title = $1, description = $2, category = $3, difficulty = $4,
			location = $5, start_date = $6, registration_deadline = $7,
			max_debaters = $8, max_judges = $9, max_participants = $10
		WHERE id = $11`

	result, err := r.db.ExecContext(ctx, query,
		t.Title, t.Description, t.Category, t.Difficulty,
		t.Location, t.StartDate, t.RegistrationDeadline,
		t.MaxDebaters, t.MaxJudges, t.MaxParticipants, t.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update tournament %d: %w", t.ID, err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.TournamentStatus) error {
	executor := r.getExecutor(exec)
	query := `UPDATE tournaments SET status = $1 WHERE id = $2`
	result, err := executor.ExecContext(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("failed to update tournament status: %w", err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) AdvanceStatus(ctx context.Context, exec SQLExecutor, id int, from, to models.TournamentStatus) error {
	executor := r.getExecutor(exec)
	query := `UPDATE tournaments SET status = $1 WHERE id = $2 AND status = $3`
	result, err := executor.ExecContext(ctx, query, to, id, from)
	if err != nil {
		return fmt.Errorf("failed to advance tournament status: %w", err)
	}
	return checkAffectedRows(result, ErrTournamentStatusChanged)
}

func (r *postgresTournamentRepository) UpdateMapKey(ctx context.Context, id int, mapKey *string) error {
	query := `UPDATE tournaments SET map_key = $1 WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, mapKey, id)
	if err != nil {
		return fmt.Errorf("failed to update tournament map key: %w", err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

// ReserveSlot is the write side of the admission race: the capacity check and
// the counter increment are a single conditional UPDATE, so two concurrent
// joins for the last slot cannot both pass.
func (r *postgresTournamentRepository) ReserveSlot(ctx context.Context, exec SQLExecutor, id int, role models.ParticipantRole, format models.TournamentFormat) error {
	executor := r.getExecutor(exec)

	var query string
	switch {
	case format == models.FormatStandard && role == models.ParticipantJudge:
		query = `
			UPDATE tournaments SET current_judges = current_judges + 1
			WHERE id = $1 AND current_debaters + current_judges < max_participants`
	case format == models.FormatStandard:
		query = `
			UPDATE tournaments SET current_debaters = current_debaters + 1
			WHERE id = $1 AND current_debaters + current_judges < max_participants`
	case role == models.ParticipantJudge:
		query = `
			UPDATE tournaments SET current_judges = current_judges + 1
			WHERE id = $1 AND current_judges < max_judges`
	default:
		query = `
			UPDATE tournaments SET current_debaters = current_debaters + 1
			WHERE id = $1 AND current_debaters < max_debaters`
	}

	result, err := executor.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to reserve tournament slot: %w", err)
	}
	return checkAffectedRows(result, ErrTournamentSlotsFull)
}

func (r *postgresTournamentRepository) ReleaseSlot(ctx context.Context, exec SQLExecutor, id int, role models.ParticipantRole) error {
	executor := r.getExecutor(exec)

	column := "current_debaters"
	if role == models.ParticipantJudge {
		column = "current_judges"
	}
	query := fmt.Sprintf(`UPDATE tournaments SET %s = GREATEST(%s - 1, 0) WHERE id = $1`, column, column)

	result, err := executor.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to release tournament slot: %w", err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

// ListDueForStatusAdvance returns tournaments whose dates have overtaken their
// status: upcoming past start_date, or in-progress with every posting judged.
func (r *postgresTournamentRepository) ListDueForStatusAdvance(ctx context.Context, now time.Time) ([]*models.Tournament, error) {
	query := `SELECT` + tournamentColumns + `
		FROM tournaments
		WHERE status = $1 AND start_date <= $2`

	rows, err := r.db.QueryContext(ctx, query, models.StatusUpcoming, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query tournaments for status advance: %w", err)
	}
	defer rows.Close()

	var tournaments []*models.Tournament
	for rows.Next() {
		var t models.Tournament
		if err := scanTournament(rows, &t); err != nil {
			return nil, fmt.Errorf("failed to scan tournament for status advance: %w", err)
		}
		tournaments = append(tournaments, &t)
	}
	return tournaments, rows.Err()
}
