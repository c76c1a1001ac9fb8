package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/debetter/tournament-service/models"
	"github.com/lib/pq"
)

var (
	ErrEvaluationNotFound = errors.New("evaluation not found")
	// ErrEvaluationConflict is raised by the unique index on
	// (posting_id, judge_id); it closes the duplicate-submission race at the
	// storage layer rather than in application code.
	ErrEvaluationConflict = errors.New("evaluation already submitted by this judge for this posting")
)

type EvaluationRepository interface {
	Create(ctx context.Context, exec SQLExecutor, e *models.Evaluation) error
	GetByID(ctx context.Context, id int) (*models.Evaluation, error)
	ListByPosting(ctx context.Context, postingID int) ([]*models.Evaluation, error)
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]*models.Evaluation, error)
}

type postgresEvaluationRepository struct {
	db *sql.DB
}

func NewPostgresEvaluationRepository(db *sql.DB) EvaluationRepository {
	return &postgresEvaluationRepository{db: db}
}

func (r *postgresEvaluationRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresEvaluationRepository) Create(ctx context.Context, exec SQLExecutor, e *models.Evaluation) error {
	executor := r.getExecutor(exec)

	scores, err := json.Marshal(e.Scores)
	if err != nil {
		return fmt.Errorf("failed to encode evaluation scores: %w", err)
	}

	query := `
		INSERT INTO evaluations (posting_id, judge_id, winning_team_id, scores, notes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	err = executor.QueryRowContext(ctx, query,
		e.PostingID, e.JudgeID, e.WinningTeamID, scores, e.Notes,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" &&
			pqErr.Constraint == "evaluations_posting_id_judge_id_key" {
			return ErrEvaluationConflict
		}
		return fmt.Errorf("failed to create evaluation: %w", err)
	}
	return nil
}

func scanEvaluation(scanner interface{ Scan(dest ...interface{}) error }) (*models.Evaluation, error) {
	e := &models.Evaluation{}
	var scores []byte
	if err := scanner.Scan(&e.ID, &e.PostingID, &e.JudgeID, &e.WinningTeamID, &scores, &e.Notes, &e.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(scores, &e.Scores); err != nil {
		return nil, fmt.Errorf("failed to decode evaluation scores: %w", err)
	}
	return e, nil
}

const evaluationColumns = `id, posting_id, judge_id, winning_team_id, scores, notes, created_at`

func (r *postgresEvaluationRepository) GetByID(ctx context.Context, id int) (*models.Evaluation, error) {
	query := `SELECT ` + evaluationColumns + ` FROM evaluations WHERE id = $1`
	e, err := scanEvaluation(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEvaluationNotFound
		}
		return nil, fmt.Errorf("failed to get evaluation %d: %w", id, err)
	}
	return e, nil
}

func (r *postgresEvaluationRepository) queryEvaluations(ctx context.Context, exec SQLExecutor, query string, args ...interface{}) ([]*models.Evaluation, error) {
	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list evaluations: %w", err)
	}
	defer rows.Close()

	evaluations := make([]*models.Evaluation, 0)
	for rows.Next() {
		e, err := scanEvaluation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan evaluation row: %w", err)
		}
		evaluations = append(evaluations, e)
	}
	return evaluations, rows.Err()
}

func (r *postgresEvaluationRepository) ListByPosting(ctx context.Context, postingID int) ([]*models.Evaluation, error) {
	query := `SELECT ` + evaluationColumns + ` FROM evaluations WHERE posting_id = $1 ORDER BY created_at ASC`
	return r.queryEvaluations(ctx, r.db, query, postingID)
}

func (r *postgresEvaluationRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]*models.Evaluation, error) {
	executor := r.getExecutor(exec)
	query := `
		SELECT e.id, e.posting_id, e.judge_id, e.winning_team_id, e.scores, e.notes, e.created_at
		FROM evaluations e
		JOIN postings p ON e.posting_id = p.id
		WHERE p.tournament_id = $1
		ORDER BY e.created_at ASC`
	return r.queryEvaluations(ctx, executor, query, tournamentID)
}
