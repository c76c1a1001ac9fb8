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
	ErrPostingNotFound    = errors.New("posting not found")
	ErrPostingTeamInvalid = errors.New("invalid posting team reference")
)

type ListPostingsFilter struct {
	Status  *models.PostingStatus
	JudgeID *int
}

type PostingRepository interface {
	Create(ctx context.Context, exec SQLExecutor, p *models.Posting) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Posting, error)
	ListByTournament(ctx context.Context, tournamentID int, filter ListPostingsFilter) ([]*models.Posting, error)
	ListByJudge(ctx context.Context, judgeID int) ([]*models.Posting, error)
	UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.PostingStatus) error
	RecordOutcome(ctx context.Context, exec SQLExecutor, id, winnerID, team1Score, team2Score int, comments string) error
	MarkJudgesNotified(ctx context.Context, id int, at time.Time) error
	UpdateBallotKey(ctx context.Context, id int, ballotKey *string) error
}

type postgresPostingRepository struct {
	db *sql.DB
}

func NewPostgresPostingRepository(db *sql.DB) PostingRepository {
	return &postgresPostingRepository{db: db}
}

func (r *postgresPostingRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const postingColumns = `
	id, tournament_id, team1_id, team2_id, location, virtual_link, theme,
	use_custom_model, custom_model, scheduled_time, status, winner_id,
	team1_score, team2_score, comments, ballot_key, judges_notified, notified_at,
	created_by, created_at`

func (r *postgresPostingRepository) Create(ctx context.Context, exec SQLExecutor, p *models.Posting) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO postings (
			tournament_id, team1_id, team2_id, location, virtual_link, theme,
			use_custom_model, custom_model, scheduled_time, status, created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at`

	err := executor.QueryRowContext(ctx, query,
		p.TournamentID, p.Team1ID, p.Team2ID, p.Location, p.VirtualLink, p.Theme,
		p.UseCustomModel, p.CustomModel, p.ScheduledTime, p.Status, p.CreatedBy,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23503" {
			switch pqErr.Constraint {
			case "postings_team1_id_fkey", "postings_team2_id_fkey":
				return ErrPostingTeamInvalid
			}
		}
		return fmt.Errorf("failed to create posting: %w", err)
	}

	for _, judgeID := range p.JudgeIDs {
		if _, err := executor.ExecContext(ctx,
			`INSERT INTO posting_judges (posting_id, user_id) VALUES ($1, $2)`,
			p.ID, judgeID,
		); err != nil {
			return fmt.Errorf("failed to assign judge %d to posting %d: %w", judgeID, p.ID, err)
		}
	}
	return nil
}

func scanPosting(scanner interface{ Scan(dest ...interface{}) error }, p *models.Posting) error {
	return scanner.Scan(
		&p.ID, &p.TournamentID, &p.Team1ID, &p.Team2ID, &p.Location, &p.VirtualLink,
		&p.Theme, &p.UseCustomModel, &p.CustomModel, &p.ScheduledTime, &p.Status,
		&p.WinnerID, &p.Team1Score, &p.Team2Score, &p.Comments, &p.BallotKey,
		&p.JudgesNotified, &p.NotifiedAt, &p.CreatedBy, &p.CreatedAt,
	)
}

func (r *postgresPostingRepository) loadJudges(ctx context.Context, exec SQLExecutor, postings map[int]*models.Posting) error {
	if len(postings) == 0 {
		return nil
	}
	ids := make([]int, 0, len(postings))
	for id := range postings {
		ids = append(ids, id)
	}

	rows, err := exec.QueryContext(ctx, `
		SELECT pj.posting_id, pj.user_id, u.username
		FROM posting_judges pj
		JOIN users u ON pj.user_id = u.id
		WHERE pj.posting_id = ANY($1)
		ORDER BY pj.posting_id, pj.user_id`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to load posting judges: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var postingID, userID int
		var username string
		if err := rows.Scan(&postingID, &userID, &username); err != nil {
			return fmt.Errorf("failed to scan posting judge row: %w", err)
		}
		if p, ok := postings[postingID]; ok {
			p.JudgeIDs = append(p.JudgeIDs, userID)
			p.Judges = append(p.Judges, models.UserRef{ID: userID, Username: username})
		}
	}
	return rows.Err()
}

func (r *postgresPostingRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Posting, error) {
	executor := r.getExecutor(exec)
	query := `SELECT` + postingColumns + ` FROM postings WHERE id = $1`

	p := &models.Posting{}
	if err := scanPosting(executor.QueryRowContext(ctx, query, id), p); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPostingNotFound
		}
		return nil, fmt.Errorf("failed to get posting %d: %w", id, err)
	}
	if err := r.loadJudges(ctx, executor, map[int]*models.Posting{p.ID: p}); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *postgresPostingRepository) queryPostings(ctx context.Context, query string, args ...interface{}) ([]*models.Posting, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list postings: %w", err)
	}
	defer rows.Close()

	postings := make([]*models.Posting, 0)
	byID := make(map[int]*models.Posting)
	for rows.Next() {
		var p models.Posting
		if err := scanPosting(rows, &p); err != nil {
			return nil, fmt.Errorf("failed to scan posting row: %w", err)
		}
		postings = append(postings, &p)
		byID[p.ID] = &p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.loadJudges(ctx, r.db, byID); err != nil {
		return nil, err
	}
	return postings, nil
}

func (r *postgresPostingRepository) ListByTournament(ctx context.Context, tournamentID int, filter ListPostingsFilter) ([]*models.Posting, error) {
	query := `SELECT` + postingColumns + ` FROM postings WHERE tournament_id = $1`
	args := []interface{}{tournamentID}
	argID := 2

	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argID)
		args = append(args, *filter.Status)
		argID++
	}
	if filter.JudgeID != nil {
		query += fmt.Sprintf(" AND id IN (SELECT posting_id FROM posting_judges WHERE user_id = $%d)", argID)
		args = append(args, *filter.JudgeID)
	}
	query += " ORDER BY created_at ASC, id ASC"

	return r.queryPostings(ctx, query, args...)
}

func (r *postgresPostingRepository) ListByJudge(ctx context.Context, judgeID int) ([]*models.Posting, error) {
	query := `SELECT` + postingColumns + `
		FROM postings
		WHERE id IN (SELECT posting_id FROM posting_judges WHERE user_id = $1)
		ORDER BY scheduled_time ASC NULLS LAST, id ASC`
	return r.queryPostings(ctx, query, judgeID)
}

func (r *postgresPostingRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.PostingStatus) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx, `UPDATE postings SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update posting status: %w", err)
	}
	return checkAffectedRows(result, ErrPostingNotFound)
}

func (r *postgresPostingRepository) RecordOutcome(ctx context.Context, exec SQLExecutor, id, winnerID, team1Score, team2Score int, comments string) error {
	executor := r.getExecutor(exec)
	query := `
		UPDATE postings
		SET status = $1, winner_id = $2, team1_score = $3, team2_score = $4, comments = $5
		WHERE id = $6`

	result, err := executor.ExecContext(ctx, query,
		models.PostingCompleted, winnerID, team1Score, team2Score, comments, id)
	if err != nil {
		return fmt.Errorf("failed to record posting outcome: %w", err)
	}
	return checkAffectedRows(result, ErrPostingNotFound)
}

func (r *postgresPostingRepository) MarkJudgesNotified(ctx context.Context, id int, at time.Time) error {
	query := `UPDATE postings SET judges_notified = TRUE, notified_at = $1 WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, at, id)
	if err != nil {
		return fmt.Errorf("failed to mark posting judges notified: %w", err)
	}
	return checkAffectedRows(result, ErrPostingNotFound)
}

func (r *postgresPostingRepository) UpdateBallotKey(ctx context.Context, id int, ballotKey *string) error {
	query := `UPDATE postings SET ballot_key = $1 WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, ballotKey, id)
	if err != nil {
		return fmt.Errorf("failed to update posting ballot key: %w", err)
	}
	return checkAffectedRows(result, ErrPostingNotFound)
}
