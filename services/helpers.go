package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/debetter/tournament-service/models"
	"github.com/debetter/tournament-service/repositories"
)

// withTx runs fn inside a transaction on db, passing the transaction down to
// repositories as their SQLExecutor. A nil db (unit tests with in-memory
// repositories) degrades to a plain call with no executor.
func withTx(ctx context.Context, db *sql.DB, fn func(exec repositories.SQLExecutor) error) error {
	if db == nil {
		return fn(nil)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func isValidCategory(category string) bool {
	for _, c := range models.ValidCategories {
		if c == category {
			return true
		}
	}
	return false
}

func isValidDifficulty(difficulty string) bool {
	for _, d := range models.ValidDifficulties {
		if d == difficulty {
			return true
		}
	}
	return false
}

// isForwardStatusTransition encodes the one-way tournament lifecycle.
func isForwardStatusTransition(current, next models.TournamentStatus) bool {
	order := map[models.TournamentStatus]int{
		models.StatusUpcoming:   0,
		models.StatusInProgress: 1,
		models.StatusCompleted:  2,
	}
	ci, ok1 := order[current]
	ni, ok2 := order[next]
	return ok1 && ok2 && ni > ci
}

func userRef(u *models.User) models.UserRef {
	if u == nil {
		return models.UserRef{}
	}
	return models.UserRef{ID: u.ID, Username: u.Username}
}

// participantRole derives the tournament role a user takes when joining
// without an explicit role: judges judge, everyone else debates.
func participantRole(u *models.User) models.ParticipantRole {
	if u.Role == models.RoleJudge {
		return models.ParticipantJudge
	}
	return models.ParticipantDebater
}
