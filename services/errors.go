package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Shared errors surfaced by the services and mapped onto HTTP statuses in the
// handlers package.
var (
	// Not-found family
	ErrNotFound           = errors.New("requested resource not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrTournamentNotFound = errors.New("tournament not found")
	ErrTeamNotFound       = errors.New("team not found")
	ErrPostingNotFound    = errors.New("posting not found")
	ErrEvaluationNotFound = errors.New("evaluation not found")
	ErrNotAParticipant    = errors.New("user is not a participant of this tournament")

	// Conflicts
	ErrAlreadyParticipant = errors.New("user is already a participant of this tournament")
	ErrUserAlreadyInTeam  = errors.New("user already belongs to a team in this tournament")
	ErrEvaluationExists   = errors.New("judge has already evaluated this posting")
	ErrTeamsExist         = errors.New("tournament already has teams; randomization requires overwrite")
	ErrTeamsInUse         = errors.New("existing teams are referenced by postings")
	ErrEmailTaken         = errors.New("email is already taken")
	ErrUsernameTaken      = errors.New("username is already taken")

	// Business-rule rejections
	ErrCapacityExceeded   = errors.New("tournament capacity for this role is exhausted")
	ErrRegistrationClosed = errors.New("tournament registration is closed")
	ErrNotEnoughDebaters  = errors.New("not enough debaters to form teams")
	ErrInvalidTransition  = errors.New("invalid status transition")

	// Authorization
	ErrForbidden          = errors.New("operation not allowed for the current user")
	ErrCreatorOnly        = errors.New("only the tournament creator can perform this action")
	ErrAssignedJudgeOnly  = errors.New("only an assigned judge can evaluate this posting")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// ValidationError reports every violated input constraint at once, keyed by
// field name.
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError() *ValidationError {
	return &ValidationError{Fields: make(map[string]string)}
}

func (e *ValidationError) Add(field, message string) {
	e.Fields[field] = message
}

func (e *ValidationError) HasErrors() bool {
	return len(e.Fields) > 0
}

// ErrOrNil lets callers accumulate violations and fail once at the end.
func (e *ValidationError) ErrOrNil() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f, e.Fields[f]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
