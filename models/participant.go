package models

import "time"

// ParticipantRole is the role a user holds inside one tournament, independent
// of the account-level UserRole.
type ParticipantRole string

const (
	ParticipantDebater ParticipantRole = "debater"
	ParticipantJudge   ParticipantRole = "judge"
)

type Participant struct {
	ID           int             `json:"id" db:"id"`
	TournamentID int             `json:"tournament_id" db:"tournament_id"`
	UserID       int             `json:"user_id" db:"user_id"`
	Role         ParticipantRole `json:"role" db:"role"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`

	User *User `json:"user,omitempty" db:"-"`
}

// UserRef is the single tagged reference shape used wherever a participant or
// judge appears in API payloads, whether or not details were resolved.
type UserRef struct {
	ID       int    `json:"id"`
	Username string `json:"username,omitempty"`
}
