package models

import "time"

// TournamentStatus values match the ENUM in the database. Status only moves
// forward: upcoming -> in-progress -> completed.
type TournamentStatus string

const (
	StatusUpcoming   TournamentStatus = "upcoming"
	StatusInProgress TournamentStatus = "in-progress"
	StatusCompleted  TournamentStatus = "completed"
)

type TournamentFormat string

const (
	FormatStandard   TournamentFormat = "standard"
	FormatTournament TournamentFormat = "tournament"
)

type TournamentMode string

const (
	ModeSolo TournamentMode = "solo"
	ModeDuo  TournamentMode = "duo"
)

// Default capacity caps for tournament-format events.
const (
	DefaultMaxDebaters     = 32
	DefaultMaxJudges       = 8
	DefaultMaxParticipants = 6
)

var ValidCategories = []string{"politics", "technology", "science", "society", "economics"}

var ValidDifficulties = []string{"beginner", "intermediate", "advanced"}

type Tournament struct {
	ID                   int              `json:"id" db:"id"`
	Title                string           `json:"title" db:"title"`
	Description          string           `json:"description" db:"description"`
	Category             string           `json:"category" db:"category"`
	Difficulty           string           `json:"difficulty" db:"difficulty"`
	Format               TournamentFormat `json:"format" db:"format"`
	Mode                 *TournamentMode  `json:"mode,omitempty" db:"mode"`
	Status               TournamentStatus `json:"status" db:"status"`
	Location             string           `json:"location" db:"location"`
	StartDate            time.Time        `json:"start_date" db:"start_date"`
	RegistrationDeadline *time.Time       `json:"registration_deadline,omitempty" db:"registration_deadline"`
	MaxDebaters          int              `json:"max_debaters" db:"max_debaters"`
	MaxJudges            int              `json:"max_judges" db:"max_judges"`
	MaxParticipants      int              `json:"max_participants" db:"max_participants"`
	CurrentDebaters      int              `json:"current_debaters" db:"current_debaters"`
	CurrentJudges        int              `json:"current_judges" db:"current_judges"`
	CreatorID            int              `json:"creator_id" db:"creator_id"`
	CreatedAt            time.Time        `json:"created_at" db:"created_at"`
	MapKey               *string          `json:"-" db:"map_key"`
	MapURL               *string          `json:"map_url,omitempty" db:"-"`

	// Optional linked data, populated by services.
	Creator      *Participant  `json:"-" db:"-"`
	Participants []Participant `json:"participants,omitempty" db:"-"`
	Teams        []Team        `json:"teams,omitempty" db:"-"`
	Postings     []Posting     `json:"postings,omitempty" db:"-"`
}

// RegistrationClosed reports whether the registration deadline (if any) has
// passed at the given instant.
func (t *Tournament) RegistrationClosed(now time.Time) bool {
	return t.RegistrationDeadline != nil && now.After(*t.RegistrationDeadline)
}
