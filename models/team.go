package models

import "time"

type TeamMemberRole string

const (
	TeamLeader  TeamMemberRole = "leader"
	TeamSpeaker TeamMemberRole = "speaker"
)

// Team is a pair of debaters registered in one tournament. Wins, losses and
// points are accumulated exclusively by evaluation submission.
type Team struct {
	ID           int       `json:"id" db:"id"`
	TournamentID int       `json:"tournament_id" db:"tournament_id"`
	Name         string    `json:"name" db:"name"`
	LeaderID     int       `json:"leader_id" db:"leader_id"`
	SpeakerID    int       `json:"speaker_id" db:"speaker_id"`
	Wins         int       `json:"wins" db:"wins"`
	Losses       int       `json:"losses" db:"losses"`
	Points       int       `json:"points" db:"points"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`

	Leader  *UserRef `json:"leader,omitempty" db:"-"`
	Speaker *UserRef `json:"speaker,omitempty" db:"-"`
}

// HasMember reports whether the given user is the team's leader or speaker.
func (t *Team) HasMember(userID int) bool {
	return t.LeaderID == userID || t.SpeakerID == userID
}
