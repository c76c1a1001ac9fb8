package models

import "time"

type PostingStatus string

const (
	PostingScheduled PostingStatus = "scheduled"
	PostingCompleted PostingStatus = "completed"
)

// Posting is one scheduled debate between two teams with an assigned judge
// panel. Team1 debates government side, team2 opposition.
type Posting struct {
	ID             int           `json:"id" db:"id"`
	TournamentID   int           `json:"tournament_id" db:"tournament_id"`
	Team1ID        int           `json:"team1_id" db:"team1_id"`
	Team2ID        int           `json:"team2_id" db:"team2_id"`
	Location       string        `json:"location,omitempty" db:"location"`
	VirtualLink    string        `json:"virtual_link,omitempty" db:"virtual_link"`
	Theme          string        `json:"theme,omitempty" db:"theme"`
	UseCustomModel bool          `json:"use_custom_model" db:"use_custom_model"`
	CustomModel    string        `json:"custom_model,omitempty" db:"custom_model"`
	ScheduledTime  *time.Time    `json:"scheduled_time,omitempty" db:"scheduled_time"`
	Status         PostingStatus `json:"status" db:"status"`
	WinnerID       *int          `json:"winner_id,omitempty" db:"winner_id"`
	CreatedBy      int           `json:"created_by" db:"created_by"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`

	// Evaluation summary, set when the posting completes.
	Team1Score *int    `json:"team1_score,omitempty" db:"team1_score"`
	Team2Score *int    `json:"team2_score,omitempty" db:"team2_score"`
	Comments   *string `json:"comments,omitempty" db:"comments"`

	BallotKey *string `json:"-" db:"ballot_key"`
	BallotURL *string `json:"ballot_url,omitempty" db:"-"`

	JudgesNotified bool       `json:"judges_notified" db:"judges_notified"`
	NotifiedAt     *time.Time `json:"notified_at,omitempty" db:"notified_at"`

	JudgeIDs []int     `json:"judge_ids" db:"-"`
	Judges   []UserRef `json:"judges,omitempty" db:"-"`
	Team1    *Team     `json:"team1,omitempty" db:"-"`
	Team2    *Team     `json:"team2,omitempty" db:"-"`
}

// Topic returns the resolution being debated: either the theme string or the
// long-form custom model text.
func (p *Posting) Topic() string {
	if p.UseCustomModel {
		return p.CustomModel
	}
	return p.Theme
}

// HasJudge reports whether the given user sits on the posting's judge panel.
func (p *Posting) HasJudge(userID int) bool {
	for _, id := range p.JudgeIDs {
		if id == userID {
			return true
		}
	}
	return false
}
