package models

import "time"

// Speaker slots of an APF debate, used as keys in an evaluation's score map.
// Government = posting team1, opposition = posting team2.
const (
	SlotLeaderGov  = "leader_gov"
	SlotSpeakerGov = "speaker_gov"
	SlotLeaderOpp  = "leader_opp"
	SlotSpeakerOpp = "speaker_opp"
)

var SpeakerSlots = []string{SlotLeaderGov, SlotSpeakerGov, SlotLeaderOpp, SlotSpeakerOpp}

// SpeakerScore is one judge's score triple for a single speaker. Each
// component is bounded 0..100.
type SpeakerScore struct {
	Content  int `json:"content"`
	Style    int `json:"style"`
	Strategy int `json:"strategy"`
}

const SpeakerScoreMax = 100

func (s SpeakerScore) Total() int {
	return s.Content + s.Style + s.Strategy
}

// SpeakerScores maps a speaker slot to its score triple. All four slots must
// be present in a submitted evaluation.
type SpeakerScores map[string]SpeakerScore

// SideTotal sums the two speaker totals of one side.
func (ss SpeakerScores) SideTotal(leaderSlot, speakerSlot string) int {
	return ss[leaderSlot].Total() + ss[speakerSlot].Total()
}

// Evaluation is a single judge's ballot for a posting. At most one exists per
// (posting, judge) pair; it is never updated after creation.
type Evaluation struct {
	ID            int           `json:"id" db:"id"`
	PostingID     int           `json:"posting_id" db:"posting_id"`
	JudgeID       int           `json:"judge_id" db:"judge_id"`
	WinningTeamID int           `json:"winning_team_id" db:"winning_team_id"`
	Scores        SpeakerScores `json:"scores" db:"scores"`
	Notes         string        `json:"notes,omitempty" db:"notes"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`

	Judge *UserRef `json:"judge,omitempty" db:"-"`
}
