package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/debetter/tournament-service/models"
	"github.com/debetter/tournament-service/repositories"
)

// A losing team still earns a participation point.
const participationPoints = 1

type SubmitEvaluationInput struct {
	WinningTeamID int                            `json:"winning_team_id"`
	Scores        map[string]models.SpeakerScore `json:"scores"`
	Comments      string                         `json:"comments,omitempty"`
}

type EvaluationService interface {
	SubmitEvaluation(ctx context.Context, postingID, judgeID int, input SubmitEvaluationInput) (*models.Evaluation, error)
	GetEvaluation(ctx context.Context, id int) (*models.Evaluation, error)
	ListByPosting(ctx context.Context, postingID int) ([]*models.Evaluation, error)
}

type evaluationService struct {
	db             *sql.DB
	evaluationRepo repositories.EvaluationRepository
	postingRepo    repositories.PostingRepository
	teamRepo       repositories.TeamRepository
	logger         *slog.Logger
}

func NewEvaluationService(
	db *sql.DB,
	evaluationRepo repositories.EvaluationRepository,
	postingRepo repositories.PostingRepository,
	teamRepo repositories.TeamRepository,
	logger *slog.Logger,
) EvaluationService {
	return &evaluationService{
		db:             db,
		evaluationRepo: evaluationRepo,
		postingRepo:    postingRepo,
		teamRepo:       teamRepo,
		logger:         logger,
	}
}

func validateScores(scores map[string]models.SpeakerScore) error {
	v := NewValidationError()
	for _, slot := range models.SpeakerSlots {
		score, ok := scores[slot]
		if !ok {
			v.Add("scores."+slot, "is required")
			continue
		}
		for component, value := range map[string]int{
			"content":  score.Content,
			"style":    score.Style,
			"strategy": score.Strategy,
		} {
			if value < 0 || value > models.SpeakerScoreMax {
				v.Add(fmt.Sprintf("scores.%s.%s", slot, component),
					fmt.Sprintf("must be between 0 and %d", models.SpeakerScoreMax))
			}
		}
	}
	for slot := range scores {
		known := false
		for _, s := range models.SpeakerSlots {
			if slot == s {
				known = true
				break
			}
		}
		if !known {
			v.Add("scores."+slot, "unknown speaker slot")
		}
	}
	return v.ErrOrNil()
}

// SubmitEvaluation records a judge's ballot and settles the debate. The
// ballot insert, the posting outcome, and both teams' aggregates commit
// together; a second ballot from the same judge aborts the transaction before
// any aggregate moves.
func (s *evaluationService) SubmitEvaluation(ctx context.Context, postingID, judgeID int, input SubmitEvaluationInput) (*models.Evaluation, error) {
	posting, err := s.postingRepo.GetByID(ctx, nil, postingID)
	if err != nil {
		if errors.Is(err, repositories.ErrPostingNotFound) {
			return nil, ErrPostingNotFound
		}
		return nil, err
	}
	if !posting.HasJudge(judgeID) {
		return nil, ErrAssignedJudgeOnly
	}

	v := NewValidationError()
	if input.WinningTeamID != posting.Team1ID && input.WinningTeamID != posting.Team2ID {
		v.Add("winning_team_id", "must be one of the posting's teams")
	}
	if err := v.ErrOrNil(); err != nil {
		return nil, err
	}
	if err := validateScores(input.Scores); err != nil {
		return nil, err
	}

	scores := models.SpeakerScores(input.Scores)
	govTotal := scores.SideTotal(models.SlotLeaderGov, models.SlotSpeakerGov)
	oppTotal := scores.SideTotal(models.SlotLeaderOpp, models.SlotSpeakerOpp)

	// Team1 debates government, team2 opposition; the winner banks its own
	// side's speaker totals.
	winnerPoints := govTotal
	loserID := posting.Team2ID
	if input.WinningTeamID == posting.Team2ID {
		winnerPoints = oppTotal
		loserID = posting.Team1ID
	}

	eval := &models.Evaluation{
		PostingID:     postingID,
		JudgeID:       judgeID,
		WinningTeamID: input.WinningTeamID,
		Scores:        scores,
		Notes:         input.Comments,
	}

	err = withTx(ctx, s.db, func(exec repositories.SQLExecutor) error {
		if err := s.evaluationRepo.Create(ctx, exec, eval); err != nil {
			if errors.Is(err, repositories.ErrEvaluationConflict) {
				return ErrEvaluationExists
			}
			return err
		}
		if err := s.postingRepo.RecordOutcome(ctx, exec, postingID, input.WinningTeamID, govTotal, oppTotal, input.Comments); err != nil {
			return err
		}
		if err := s.teamRepo.RecordWin(ctx, exec, input.WinningTeamID, winnerPoints); err != nil {
			return err
		}
		return s.teamRepo.RecordLoss(ctx, exec, loserID, participationPoints)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "evaluation submitted",
		slog.Int("posting_id", postingID),
		slog.Int("judge_id", judgeID),
		slog.Int("winning_team_id", input.WinningTeamID),
	)
	return eval, nil
}

func (s *evaluationService) GetEvaluation(ctx context.Context, id int) (*models.Evaluation, error) {
	eval, err := s.evaluationRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrEvaluationNotFound) {
			return nil, ErrEvaluationNotFound
		}
		return nil, err
	}
	return eval, nil
}

func (s *evaluationService) ListByPosting(ctx context.Context, postingID int) ([]*models.Evaluation, error) {
	if _, err := s.postingRepo.GetByID(ctx, nil, postingID); err != nil {
		if errors.Is(err, repositories.ErrPostingNotFound) {
			return nil, ErrPostingNotFound
		}
		return nil, err
	}
	return s.evaluationRepo.ListByPosting(ctx, postingID)
}
