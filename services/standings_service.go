package services

import (
	"context"
	"errors"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/debetter/tournament-service/models"
	"github.com/debetter/tournament-service/repositories"
)

type StandingsService interface {
	GetStandings(ctx context.Context, tournamentID int) ([]models.Standing, error)
}

type standingsService struct {
	tournamentRepo repositories.TournamentRepository
	teamRepo       repositories.TeamRepository
}

func NewStandingsService(
	tournamentRepo repositories.TournamentRepository,
	teamRepo repositories.TeamRepository,
) StandingsService {
	return &standingsService{
		tournamentRepo: tournamentRepo,
		teamRepo:       teamRepo,
	}
}

// GetStandings recomputes the table from team aggregates on every call; there
// is no cached ranking to drift out of date. Ties on wins break on points,
// then on team creation order.
func (s *standingsService) GetStandings(ctx context.Context, tournamentID int) ([]models.Standing, error) {
	var teams []*models.Team

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := s.tournamentRepo.GetByID(gctx, nil, tournamentID)
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return ErrTournamentNotFound
		}
		return err
	})
	g.Go(func() error {
		var err error
		teams, err = s.teamRepo.ListByTournament(gctx, nil, tournamentID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// ListByTournament returns creation order, which makes the stable sort's
	// residual order the final tie-break.
	standings := make([]models.Standing, 0, len(teams))
	for _, t := range teams {
		standings = append(standings, models.Standing{
			TeamID: t.ID,
			Name:   t.Name,
			Wins:   t.Wins,
			Losses: t.Losses,
			Points: t.Points,
		})
	}
	sort.SliceStable(standings, func(i, j int) bool {
		if standings[i].Wins != standings[j].Wins {
			return standings[i].Wins > standings[j].Wins
		}
		return standings[i].Points > standings[j].Points
	})
	for i := range standings {
		standings[i].Rank = i + 1
	}
	return standings, nil
}
