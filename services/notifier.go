package services

import (
	"context"

	"github.com/debetter/tournament-service/models"
)

// Notifier is the outbound notification collaborator. Delivery is
// at-most-once and best effort: implementations must never block the calling
// operation, and failures are logged by the implementation, not returned.
type Notifier interface {
	PostingCreated(ctx context.Context, tournament *models.Tournament, posting *models.Posting, judges, members []models.UserRef)
	PostingReminder(ctx context.Context, tournament *models.Tournament, posting *models.Posting, judges, members []models.UserRef)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) PostingCreated(context.Context, *models.Tournament, *models.Posting, []models.UserRef, []models.UserRef) {
}

func (NopNotifier) PostingReminder(context.Context, *models.Tournament, *models.Posting, []models.UserRef, []models.UserRef) {
}
