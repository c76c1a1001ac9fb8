package notifications

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/debetter/tournament-service/models"
)

// Message types pushed over the tournament feed.
const (
	TypePostingCreated  = "POSTING_CREATED"
	TypePostingReminder = "POSTING_REMINDER"
)

type postingPayload struct {
	Posting *models.Posting  `json:"posting"`
	Judges  []models.UserRef `json:"judges"`
	Members []models.UserRef `json:"team_members"`
}

// HubNotifier delivers posting notifications over the websocket hub. It
// satisfies the service layer's notifier contract: it never blocks and never
// returns an error, failures are only logged.
type HubNotifier struct {
	hub    *Hub
	logger *slog.Logger
}

func NewHubNotifier(hub *Hub, logger *slog.Logger) *HubNotifier {
	return &HubNotifier{hub: hub, logger: logger}
}

func (n *HubNotifier) PostingCreated(ctx context.Context, t *models.Tournament, p *models.Posting, judges, members []models.UserRef) {
	n.broadcast(ctx, TypePostingCreated, t, p, judges, members)
}

func (n *HubNotifier) PostingReminder(ctx context.Context, t *models.Tournament, p *models.Posting, judges, members []models.UserRef) {
	n.broadcast(ctx, TypePostingReminder, t, p, judges, members)
}

func (n *HubNotifier) broadcast(ctx context.Context, msgType string, t *models.Tournament, p *models.Posting, judges, members []models.UserRef) {
	room := strconv.Itoa(t.ID)
	n.hub.BroadcastToRoom(room, Message{
		Type:    msgType,
		RoomID:  room,
		Payload: postingPayload{Posting: p, Judges: judges, Members: members},
	})
	n.logger.InfoContext(ctx, "posting notification sent",
		slog.String("type", msgType),
		slog.Int("tournament_id", t.ID),
		slog.Int("posting_id", p.ID),
		slog.Int("judges", len(judges)),
		slog.Int("team_members", len(members)),
	)
}
