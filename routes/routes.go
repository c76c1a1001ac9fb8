package routes

import (
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/debetter/tournament-service/handlers"
	"github.com/debetter/tournament-service/middleware"
	"github.com/debetter/tournament-service/models"
)

// SetupRoutes wires every handler onto the router. Read endpoints are public;
// anything that mutates state requires a valid token.
func SetupRoutes(
	router *chi.Mux,
	jwtSecret []byte,
	authHandler *handlers.AuthHandler,
	tournamentHandler *handlers.TournamentHandler,
	teamHandler *handlers.TeamHandler,
	postingHandler *handlers.PostingHandler,
	evaluationHandler *handlers.EvaluationHandler,
	webSocketHandler *handlers.WebSocketHandler,
) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	authenticate := middleware.Authenticate(jwtSecret)

	router.Post("/auth/signup", authHandler.SignUp)
	router.Post("/auth/signin", authHandler.SignIn)

	router.Route("/tournaments", func(r chi.Router) {
		r.Get("/", tournamentHandler.List)
		r.Get("/{tournamentID}", tournamentHandler.GetByID)
		r.Get("/{tournamentID}/participants", tournamentHandler.ListParticipants)
		r.Get("/{tournamentID}/teams", teamHandler.List)
		r.Get("/{tournamentID}/postings", postingHandler.List)
		r.Get("/{tournamentID}/postings/{postingID}", postingHandler.GetByID)
		r.Get("/{tournamentID}/postings/{postingID}/evaluations", evaluationHandler.ListByPosting)
		r.Get("/{tournamentID}/tabulation", tournamentHandler.Standings)

		r.Group(func(r chi.Router) {
			r.Use(authenticate)

			r.Post("/", tournamentHandler.Create)
			r.Put("/{tournamentID}", tournamentHandler.Update)
			r.Put("/{tournamentID}/status", tournamentHandler.UpdateStatus)
			r.Post("/{tournamentID}/join", tournamentHandler.Join)
			r.Post("/{tournamentID}/leave", tournamentHandler.Leave)
			r.Post("/{tournamentID}/map", tournamentHandler.UploadMap)

			r.Post("/{tournamentID}/teams", teamHandler.Create)
			r.Post("/{tournamentID}/randomize-teams", teamHandler.Randomize)

			r.Post("/{tournamentID}/postings", postingHandler.Create)
			r.Put("/{tournamentID}/postings/{postingID}/status", postingHandler.UpdateStatus)
			r.Post("/{tournamentID}/postings/{postingID}/reminders", postingHandler.SendReminder)
			r.Post("/{tournamentID}/postings/{postingID}/ballot", postingHandler.UploadBallot)
			r.Post("/{tournamentID}/postings/{postingID}/evaluate", evaluationHandler.Submit)
		})
	})

	router.Get("/teams/{teamID}", teamHandler.GetByID)
	router.Get("/evaluations/{evaluationID}", evaluationHandler.GetByID)

	router.Group(func(r chi.Router) {
		r.Use(authenticate)
		r.Use(middleware.Authorize(string(models.RoleJudge), string(models.RoleAdmin)))
		r.Get("/judge/assignments", postingHandler.JudgeAssignments)
	})

	router.Get("/ws/tournaments/{tournamentID}", webSocketHandler.ServeWs)

	router.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
}
