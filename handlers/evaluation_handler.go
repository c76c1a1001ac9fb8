package handlers

import (
	"net/http"

	"github.com/debetter/tournament-service/middleware"
	"github.com/debetter/tournament-service/services"
)

type EvaluationHandler struct {
	evaluationService services.EvaluationService
}

func NewEvaluationHandler(evaluationService services.EvaluationService) *EvaluationHandler {
	return &EvaluationHandler{evaluationService: evaluationService}
}

func (h *EvaluationHandler) Submit(w http.ResponseWriter, r *http.Request) {
	judgeID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, err.Error())
		return
	}
	postingID, err := readIDParam(r, "postingID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input services.SubmitEvaluationInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	eval, err := h.evaluationService.SubmitEvaluation(r.Context(), postingID, judgeID, input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, jsonResponse{"evaluation": eval}, nil)
}

func (h *EvaluationHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := readIDParam(r, "evaluationID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	eval, err := h.evaluationService.GetEvaluation(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"evaluation": eval}, nil)
}

func (h *EvaluationHandler) ListByPosting(w http.ResponseWriter, r *http.Request) {
	postingID, err := readIDParam(r, "postingID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	evaluations, err := h.evaluationService.ListByPosting(r.Context(), postingID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"evaluations": evaluations}, nil)
}
