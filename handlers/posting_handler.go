package handlers

import (
	"net/http"
	"strconv"

	"github.com/debetter/tournament-service/middleware"
	"github.com/debetter/tournament-service/models"
	"github.com/debetter/tournament-service/repositories"
	"github.com/debetter/tournament-service/services"
)

type PostingHandler struct {
	postingService services.PostingService
}

func NewPostingHandler(postingService services.PostingService) *PostingHandler {
	return &PostingHandler{postingService: postingService}
}

func (h *PostingHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, err.Error())
		return
	}
	tournamentID, err := readIDParam(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input services.CreatePostingInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	posting, err := h.postingService.CreatePosting(r.Context(), tournamentID, userID, input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, jsonResponse{"posting": posting}, nil)
}

func (h *PostingHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := readIDParam(r, "postingID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	posting, err := h.postingService.GetPosting(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"posting": posting}, nil)
}

func (h *PostingHandler) List(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := readIDParam(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	filter := repositories.ListPostingsFilter{}
	q := r.URL.Query()
	if status := q.Get("status"); status != "" {
		s := models.PostingStatus(status)
		filter.Status = &s
	}
	if judge := q.Get("judge_id"); judge != "" {
		id, err := strconv.Atoi(judge)
		if err != nil || id < 1 {
			badRequestResponse(w, r, errInvalidQueryParam("judge_id"))
			return
		}
		filter.JudgeID = &id
	}

	postings, err := h.postingService.ListPostings(r.Context(), tournamentID, filter)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"postings": postings}, nil)
}

func (h *PostingHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, err.Error())
		return
	}
	id, err := readIDParam(r, "postingID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		Status models.PostingStatus `json:"status"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	posting, err := h.postingService.UpdatePostingStatus(r.Context(), id, userID, input.Status)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"posting": posting}, nil)
}

func (h *PostingHandler) SendReminder(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, err.Error())
		return
	}
	id, err := readIDParam(r, "postingID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	result, err := h.postingService.SendReminder(r.Context(), id, userID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result, nil)
}

// JudgeAssignments lists the authenticated judge's postings.
func (h *PostingHandler) JudgeAssignments(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, err.Error())
		return
	}

	postings, err := h.postingService.JudgeAssignments(r.Context(), userID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"postings": postings}, nil)
}

func (h *PostingHandler) UploadBallot(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, err.Error())
		return
	}
	id, err := readIDParam(r, "postingID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	file, header, err := r.FormFile("ballot")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	defer file.Close()

	posting, err := h.postingService.UploadBallot(r.Context(), id, userID, header.Header.Get("Content-Type"), file)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"posting": posting}, nil)
}
