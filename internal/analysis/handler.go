package analysis

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/aprep/backend/internal/models"
)

type Handler struct {
	analyst *Analyst
}

func NewHandler(analyst *Analyst) *Handler {
	return &Handler{analyst: analyst}
}

// RegisterRoutes mounts the analysis endpoints on the given subrouter.
func (h *Handler) RegisterRoutes(api *mux.Router) {
	api.HandleFunc("/analysis/items/{itemID}", h.AnalyzeItem).Methods("POST")
	api.HandleFunc("/analysis/batch", h.AnalyzeBatch).Methods("POST")
	api.HandleFunc("/analysis/statistics", h.GetStatistics).Methods("GET")
	api.HandleFunc("/analysis/problematic", h.GetProblematic).Methods("GET")
}

func (h *Handler) AnalyzeItem(w http.ResponseWriter, r *http.Request) {
	itemID := mux.Vars(r)["itemID"]

	var req models.AnalyzeItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if req.CorrectAnswer == "" {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "correct_answer is required"})
		return
	}

	stats, err := h.analyst.AnalyzeItem(itemID, req.Responses, req.CorrectAnswer, req.Distractors)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, models.ErrorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) AnalyzeBatch(w http.ResponseWriter, r *http.Request) {
	var req models.BatchAnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if len(req.Items) == 0 {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "items must not be empty"})
		return
	}

	writeJSON(w, http.StatusOK, h.analyst.AnalyzeBatch(req.Items))
}

func (h *Handler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.analyst.Statistics())
}

func (h *Handler) GetProblematic(w http.ResponseWriter, r *http.Request) {
	items := h.analyst.ProblematicItems()
	if items == nil {
		items = []models.AnalysisRecord{}
	}
	writeJSON(w, http.StatusOK, items)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("WARN: write response: %v", err)
	}
}
