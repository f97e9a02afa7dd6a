package calibration

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/aprep/backend/internal/models"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the calibration endpoints on the given subrouter.
func (h *Handler) RegisterRoutes(api *mux.Router) {
	api.HandleFunc("/calibration/initial", h.InitialEstimate).Methods("POST")
	api.HandleFunc("/calibration/items/{itemID}/calibrate", h.Calibrate).Methods("POST")
	api.HandleFunc("/calibration/items/{itemID}/response", h.OnlineUpdate).Methods("POST")
	api.HandleFunc("/calibration/items/{itemID}/probability", h.GetProbability).Methods("GET")
	api.HandleFunc("/calibration/items/{itemID}", h.GetParameters).Methods("GET")
	api.HandleFunc("/calibration/recommendations", h.Recommend).Methods("GET")
	api.HandleFunc("/calibration/anchors", h.AddAnchor).Methods("POST")
	api.HandleFunc("/calibration/anchors/{topicID}", h.GetAnchors).Methods("GET")
	api.HandleFunc("/calibration/statistics", h.GetStatistics).Methods("GET")
	api.HandleFunc("/calibration/recalibrate", h.RecalibrateAll).Methods("POST")
}

func (h *Handler) InitialEstimate(w http.ResponseWriter, r *http.Request) {
	var req models.InitialEstimateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}

	params := h.service.EstimateInitialDifficulty(r.Context(), req.Variant, req.Context)
	writeJSON(w, http.StatusCreated, params)
}

func (h *Handler) Calibrate(w http.ResponseWriter, r *http.Request) {
	itemID := mux.Vars(r)["itemID"]

	var req models.CalibrateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if len(req.Responses) == 0 {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "responses must not be empty"})
		return
	}

	params, err := h.service.CalibrateFromResponses(r.Context(), itemID, req.Responses, req.StudentAbilities)
	if err != nil {
		// The fit succeeded but persistence failed; surface the estimate
		// anyway so the caller can retry.
		log.Printf("WARN: calibrate %s: %v", itemID, err)
	}
	writeJSON(w, http.StatusOK, params)
}

func (h *Handler) OnlineUpdate(w http.ResponseWriter, r *http.Request) {
	itemID := mux.Vars(r)["itemID"]

	var req models.OnlineUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}
	req.Response.ItemID = itemID

	learningRate := 0.0
	if req.LearningRate != nil {
		learningRate = *req.LearningRate
	}

	params, err := h.service.UpdateDifficultyOnline(r.Context(), itemID, req.Response, req.StudentAbility, learningRate)
	if err != nil {
		log.Printf("WARN: online update %s: %v", itemID, err)
	}
	writeJSON(w, http.StatusOK, params)
}

func (h *Handler) GetParameters(w http.ResponseWriter, r *http.Request) {
	itemID := mux.Vars(r)["itemID"]

	params, err := h.service.ItemParameters(r.Context(), itemID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to load parameters"})
		return
	}
	if params == nil {
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "No parameters for item"})
		return
	}
	writeJSON(w, http.StatusOK, params)
}

func (h *Handler) GetProbability(w http.ResponseWriter, r *http.Request) {
	itemID := mux.Vars(r)["itemID"]

	theta, err := strconv.ParseFloat(r.URL.Query().Get("theta"), 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "theta query parameter required"})
		return
	}

	p := h.service.ItemProbability(r.Context(), itemID, theta)
	writeJSON(w, http.StatusOK, map[string]float64{"probability_correct": p})
}

func (h *Handler) Recommend(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	targetB, err := strconv.ParseFloat(query.Get("target_b"), 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "target_b query parameter required"})
		return
	}

	count := 0
	if v := query.Get("count"); v != "" {
		if count, err = strconv.Atoi(v); err != nil {
			writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "invalid count"})
			return
		}
	}

	tolerance := 0.0
	if v := query.Get("tolerance"); v != "" {
		if tolerance, err = strconv.ParseFloat(v, 64); err != nil {
			writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "invalid tolerance"})
			return
		}
	}

	items, err := h.service.RecommendByDifficulty(targetB, query.Get("topic_id"), count, tolerance)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Recommendation failed"})
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) AddAnchor(w http.ResponseWriter, r *http.Request) {
	var req models.AddAnchorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if req.ItemID == "" || req.TopicID == "" || req.CourseID == "" {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "item_id, topic_id and course_id are required"})
		return
	}

	anchor, err := h.service.AddAnchorItem(req.ItemID, req.TopicID, req.CourseID,
		req.Params, req.Validated, req.ConfidenceScore)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, models.ErrorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, anchor)
}

func (h *Handler) GetAnchors(w http.ResponseWriter, r *http.Request) {
	topicID := mux.Vars(r)["topicID"]

	anchors, err := h.service.TopicAnchors(topicID, r.URL.Query().Get("course_id"))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to load anchors"})
		return
	}
	writeJSON(w, http.StatusOK, anchors)
}

func (h *Handler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Statistics()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to compute statistics"})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) RecalibrateAll(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.CalibrateAll(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Recalibration failed: " + err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("WARN: write response: %v", err)
	}
}
