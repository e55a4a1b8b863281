package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/mkarlsen/reconcile/internal/core/domain"
	"github.com/mkarlsen/reconcile/internal/core/ports"
)

type Router struct {
	matcher  ports.Matcher
	reviewer ports.SuggestionReviewer
	queue    ports.MatchQueue
}

func NewRouter(matcher ports.Matcher, reviewer ports.SuggestionReviewer, queue ports.MatchQueue) *Router {
	return &Router{
		matcher:  matcher,
		reviewer: reviewer,
		queue:    queue,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/inbox/", rt.matchInboxItem)
	mux.HandleFunc("/v1/transactions/", rt.matchTransaction)
	mux.HandleFunc("/v1/suggestions/", rt.reviewSuggestion)
	mux.HandleFunc("/v1/calibration", rt.getCalibration)
	return requestIDMiddleware(accessLogMiddleware(mux))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type matchRequestBody struct {
	TeamID string `json:"team_id"`
	Async  bool   `json:"async"`
}

func (rt *Router) matchInboxItem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	inboxID, ok := resourceAction(r.URL.Path, "/v1/inbox/", "match")
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	body, ok := decodeMatchRequest(w, r)
	if !ok {
		return
	}

	if body.Async {
		err := rt.queue.PublishMatchRequested(r.Context(), domain.MatchRequest{
			TeamID:    body.TeamID,
			InboxID:   inboxID,
			Direction: domain.DirectionForward,
		})
		if err != nil {
			writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
		return
	}

	result := rt.matcher.FindBestTransactionMatch(r.Context(), body.TeamID, inboxID)
	if result != nil {
		if _, err := rt.reviewer.RecordSuggestion(r.Context(), body.TeamID, inboxID, result.TransactionID, result); err != nil {
			writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

func (rt *Router) matchTransaction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	transactionID, ok := resourceAction(r.URL.Path, "/v1/transactions/", "match")
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	body, ok := decodeMatchRequest(w, r)
	if !ok {
		return
	}

	if body.Async {
		err := rt.queue.PublishMatchRequested(r.Context(), domain.MatchRequest{
			TeamID:        body.TeamID,
			TransactionID: transactionID,
			Direction:     domain.DirectionReverse,
		})
		if err != nil {
			writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
		return
	}

	result := rt.matcher.FindBestInboxMatch(r.Context(), body.TeamID, transactionID)
	if result != nil {
		if _, err := rt.reviewer.RecordSuggestion(r.Context(), body.TeamID, result.InboxID, transactionID, result); err != nil {
			writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

func (rt *Router) reviewSuggestion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/v1/suggestions/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	suggestionID, action := parts[0], parts[1]

	var body struct {
		TeamID string `json:"team_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(body.TeamID) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "team_id is required"})
		return
	}

	var err error
	switch action {
	case "confirm":
		err = rt.reviewer.ConfirmSuggestion(r.Context(), body.TeamID, suggestionID)
	case "decline":
		err = rt.reviewer.DeclineSuggestion(r.Context(), body.TeamID, suggestionID)
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) getCalibration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	teamID := strings.TrimSpace(r.URL.Query().Get("team_id"))
	if teamID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "team_id is required"})
		return
	}

	calibration, err := rt.matcher.GetTeamCalibration(r.Context(), teamID)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, calibration)
}

// resourceAction splits "/prefix/{id}/{action}" paths.
func resourceAction(path, prefix, action string) (string, bool) {
	rest := strings.TrimPrefix(path, prefix)
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != action {
		return "", false
	}
	return parts[0], true
}

func decodeMatchRequest(w http.ResponseWriter, r *http.Request) (matchRequestBody, bool) {
	var body matchRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return body, false
	}
	if strings.TrimSpace(body.TeamID) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "team_id is required"})
		return body, false
	}
	return body, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
