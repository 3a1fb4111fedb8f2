package history

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/strefethen/vr-console-go/internal/api"
	"github.com/strefethen/vr-console-go/internal/apperrors"
	"github.com/strefethen/vr-console-go/internal/backend"
)

// MaxLimit bounds the history page size.
const MaxLimit = 100

// RegisterRoutes wires session history routes to the router.
func RegisterRoutes(router chi.Router, service *Service) {
	router.Method(http.MethodGet, "/v1/sessions/history", api.Handler(listHistory(service)))
	router.Method(http.MethodPost, "/v1/sessions/{session_id}/stop", api.Handler(stopSession(service)))
	router.Method(http.MethodPost, "/v1/sessions/{session_id}/replay", api.Handler(replaySession(service)))
}

func listHistory(service *Service) api.Handler {
	return func(w http.ResponseWriter, r *http.Request) error {
		filters, err := parseFilters(r)
		if err != nil {
			return err
		}

		page, err := service.List(r.Context(), filters)
		if err != nil {
			return translateError(err)
		}

		return api.WriteResource(w, http.StatusOK, map[string]any{
			"object":      "session_history",
			"data":        page.Rows,
			"page":        page.Page,
			"limit":       page.Limit,
			"total":       page.Total,
			"total_pages": page.TotalPages,
			"has_more":    page.Page < page.TotalPages,
			"summary":     page.Summary,
		})
	}
}

func stopSession(service *Service) api.Handler {
	return func(w http.ResponseWriter, r *http.Request) error {
		result, err := service.Stop(r.Context(), chi.URLParam(r, "session_id"))
		if err != nil {
			return translateError(err)
		}
		return api.WriteAction(w, http.StatusOK, map[string]any{
			"object": "session_action",
			"action": "stop",
			"result": result,
		})
	}
}

func replaySession(service *Service) api.Handler {
	return func(w http.ResponseWriter, r *http.Request) error {
		result := service.Replay(r.Context(), chi.URLParam(r, "session_id"))
		return api.WriteAction(w, http.StatusOK, map[string]any{
			"object": "session_action",
			"action": "replay",
			"result": result,
		})
	}
}

func parseFilters(r *http.Request) (Filters, error) {
	query := r.URL.Query()
	filters := Filters{
		Page:       1,
		Limit:      DefaultLimit,
		Search:     query.Get("search"),
		ActivityID: query.Get("activity"),
	}

	if status := query.Get("status"); status != "" && status != "all" {
		filters.Status = status
	}
	if filters.ActivityID == "all" {
		filters.ActivityID = ""
	}

	if raw := query.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return filters, apperrors.NewValidationError("invalid page, must be >= 1", map[string]any{"page": raw})
		}
		filters.Page = page
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > MaxLimit {
			return filters, apperrors.NewValidationError("invalid limit, must be between 1 and 100", map[string]any{"limit": raw})
		}
		filters.Limit = limit
	}

	if raw := query.Get("from"); raw != "" {
		from, err := parseDate(raw, false)
		if err != nil {
			return filters, apperrors.NewValidationError("invalid 'from' date, expected ISO 8601", map[string]any{"from": raw})
		}
		filters.From = &from
	}
	if raw := query.Get("to"); raw != "" {
		to, err := parseDate(raw, true)
		if err != nil {
			return filters, apperrors.NewValidationError("invalid 'to' date, expected ISO 8601", map[string]any{"to": raw})
		}
		filters.To = &to
	}

	return filters, nil
}

// parseDate accepts RFC 3339 timestamps or bare dates. A bare end date covers
// the whole day.
func parseDate(raw string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	day, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		return day.Add(24*time.Hour - time.Nanosecond), nil
	}
	return day, nil
}

func translateError(err error) error {
	if backend.IsUnavailable(err) {
		return apperrors.NewBackendError("Fleet backend is unavailable", true)
	}
	if backend.IsNotFound(err) {
		return apperrors.NewNotFoundError("Session not found", nil)
	}
	return apperrors.NewBackendError(backend.MessageOf(err), false)
}
