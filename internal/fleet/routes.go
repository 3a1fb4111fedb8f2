package fleet

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/strefethen/vr-console-go/internal/api"
	"github.com/strefethen/vr-console-go/internal/apperrors"
	"github.com/strefethen/vr-console-go/internal/backend"
)

// RegisterRoutes wires dashboard, selection and command routes to the router.
func RegisterRoutes(router chi.Router, controller *Controller) {
	router.Method(http.MethodGet, "/v1/dashboard", api.Handler(getDashboard(controller)))
	router.Method(http.MethodGet, "/v1/devices", api.Handler(listDevices(controller)))
	router.Method(http.MethodPost, "/v1/devices", api.Handler(createDevice(controller)))
	router.Method(http.MethodGet, "/v1/devices/{device_id}", api.Handler(getDevice(controller)))
	router.Method(http.MethodDelete, "/v1/devices/{device_id}", api.Handler(deleteDevice(controller)))
	router.Method(http.MethodGet, "/v1/activities", api.Handler(listActivities(controller)))
	router.Method(http.MethodGet, "/v1/videos", api.Handler(listVideos(controller)))

	// Selection
	router.Method(http.MethodPost, "/v1/selection/devices/{device_id}", api.Handler(toggleDevice(controller)))
	router.Method(http.MethodPost, "/v1/selection/select-all", api.Handler(selectAll(controller)))
	router.Method(http.MethodDelete, "/v1/selection", api.Handler(clearSelection(controller)))
	router.Method(http.MethodPut, "/v1/selection/activity", api.Handler(selectActivity(controller)))
	router.Method(http.MethodPut, "/v1/selection/video", api.Handler(selectVideo(controller)))

	// Commands
	router.Method(http.MethodPost, "/v1/commands/start", api.Handler(runCommand(controller.Start)))
	router.Method(http.MethodPost, "/v1/commands/pause", api.Handler(runCommand(controller.Pause)))
	router.Method(http.MethodPost, "/v1/commands/resume", api.Handler(runCommand(controller.Resume)))
	router.Method(http.MethodPost, "/v1/commands/stop", api.Handler(runCommand(controller.Stop)))
	router.Method(http.MethodPost, "/v1/commands/replay", api.Handler(runCommand(controller.Replay)))

	router.Method(http.MethodPost, "/v1/refresh", api.Handler(refresh(controller)))
	router.Method(http.MethodPut, "/v1/search", api.Handler(setSearch(controller)))
}

type commandRequest struct {
	DeviceIDs []string `json:"device_ids"`
}

type activityRequest struct {
	ActivityID string `json:"activity_id" validate:"required"`
}

type videoRequest struct {
	ActivityID string `json:"activity_id" validate:"required"`
	VideoID    string `json:"video_id" validate:"required"`
}

type searchRequest struct {
	Search string `json:"search"`
}

type createDeviceRequest struct {
	DeviceID    string `json:"device_id" validate:"required,max=128"`
	Title       string `json:"title" validate:"required,max=128"`
	Description string `json:"description" validate:"max=512"`
}

func getDashboard(controller *Controller) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		dashboard := controller.Dashboard()
		return api.WriteResource(w, http.StatusOK, map[string]any{
			"object":             "dashboard",
			"devices":            dashboard.Devices,
			"activities":         dashboard.Activities,
			"selection":          dashboard.Selection,
			"controls":           dashboard.Controls,
			"stats":              dashboard.Stats,
			"search":             dashboard.Search,
			"realtime_connected": dashboard.Realtime,
			"queries":            dashboard.Queries,
		})
	}
}

func listDevices(controller *Controller) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		if search, ok := r.URL.Query()["search"]; ok {
			if err := controller.SetSearch(r.Context(), strings.TrimSpace(search[0])); err != nil {
				return translateError(err)
			}
		}
		dashboard := controller.Dashboard()
		return api.WritePage(w, "/v1/devices", dashboard.Devices, dashboard.Stats.Total, dashboard.Stats.Total > len(dashboard.Devices))
	}
}

func getDevice(controller *Controller) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		view, err := controller.Device(r.Context(), chi.URLParam(r, "device_id"))
		if err != nil {
			return translateError(err)
		}
		return api.WriteResource(w, http.StatusOK, map[string]any{
			"object": "device",
			"device": view,
		})
	}
}

// listVideos handles GET /v1/videos?page&limit&search&status
func listVideos(controller *Controller) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		query := r.URL.Query()
		params := backend.ListParams{
			Search: strings.TrimSpace(query.Get("search")),
			Status: query.Get("status"),
		}
		if raw := query.Get("page"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				return apperrors.NewValidationError("page must be a positive integer", map[string]any{"field": "page"})
			}
			params.Page = n
		}
		if raw := query.Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > 100 {
				return apperrors.NewValidationError("limit must be between 1 and 100", map[string]any{"field": "limit"})
			}
			params.Limit = n
		}

		page, err := controller.Videos(r.Context(), params)
		if err != nil {
			return translateError(err)
		}
		totalPages := page.TotalPages
		if totalPages == 0 && page.Limit > 0 {
			totalPages = (page.Count + page.Limit - 1) / page.Limit
		}
		return api.WritePage(w, "/v1/videos", page.Rows, page.Count, page.Page < totalPages)
	}
}

func createDevice(controller *Controller) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		var input createDeviceRequest
		if err := api.DecodeJSON(r, &input); err != nil {
			return err
		}
		input.DeviceID = strings.TrimSpace(input.DeviceID)
		input.Title = strings.TrimSpace(input.Title)
		if err := api.Validate(input); err != nil {
			return err
		}

		device, toast, err := controller.CreateDevice(r.Context(), input.DeviceID, input.Title, input.Description)
		if err != nil {
			return translateError(err)
		}
		return api.WriteResource(w, http.StatusCreated, map[string]any{
			"object": "device",
			"device": device,
			"toast":  toast,
		})
	}
}

func deleteDevice(controller *Controller) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		deviceID := chi.URLParam(r, "device_id")
		toast, err := controller.DeleteDevice(r.Context(), deviceID)
		if err != nil {
			return translateError(err)
		}
		return api.WriteAction(w, http.StatusOK, map[string]any{
			"object":  "device",
			"id":      deviceID,
			"deleted": true,
			"toast":   toast,
		})
	}
}

func listActivities(controller *Controller) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteList(w, "/v1/activities", controller.Activities(), false)
	}
}

func toggleDevice(controller *Controller) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		deviceID := chi.URLParam(r, "device_id")
		selected, err := controller.ToggleDevice(deviceID)
		if err != nil {
			return translateError(err)
		}
		return api.WriteAction(w, http.StatusOK, map[string]any{
			"object":    "selection",
			"device_id": deviceID,
			"selected":  selected,
			"selection": controller.Selection(),
		})
	}
}

func selectAll(controller *Controller) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		return writeSelection(w, controller.SelectAll())
	}
}

func clearSelection(controller *Controller) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		controller.ClearSelection()
		return writeSelection(w, controller.Selection())
	}
}

func selectActivity(controller *Controller) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		var input activityRequest
		if err := api.DecodeJSON(r, &input); err != nil {
			return err
		}
		if err := api.Validate(input); err != nil {
			return err
		}
		view, err := controller.SelectActivity(input.ActivityID)
		if err != nil {
			return translateError(err)
		}
		return writeSelection(w, view)
	}
}

func selectVideo(controller *Controller) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		var input videoRequest
		if err := api.DecodeJSON(r, &input); err != nil {
			return err
		}
		if err := api.Validate(input); err != nil {
			return err
		}
		return writeSelection(w, controller.SelectVideo(input.ActivityID, input.VideoID))
	}
}

func runCommand(command func(ctx context.Context, ids []string) (*CommandResult, error)) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		var input commandRequest
		if err := api.DecodeJSON(r, &input); err != nil {
			return err
		}
		result, err := command(r.Context(), input.DeviceIDs)
		if err != nil {
			return translateError(err)
		}
		return api.WriteAction(w, http.StatusOK, map[string]any{
			"object": "command_result",
			"result": result,
		})
	}
}

func refresh(controller *Controller) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		toast := controller.Refresh(r.Context())
		return api.WriteAction(w, http.StatusOK, map[string]any{
			"object": "refresh",
			"toast":  toast,
		})
	}
}

func setSearch(controller *Controller) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		var input searchRequest
		if err := api.DecodeJSON(r, &input); err != nil {
			return err
		}
		if err := controller.SetSearch(r.Context(), strings.TrimSpace(input.Search)); err != nil {
			return translateError(err)
		}
		return api.WriteAction(w, http.StatusOK, map[string]any{
			"object": "search",
			"search": controller.Search(),
		})
	}
}

func writeSelection(w http.ResponseWriter, view SelectionView) error {
	return api.WriteResource(w, http.StatusOK, map[string]any{
		"object":     "selection",
		"device_ids": view.DeviceIDs,
		"activity":   view.Activity,
	})
}

// translateError maps controller and backend errors onto API errors.
func translateError(err error) error {
	switch {
	case errors.Is(err, ErrActivityLocked):
		return apperrors.NewConflictError(apperrors.ErrorCodeActivityLocked,
			"Some selected devices are currently busy. Please stop the current session first.", nil)
	case errors.Is(err, ErrControlsBusy):
		return apperrors.NewConflictError(apperrors.ErrorCodeControlsBusy, "Another command is in progress", nil)
	case errors.Is(err, ErrNoActivitySelected):
		return apperrors.NewConflictError(apperrors.ErrorCodeNoActivitySelected, "Select an activity before starting new sessions", nil)
	case errors.Is(err, ErrDeviceOffline):
		return apperrors.NewConflictError(apperrors.ErrorCodeConflict, "Device is offline", nil)
	case errors.Is(err, ErrDeviceNotFound):
		return apperrors.NewAppError(apperrors.ErrorCodeDeviceNotFound, "Device not found", http.StatusNotFound, nil)
	case errors.Is(err, ErrActivityNotFound):
		return apperrors.NewAppError(apperrors.ErrorCodeActivityNotFound, "Activity not found", http.StatusNotFound, nil)
	case backend.IsUnavailable(err):
		return apperrors.NewBackendError("Fleet backend is unavailable", true)
	}
	var backendErr *backend.Error
	if errors.As(err, &backendErr) {
		return apperrors.NewBackendError(backendErr.Error(), false)
	}
	return apperrors.NewBackendError(backend.MessageOf(err), false)
}
