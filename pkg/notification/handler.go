package notification

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/agenda-app/agenda/internal/rest"
	"github.com/agenda-app/agenda/pkg/user"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

type NotificationDTO struct {
	Id        int       `json:"id"`
	EventId   int       `json:"eventId"`
	Message   string    `json:"message"`
	Seen      bool      `json:"seen"`
	CreatedAt time.Time `json:"createdAt"`
}

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// GetNotifications godoc
// @Summary List notifications
// @Description List the current user's notifications, newest first
// @Tags Notifications
// @Produce json
// @Param unseen query bool false "Only unseen notifications"
// @Success 200 {array} NotificationDTO
// @Failure 401 {object} rest.ErrorResponse "Not authenticated"
// @Router /api/notifications [get]
// @Security XUserId
func (h *Handler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	log.Trace("Getting notifications")
	unseenOnly := false
	if raw := r.URL.Query().Get("unseen"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			rest.WriteError(w, http.StatusBadRequest, "Invalid unseen", "'unseen' must be true or false")
			return
		}
		unseenOnly = parsed
	}

	notifications, err := h.service.List(r.Context(), unseenOnly)
	if err != nil {
		writeError(w, err)
		return
	}
	dtos := make([]NotificationDTO, 0, len(notifications))
	for _, n := range notifications {
		dtos = append(dtos, toDTO(n))
	}
	rest.WriteJSON(w, http.StatusOK, dtos)
}

// MarkSeen godoc
// @Summary Mark a notification as seen
// @Tags Notifications
// @Produce json
// @Param id path int true "Notification ID"
// @Success 200 {object} NotificationDTO
// @Failure 404 {object} rest.ErrorResponse "Notification not found"
// @Router /api/notifications/{id}/seen [put]
// @Security XUserId
func (h *Handler) MarkSeen(w http.ResponseWriter, r *http.Request) {
	notificationId, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid id", "'id' must be a number")
		return
	}
	seen, err := h.service.MarkSeen(r.Context(), notificationId)
	if err != nil {
		writeError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, toDTO(seen))
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, user.ErrUnauthenticated):
		rest.WriteError(w, http.StatusUnauthorized, "Not authenticated", "")
	case errors.Is(err, ErrNotificationNotFound):
		rest.WriteError(w, http.StatusNotFound, "Notification not found", "")
	default:
		log.Error(err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func toDTO(n Notification) NotificationDTO {
	return NotificationDTO{
		Id:        n.Id,
		EventId:   n.EventId,
		Message:   n.Message,
		Seen:      n.Seen,
		CreatedAt: n.CreatedAt,
	}
}
