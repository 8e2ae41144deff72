package calendar

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/agenda-app/agenda/internal/rest"
	"github.com/agenda-app/agenda/pkg/event"
	"github.com/agenda-app/agenda/pkg/recurrence"
	"github.com/agenda-app/agenda/pkg/user"
	"github.com/agenda-app/agenda/pkg/versioning"
	"github.com/gorilla/mux"
	"github.com/samber/mo"
	log "github.com/sirupsen/logrus"
)

type Handler struct {
	calendar *Service
}

type EventDTO struct {
	Id                int       `json:"id"`
	OwnerId           int       `json:"ownerId"`
	Title             string    `json:"title"`
	Description       string    `json:"description"`
	StartTime         time.Time `json:"startTime"`
	EndTime           time.Time `json:"endTime"`
	Location          string    `json:"location"`
	IsRecurring       bool      `json:"isRecurring"`
	RecurrencePattern string    `json:"recurrencePattern"`
	CreatedAt         time.Time `json:"createdAt"`
	Role              string    `json:"role,omitempty"`
}

// EventPatchDTO carries a partial update. Omitted or null properties keep their value.
type EventPatchDTO struct {
	Title             *string    `json:"title"`
	Description       *string    `json:"description"`
	StartTime         *time.Time `json:"startTime"`
	EndTime           *time.Time `json:"endTime"`
	Location          *string    `json:"location"`
	IsRecurring       *bool      `json:"isRecurring"`
	RecurrencePattern *string    `json:"recurrencePattern"`
}

type VersionDTO struct {
	Id                int       `json:"id"`
	EventId           int       `json:"eventId"`
	Title             string    `json:"title"`
	Description       string    `json:"description"`
	StartTime         time.Time `json:"startTime"`
	EndTime           time.Time `json:"endTime"`
	Location          string    `json:"location"`
	IsRecurring       bool      `json:"isRecurring"`
	RecurrencePattern string    `json:"recurrencePattern"`
	UpdatedBy         int       `json:"updatedBy"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

type PermissionDTO struct {
	UserId int    `json:"userId"`
	Role   string `json:"role"`
}

type ShareRequestDTO struct {
	Users []PermissionDTO `json:"users"`
}

type RoleDTO struct {
	Role string `json:"role"`
}

type DiffDTO struct {
	Diff versioning.Diff `json:"diff"`
}

type TimeRangeDTO struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type OccurrencesDTO struct {
	Occurrences []TimeRangeDTO `json:"occurrences"`
	Truncated   bool           `json:"truncated"`
}

func NewHandler(s *Service) *Handler {
	return &Handler{s}
}

// CreateEvent godoc
// @Summary Create an event
// @Description Create an event owned by the current user. Fails when it overlaps an event the user owns or has been shared.
// @Tags Events
// @Accept json
// @Produce json
// @Param event body EventDTO true "Event"
// @Success 201 {object} EventDTO
// @Failure 400 {object} rest.ErrorResponse "Invalid event or scheduling conflict"
// @Router /api/events [post]
// @Security XUserId
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	log.Debug("Creating event")
	var eventDTO EventDTO
	if err := json.NewDecoder(r.Body).Decode(&eventDTO); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid request body format", err.Error())
		return
	}

	created, err := h.calendar.Create(r.Context(), dtoToFields(eventDTO))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusCreated, eventToDTO(created, event.RoleOwner))
}

// CreateEvents godoc
// @Summary Create events in one batch
// @Description Create all given events or none of them.
// @Tags Events
// @Accept json
// @Produce json
// @Param events body []EventDTO true "Events"
// @Success 201 {array} EventDTO
// @Failure 400 {object} rest.ErrorResponse "Invalid batch or scheduling conflict"
// @Router /api/events/batch [post]
// @Security XUserId
func (h *Handler) CreateEvents(w http.ResponseWriter, r *http.Request) {
	log.Debug("Creating event batch")
	var eventDTOs []EventDTO
	if err := json.NewDecoder(r.Body).Decode(&eventDTOs); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid request body format", err.Error())
		return
	}
	items := make([]event.Fields, 0, len(eventDTOs))
	for _, dto := range eventDTOs {
		items = append(items, dtoToFields(dto))
	}

	created, err := h.calendar.CreateBatch(r.Context(), items)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	result := make([]EventDTO, 0, len(created))
	for _, e := range created {
		result = append(result, eventToDTO(e, event.RoleOwner))
	}
	rest.WriteJSON(w, http.StatusCreated, result)
}

// GetEvents godoc
// @Summary List events
// @Description List events the current user owns or has been shared, ordered by start time
// @Tags Events
// @Produce json
// @Param skip query int false "Number of events to skip"
// @Param limit query int false "Page size, at most 100"
// @Success 200 {array} EventDTO
// @Failure 400 {object} rest.ErrorResponse "Invalid page"
// @Router /api/events [get]
// @Security XUserId
func (h *Handler) GetEvents(w http.ResponseWriter, r *http.Request) {
	skip, err := intQuery(r, "skip")
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid skip", err.Error())
		return
	}
	limit, err := intQuery(r, "limit")
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid limit", err.Error())
		return
	}

	events, err := h.calendar.List(r.Context(), skip, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	dtos := make([]EventDTO, 0, len(events))
	for _, e := range events {
		dtos = append(dtos, eventToDTO(e, event.RoleNone))
	}
	rest.WriteJSON(w, http.StatusOK, dtos)
}

// GetEvent godoc
// @Summary Get an event
// @Tags Events
// @Produce json
// @Param id path int true "Event ID"
// @Success 200 {object} EventDTO
// @Failure 403 {object} rest.ErrorResponse "Access denied"
// @Failure 404 {object} rest.ErrorResponse "Event not found"
// @Router /api/events/{id} [get]
// @Security XUserId
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	eventId, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	found, role, err := h.calendar.Get(r.Context(), eventId)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, eventToDTO(found, role))
}

// UpdateEvent godoc
// @Summary Update an event
// @Description Change some fields of an event. The previous state is kept as a version. Requires editor role.
// @Tags Events
// @Accept json
// @Produce json
// @Param id path int true "Event ID"
// @Param patch body EventPatchDTO true "Changed fields"
// @Success 200 {object} EventDTO
// @Failure 400 {object} rest.ErrorResponse "Invalid event or scheduling conflict"
// @Failure 403 {object} rest.ErrorResponse "Access denied"
// @Failure 404 {object} rest.ErrorResponse "Event not found"
// @Router /api/events/{id} [put]
// @Security XUserId
func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	eventId, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	var patchDTO EventPatchDTO
	if err := json.NewDecoder(r.Body).Decode(&patchDTO); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid request body format", err.Error())
		return
	}

	updated, err := h.calendar.Update(r.Context(), eventId, dtoToPatch(patchDTO))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, eventToDTO(updated, event.RoleNone))
}

// DeleteEvent godoc
// @Summary Delete an event
// @Description Delete an event with its history and permissions. Owner only.
// @Tags Events
// @Param id path int true "Event ID"
// @Success 204
// @Failure 403 {object} rest.ErrorResponse "Access denied"
// @Failure 404 {object} rest.ErrorResponse "Event not found"
// @Router /api/events/{id} [delete]
// @Security XUserId
func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	eventId, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	if err := h.calendar.Delete(r.Context(), eventId); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ShareEvent godoc
// @Summary Share an event
// @Description Grant viewer or editor roles on an event. Owner only.
// @Tags Permissions
// @Accept json
// @Produce json
// @Param id path int true "Event ID"
// @Param share body ShareRequestDTO true "Users and roles"
// @Success 200 {array} PermissionDTO
// @Failure 400 {object} rest.ErrorResponse "Invalid role"
// @Failure 403 {object} rest.ErrorResponse "Access denied"
// @Failure 404 {object} rest.ErrorResponse "Event or user not found"
// @Router /api/events/{id}/share [post]
// @Security XUserId
func (h *Handler) ShareEvent(w http.ResponseWriter, r *http.Request) {
	eventId, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	var request ShareRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid request body format", err.Error())
		return
	}
	grants := make([]Grant, 0, len(request.Users))
	for _, u := range request.Users {
		role, err := event.ParseGrantableRole(u.Role)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		grants = append(grants, Grant{UserId: u.UserId, Role: role})
	}

	permissions, err := h.calendar.Share(r.Context(), eventId, grants)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, permissionsToDTO(permissions))
}

// GetPermissions godoc
// @Summary List event permissions
// @Tags Permissions
// @Produce json
// @Param id path int true "Event ID"
// @Success 200 {array} PermissionDTO
// @Failure 403 {object} rest.ErrorResponse "Access denied"
// @Failure 404 {object} rest.ErrorResponse "Event not found"
// @Router /api/events/{id}/permissions [get]
// @Security XUserId
func (h *Handler) GetPermissions(w http.ResponseWriter, r *http.Request) {
	eventId, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	permissions, err := h.calendar.ListPermissions(r.Context(), eventId)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, permissionsToDTO(permissions))
}

// UpdatePermission godoc
// @Summary Change a granted role
// @Tags Permissions
// @Accept json
// @Produce json
// @Param id path int true "Event ID"
// @Param userId path int true "User ID"
// @Param role body RoleDTO true "New role"
// @Success 200 {object} PermissionDTO
// @Failure 400 {object} rest.ErrorResponse "Invalid role"
// @Failure 403 {object} rest.ErrorResponse "Access denied"
// @Failure 404 {object} rest.ErrorResponse "Event or permission not found"
// @Router /api/events/{id}/permissions/{userId} [put]
// @Security XUserId
func (h *Handler) UpdatePermission(w http.ResponseWriter, r *http.Request) {
	eventId, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	targetUserId, ok := pathInt(w, r, "userId")
	if !ok {
		return
	}
	var roleDTO RoleDTO
	if err := json.NewDecoder(r.Body).Decode(&roleDTO); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid request body format", err.Error())
		return
	}
	role, err := event.ParseGrantableRole(roleDTO.Role)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	permission, err := h.calendar.UpdatePermission(r.Context(), eventId, targetUserId, role)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, permissionToDTO(permission))
}

// RevokePermission godoc
// @Summary Revoke a granted role
// @Tags Permissions
// @Param id path int true "Event ID"
// @Param userId path int true "User ID"
// @Success 204
// @Failure 403 {object} rest.ErrorResponse "Access denied"
// @Failure 404 {object} rest.ErrorResponse "Event or permission not found"
// @Router /api/events/{id}/permissions/{userId} [delete]
// @Security XUserId
func (h *Handler) RevokePermission(w http.ResponseWriter, r *http.Request) {
	eventId, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	targetUserId, ok := pathInt(w, r, "userId")
	if !ok {
		return
	}
	if err := h.calendar.RevokePermission(r.Context(), eventId, targetUserId); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetChangelog godoc
// @Summary List versions of an event
// @Description Versions are the states an event had before each change, newest first.
// @Tags History
// @Produce json
// @Param id path int true "Event ID"
// @Success 200 {array} VersionDTO
// @Failure 403 {object} rest.ErrorResponse "Access denied"
// @Failure 404 {object} rest.ErrorResponse "Event not found"
// @Router /api/events/{id}/changelog [get]
// @Security XUserId
func (h *Handler) GetChangelog(w http.ResponseWriter, r *http.Request) {
	eventId, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	versions, err := h.calendar.Changelog(r.Context(), eventId)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	dtos := make([]VersionDTO, 0, len(versions))
	for _, v := range versions {
		dtos = append(dtos, versionToDTO(v))
	}
	rest.WriteJSON(w, http.StatusOK, dtos)
}

// GetDiff godoc
// @Summary Compare two versions
// @Tags History
// @Produce json
// @Param id path int true "Event ID"
// @Param v1 path int true "First version ID"
// @Param v2 path int true "Second version ID"
// @Success 200 {object} DiffDTO
// @Failure 403 {object} rest.ErrorResponse "Access denied"
// @Failure 404 {object} rest.ErrorResponse "Event or version not found"
// @Router /api/events/{id}/diff/{v1}/{v2} [get]
// @Security XUserId
func (h *Handler) GetDiff(w http.ResponseWriter, r *http.Request) {
	eventId, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	first, ok := pathInt(w, r, "v1")
	if !ok {
		return
	}
	second, ok := pathInt(w, r, "v2")
	if !ok {
		return
	}
	diff, err := h.calendar.Diff(r.Context(), eventId, first, second)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, DiffDTO{Diff: diff})
}

// GetVersion godoc
// @Summary Get one version of an event
// @Tags History
// @Produce json
// @Param id path int true "Event ID"
// @Param versionId path int true "Version ID"
// @Success 200 {object} VersionDTO
// @Failure 403 {object} rest.ErrorResponse "Access denied"
// @Failure 404 {object} rest.ErrorResponse "Event or version not found"
// @Router /api/events/{id}/history/{versionId} [get]
// @Security XUserId
func (h *Handler) GetVersion(w http.ResponseWriter, r *http.Request) {
	eventId, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	versionId, ok := pathInt(w, r, "versionId")
	if !ok {
		return
	}
	version, err := h.calendar.GetVersion(r.Context(), eventId, versionId)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, versionToDTO(version))
}

// Rollback godoc
// @Summary Roll an event back to a version
// @Description Restore every field of a version. The state before the rollback is kept as a new version. Owner only.
// @Tags History
// @Produce json
// @Param id path int true "Event ID"
// @Param versionId path int true "Version ID"
// @Success 200 {object} EventDTO
// @Failure 403 {object} rest.ErrorResponse "Access denied"
// @Failure 404 {object} rest.ErrorResponse "Event or version not found"
// @Router /api/events/{id}/rollback/{versionId} [post]
// @Security XUserId
func (h *Handler) Rollback(w http.ResponseWriter, r *http.Request) {
	eventId, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	versionId, ok := pathInt(w, r, "versionId")
	if !ok {
		return
	}
	restored, err := h.calendar.Rollback(r.Context(), eventId, versionId)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, eventToDTO(restored, event.RoleOwner))
}

// GetOccurrences godoc
// @Summary Expand an event into occurrences
// @Tags Events
// @Produce json
// @Param id path int true "Event ID"
// @Param from query string true "Window start (RFC3339)"
// @Param to query string true "Window end (RFC3339)"
// @Success 200 {object} OccurrencesDTO
// @Failure 400 {object} rest.ErrorResponse "Invalid window"
// @Failure 403 {object} rest.ErrorResponse "Access denied"
// @Failure 404 {object} rest.ErrorResponse "Event not found"
// @Router /api/events/{id}/occurrences [get]
// @Security XUserId
func (h *Handler) GetOccurrences(w http.ResponseWriter, r *http.Request) {
	eventId, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	from, err := time.Parse(time.RFC3339, r.URL.Query().Get("from"))
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid from (date) format", "'from' must be in RFC3339 format")
		return
	}
	to, err := time.Parse(time.RFC3339, r.URL.Query().Get("to"))
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid to (date) format", "'to' must be in RFC3339 format")
		return
	}

	ranges, truncated, err := h.calendar.Occurrences(r.Context(), eventId, event.TimeRange{Start: from, End: to})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	result := OccurrencesDTO{Occurrences: make([]TimeRangeDTO, 0, len(ranges)), Truncated: truncated}
	for _, tr := range ranges {
		result.Occurrences = append(result.Occurrences, TimeRangeDTO{Start: tr.Start, End: tr.End})
	}
	rest.WriteJSON(w, http.StatusOK, result)
}

// ExportEvent godoc
// @Summary Export an event as iCalendar
// @Tags Events
// @Produce text/calendar
// @Param id path int true "Event ID"
// @Success 200 {string} string "VCALENDAR document"
// @Failure 403 {object} rest.ErrorResponse "Access denied"
// @Failure 404 {object} rest.ErrorResponse "Event not found"
// @Router /api/events/{id}/ics [get]
// @Security XUserId
func (h *Handler) ExportEvent(w http.ResponseWriter, r *http.Request) {
	eventId, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	document, err := h.calendar.ICS(r.Context(), eventId)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=event-%d.ics", eventId))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(document)); err != nil {
		log.Errorf("failed to write calendar export: %v", err)
	}
}

func pathInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	value, err := strconv.Atoi(mux.Vars(r)[name])
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid "+name, fmt.Sprintf("'%s' must be a number", name))
		return 0, false
	}
	return value, true
}

func intQuery(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("'%s' must be a number", name)
	}
	return value, nil
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, user.ErrUnauthenticated):
		return http.StatusUnauthorized, "Not authenticated"
	case errors.Is(err, event.ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, event.ErrAccessDenied):
		return http.StatusForbidden, "Access denied"
	case errors.Is(err, event.ErrSchedulingConflict):
		return http.StatusBadRequest, "Scheduling conflict"
	case errors.Is(err, event.ErrInvalidRange):
		return http.StatusBadRequest, "Invalid time range"
	case errors.Is(err, event.ErrInvalidRole),
		errors.Is(err, event.ErrInvalidRecurrence),
		errors.Is(err, event.ErrInvalidEvent),
		errors.Is(err, event.ErrEmptyBatch),
		errors.Is(err, event.ErrBatchTooLarge),
		errors.Is(err, ErrInvalidPage),
		errors.Is(err, recurrence.ErrWindowInvalid):
		return http.StatusBadRequest, "Invalid request"
	}
	return http.StatusInternalServerError, "Internal server error"
}

func writeServiceError(w http.ResponseWriter, err error) {
	status, message := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error(err)
	}
	rest.WriteError(w, status, message, err.Error())
}

func eventToDTO(e event.Event, role event.Role) EventDTO {
	dto := EventDTO{
		Id:                e.Id,
		OwnerId:           e.OwnerId,
		Title:             e.Title,
		Description:       e.Description,
		StartTime:         e.StartTime,
		EndTime:           e.EndTime,
		Location:          e.Location,
		IsRecurring:       e.IsRecurring,
		RecurrencePattern: e.RecurrencePattern,
		CreatedAt:         e.CreatedAt,
	}
	if role != event.RoleNone {
		dto.Role = role.String()
	}
	return dto
}

func dtoToFields(dto EventDTO) event.Fields {
	return event.Fields{
		Title:             dto.Title,
		Description:       dto.Description,
		StartTime:         dto.StartTime,
		EndTime:           dto.EndTime,
		Location:          dto.Location,
		IsRecurring:       dto.IsRecurring,
		RecurrencePattern: dto.RecurrencePattern,
	}
}

func dtoToPatch(dto EventPatchDTO) event.Patch {
	return event.Patch{
		Title:             optional(dto.Title),
		Description:       optional(dto.Description),
		StartTime:         optional(dto.StartTime),
		EndTime:           optional(dto.EndTime),
		Location:          optional(dto.Location),
		IsRecurring:       optional(dto.IsRecurring),
		RecurrencePattern: optional(dto.RecurrencePattern),
	}
}

func optional[T any](value *T) mo.Option[T] {
	if value == nil {
		return mo.None[T]()
	}
	return mo.Some(*value)
}

func versionToDTO(v event.Version) VersionDTO {
	return VersionDTO{
		Id:                v.Id,
		EventId:           v.EventId,
		Title:             v.Title,
		Description:       v.Description,
		StartTime:         v.StartTime,
		EndTime:           v.EndTime,
		Location:          v.Location,
		IsRecurring:       v.IsRecurring,
		RecurrencePattern: v.RecurrencePattern,
		UpdatedBy:         v.UpdatedBy,
		UpdatedAt:         v.UpdatedAt,
	}
}

func permissionToDTO(p event.Permission) PermissionDTO {
	return PermissionDTO{UserId: p.UserId, Role: p.Role.String()}
}

func permissionsToDTO(permissions []event.Permission) []PermissionDTO {
	dtos := make([]PermissionDTO, 0, len(permissions))
	for _, p := range permissions {
		dtos = append(dtos, permissionToDTO(p))
	}
	return dtos
}
