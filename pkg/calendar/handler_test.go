package calendar

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/agenda-app/agenda/internal/rest"
	"github.com/agenda-app/agenda/pkg/user"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withUserHeader puts the user named by X-User-Id into the request context.
func withUserHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, err := strconv.Atoi(r.Header.Get("X-User-Id")); err == nil {
			r = r.WithContext(user.WithUser(r.Context(), user.User{Id: id}))
		}
		next.ServeHTTP(w, r)
	})
}

func setupHandlerTest(t *testing.T) http.Handler {
	service, _, _, _ := setupService(t, testScheduling())
	h := NewHandler(service)
	r := mux.NewRouter()
	r.HandleFunc("/api/events", h.CreateEvent).Methods("POST")
	r.HandleFunc("/api/events/batch", h.CreateEvents).Methods("POST")
	r.HandleFunc("/api/events", h.GetEvents).Methods("GET")
	r.HandleFunc("/api/events/{id}", h.GetEvent).Methods("GET")
	r.HandleFunc("/api/events/{id}", h.UpdateEvent).Methods("PUT")
	r.HandleFunc("/api/events/{id}", h.DeleteEvent).Methods("DELETE")
	r.HandleFunc("/api/events/{id}/share", h.ShareEvent).Methods("POST")
	r.HandleFunc("/api/events/{id}/permissions", h.GetPermissions).Methods("GET")
	r.HandleFunc("/api/events/{id}/permissions/{userId}", h.UpdatePermission).Methods("PUT")
	r.HandleFunc("/api/events/{id}/permissions/{userId}", h.RevokePermission).Methods("DELETE")
	r.HandleFunc("/api/events/{id}/changelog", h.GetChangelog).Methods("GET")
	r.HandleFunc("/api/events/{id}/diff/{v1}/{v2}", h.GetDiff).Methods("GET")
	r.HandleFunc("/api/events/{id}/history/{versionId}", h.GetVersion).Methods("GET")
	r.HandleFunc("/api/events/{id}/rollback/{versionId}", h.Rollback).Methods("POST")
	r.HandleFunc("/api/events/{id}/occurrences", h.GetOccurrences).Methods("GET")
	r.HandleFunc("/api/events/{id}/ics", h.ExportEvent).Methods("GET")
	return withUserHeader(r)
}

func call(t *testing.T, handler http.Handler, userId int, method string, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if userId != 0 {
		req.Header.Set("X-User-Id", strconv.Itoa(userId))
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func eventJSON(title string, from, to time.Duration) string {
	encoded, _ := json.Marshal(EventDTO{Title: title, StartTime: nine.Add(from), EndTime: nine.Add(to)})
	return string(encoded)
}

func createEvent(t *testing.T, handler http.Handler, userId int, title string, from, to time.Duration) EventDTO {
	rec := call(t, handler, userId, http.MethodPost, "/api/events", eventJSON(title, from, to))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created EventDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	return created
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) rest.ErrorResponse {
	var errResponse rest.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResponse))
	return errResponse
}

func TestHandler_CreateEvent(t *testing.T) {
	handler := setupHandlerTest(t)

	t.Run("should create event", func(t *testing.T) {
		created := createEvent(t, handler, alice, "Standup", 0, 30*time.Minute)

		assert.NotZero(t, created.Id)
		assert.Equal(t, alice, created.OwnerId)
		assert.Equal(t, "owner", created.Role)
		assert.True(t, nine.Equal(created.StartTime))
	})

	t.Run("should map a conflict to bad request", func(t *testing.T) {
		rec := call(t, handler, alice, http.MethodPost, "/api/events", eventJSON("Overlap", 15*time.Minute, 45*time.Minute))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Scheduling conflict", decodeError(t, rec).Error)
	})

	t.Run("should reject an inverted range", func(t *testing.T) {
		rec := call(t, handler, alice, http.MethodPost, "/api/events", eventJSON("Backwards", 3*time.Hour, 2*time.Hour))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Invalid time range", decodeError(t, rec).Error)
	})

	t.Run("should reject malformed body", func(t *testing.T) {
		rec := call(t, handler, alice, http.MethodPost, "/api/events", "{")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("should require a user", func(t *testing.T) {
		rec := call(t, handler, 0, http.MethodPost, "/api/events", eventJSON("Anonymous", 5*time.Hour, 6*time.Hour))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestHandler_CreateEvents(t *testing.T) {
	handler := setupHandlerTest(t)
	body := "[" + eventJSON("one", 0, time.Hour) + "," + eventJSON("two", time.Hour, 2*time.Hour) + "]"

	rec := call(t, handler, alice, http.MethodPost, "/api/events/batch", body)

	require.Equal(t, http.StatusCreated, rec.Code)
	var created []EventDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Len(t, created, 2)

	rec = call(t, handler, alice, http.MethodPost, "/api/events/batch", "[]")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(t, handler, alice, http.MethodGet, "/api/events?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var page []EventDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page, 1)
	assert.Equal(t, "one", page[0].Title)

	rec = call(t, handler, alice, http.MethodGet, "/api/events?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = call(t, handler, alice, http.MethodGet, "/api/events?limit=500", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_SharingAndUpdate(t *testing.T) {
	handler := setupHandlerTest(t)
	created := createEvent(t, handler, alice, "Planning", 0, time.Hour)
	eventPath := fmt.Sprintf("/api/events/%d", created.Id)

	t.Run("should deny update to a viewer", func(t *testing.T) {
		rec := call(t, handler, alice, http.MethodPost, eventPath+"/share", `{"users":[{"userId":2,"role":"viewer"}]}`)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = call(t, handler, bob, http.MethodPut, eventPath, `{"title":"Mine now"}`)

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("should allow update after upgrade to editor", func(t *testing.T) {
		rec := call(t, handler, alice, http.MethodPut, eventPath+"/permissions/2", `{"role":"editor"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		var permission PermissionDTO
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &permission))
		assert.Equal(t, "editor", permission.Role)

		rec = call(t, handler, bob, http.MethodPut, eventPath, `{"title":"Planning v2","location":null}`)

		require.Equal(t, http.StatusOK, rec.Code)
		var updated EventDTO
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
		assert.Equal(t, "Planning v2", updated.Title)
		assert.True(t, nine.Equal(updated.StartTime), "omitted fields are kept")
	})

	t.Run("should list permissions for the owner only", func(t *testing.T) {
		rec := call(t, handler, alice, http.MethodGet, eventPath+"/permissions", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `[{"userId":2,"role":"editor"}]`, rec.Body.String())

		rec = call(t, handler, bob, http.MethodGet, eventPath+"/permissions", "")
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("should reject roles that cannot be granted", func(t *testing.T) {
		rec := call(t, handler, alice, http.MethodPost, eventPath+"/share", `{"users":[{"userId":3,"role":"owner"}]}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("should return not found for unknown event and permission", func(t *testing.T) {
		rec := call(t, handler, carol, http.MethodPut, "/api/events/999", `{"title":"x"}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = call(t, handler, alice, http.MethodDelete, eventPath+"/permissions/3", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = call(t, handler, alice, http.MethodGet, "/api/events/abc", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("should revoke and delete", func(t *testing.T) {
		rec := call(t, handler, alice, http.MethodDelete, eventPath+"/permissions/2", "")
		require.Equal(t, http.StatusNoContent, rec.Code)

		rec = call(t, handler, bob, http.MethodGet, eventPath, "")
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = call(t, handler, alice, http.MethodDelete, eventPath, "")
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = call(t, handler, alice, http.MethodGet, eventPath, "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHandler_History(t *testing.T) {
	// given
	handler := setupHandlerTest(t)
	created := createEvent(t, handler, alice, "Retro", 0, time.Hour)
	eventPath := fmt.Sprintf("/api/events/%d", created.Id)
	require.Equal(t, http.StatusOK, call(t, handler, alice, http.MethodPut, eventPath, `{"title":"Retrospective"}`).Code)
	require.Equal(t, http.StatusOK, call(t, handler, alice, http.MethodPut, eventPath, `{"location":"Room 4"}`).Code)

	// when
	rec := call(t, handler, alice, http.MethodGet, eventPath+"/changelog", "")

	// then
	require.Equal(t, http.StatusOK, rec.Code)
	var versions []VersionDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &versions))
	require.Len(t, versions, 2)
	older, newer := versions[1], versions[0]
	assert.Equal(t, "Retro", older.Title)
	assert.Equal(t, "Retrospective", newer.Title)

	rec = call(t, handler, alice, http.MethodGet, fmt.Sprintf("%s/diff/%d/%d", eventPath, older.Id, newer.Id), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"diff":{"title":{"v1":"Retro","v2":"Retrospective"}}}`, rec.Body.String())

	rec = call(t, handler, alice, http.MethodGet, fmt.Sprintf("%s/history/%d", eventPath, older.Id), "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = call(t, handler, alice, http.MethodGet, fmt.Sprintf("%s/history/%d", eventPath, newer.Id+10), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = call(t, handler, alice, http.MethodPost, fmt.Sprintf("%s/rollback/%d", eventPath, older.Id), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var restored EventDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &restored))
	assert.Equal(t, "Retro", restored.Title)
	assert.Equal(t, "", restored.Location)

	rec = call(t, handler, bob, http.MethodPost, fmt.Sprintf("%s/rollback/%d", eventPath, older.Id), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandler_OccurrencesAndExport(t *testing.T) {
	handler := setupHandlerTest(t)
	created := createEvent(t, handler, alice, "Lunch", 3*time.Hour, 4*time.Hour)
	eventPath := fmt.Sprintf("/api/events/%d", created.Id)

	rec := call(t, handler, alice, http.MethodGet, eventPath+"/occurrences?from=invalid&to=2026-03-03T00:00:00Z", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec).Details, "RFC3339")

	rec = call(t, handler, alice, http.MethodGet, eventPath+"/occurrences?from=2026-03-02T00:00:00Z&to=2026-03-03T00:00:00Z", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var occurrences OccurrencesDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &occurrences))
	require.Len(t, occurrences.Occurrences, 1)
	assert.False(t, occurrences.Truncated)

	rec = call(t, handler, alice, http.MethodGet, eventPath+"/ics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/calendar"))
	assert.Contains(t, rec.Body.String(), "SUMMARY:Lunch")
}
