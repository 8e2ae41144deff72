package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/agenda-app/agenda/pkg/user"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(t *testing.T) (*mux.Router, int) {
	repo := user.NewStubUserRepository()
	id, err := repo.CreateUser(context.Background(), user.User{Username: "alice", Email: "alice@example.com"})
	require.NoError(t, err)

	r := mux.NewRouter()
	SetupMiddleware(r, &Dependencies{UserService: user.NewUserService(repo)})
	whoami := func(w http.ResponseWriter, req *http.Request) {
		userId, err := user.CurrentId(req.Context())
		if err != nil {
			w.Write([]byte("anonymous"))
			return
		}
		w.Write([]byte(strconv.Itoa(userId)))
	}
	r.HandleFunc("/api/events", whoami).Methods("GET")
	r.HandleFunc("/api/user", whoami).Methods("POST")
	r.HandleFunc("/health", whoami).Methods("GET")
	return r, id
}

func TestAuthenticate(t *testing.T) {
	router, aliceId := setupRouter(t)

	testCases := []struct {
		name   string
		method string
		path   string
		header string
		status int
		body   string
	}{
		{name: "known user", method: "GET", path: "/api/events", header: strconv.Itoa(aliceId), status: http.StatusOK, body: strconv.Itoa(aliceId)},
		{name: "missing header", method: "GET", path: "/api/events", status: http.StatusUnauthorized},
		{name: "malformed header", method: "GET", path: "/api/events", header: "alice", status: http.StatusUnauthorized},
		{name: "unknown user", method: "GET", path: "/api/events", header: "999", status: http.StatusUnauthorized},
		{name: "registration is public", method: "POST", path: "/api/user", status: http.StatusOK, body: "anonymous"},
		{name: "health is public", method: "GET", path: "/health", status: http.StatusOK, body: "anonymous"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			if tc.header != "" {
				req.Header.Set(userIdHeader, tc.header)
			}
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			assert.Equal(t, tc.status, rec.Code)
			if tc.body != "" {
				assert.Equal(t, tc.body, rec.Body.String())
			}
		})
	}
}

func TestAccessLog_RequestId(t *testing.T) {
	router, aliceId := setupRouter(t)

	t.Run("should generate a request id", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/events", nil)
		req.Header.Set(userIdHeader, strconv.Itoa(aliceId))
		rec := httptest.NewRecorder()

		router.ServeHTTP(rec, req)

		assert.Len(t, rec.Header().Get(requestIdHeader), 36)
	})

	t.Run("should keep the caller's request id", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/health", nil)
		req.Header.Set(requestIdHeader, "abc-123")
		rec := httptest.NewRecorder()

		router.ServeHTTP(rec, req)

		assert.Equal(t, "abc-123", rec.Header().Get(requestIdHeader))
	})
}
