package app

import (
	"errors"
	"net/http"
	"time"

	"github.com/agenda-app/agenda/internal/rest"
	"github.com/agenda-app/agenda/pkg/user"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

const (
	userIdHeader    = "X-User-Id"
	requestIdHeader = "X-Request-Id"
)

// SetupMiddleware wires all HTTP middlewares for the application.
func SetupMiddleware(r *mux.Router, deps *Dependencies) {
	r.Use(accessLog)
	r.Use(authenticate(deps.UserService))
}

// statusRecorder remembers the status code written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		requestId := req.Header.Get(requestIdHeader)
		if requestId == "" {
			requestId = uuid.NewString()
		}
		w.Header().Set(requestIdHeader, requestId)

		started := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, req)

		log.WithFields(log.Fields{
			"requestId": requestId,
			"method":    req.Method,
			"path":      req.URL.Path,
			"status":    recorder.status,
			"duration":  time.Since(started),
		}).Info("request handled")
	})
}

// authenticate resolves the X-User-Id header into the request context.
// Registration and health checks are reachable without it.
func authenticate(authenticator user.Authenticator) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if isPublic(req) {
				next.ServeHTTP(w, req)
				return
			}

			identity, err := authenticator.Authenticate(req.Context(), req.Header.Get(userIdHeader))
			if err != nil {
				if errors.Is(err, user.ErrUnauthenticated) {
					log.Debugf("rejected request: %v", err)
					rest.WriteError(w, http.StatusUnauthorized, "Not authenticated", err.Error())
					return
				}
				log.Errorf("failed to authenticate user: %v", err)
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			next.ServeHTTP(w, req.WithContext(user.WithIdentity(req.Context(), identity)))
		})
	}
}

func isPublic(req *http.Request) bool {
	switch {
	case req.URL.Path == "/health":
		return true
	case req.URL.Path == "/api/user" && req.Method == http.MethodPost:
		return true
	case req.URL.Path == "/api/user/name-availability":
		return true
	}
	return false
}
