package app

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

// RegisterRoutes registers all API endpoints.
func RegisterRoutes(r *mux.Router, deps *Dependencies, db *pgxpool.Pool) {

	// Health
	r.HandleFunc("/health", health(db)).Methods("GET")

	// User management
	r.HandleFunc("/api/user", deps.UserHandler.CreateUser).Methods("POST")
	r.HandleFunc("/api/user", deps.UserHandler.GetAvailableUsers).Methods("GET")
	r.HandleFunc("/api/user/current", deps.UserHandler.CurrentUser).Methods("GET")
	r.HandleFunc("/api/user/name-availability", deps.UserHandler.IsUsernameAvailable).Methods("GET").Queries("username", "{username}")

	// Events
	r.HandleFunc("/api/events", deps.CalendarHandler.CreateEvent).Methods("POST")
	r.HandleFunc("/api/events/batch", deps.CalendarHandler.CreateEvents).Methods("POST")
	r.HandleFunc("/api/events", deps.CalendarHandler.GetEvents).Methods("GET")
	r.HandleFunc("/api/events/{id}", deps.CalendarHandler.GetEvent).Methods("GET")
	r.HandleFunc("/api/events/{id}", deps.CalendarHandler.UpdateEvent).Methods("PUT")
	r.HandleFunc("/api/events/{id}", deps.CalendarHandler.DeleteEvent).Methods("DELETE")
	r.HandleFunc("/api/events/{id}/occurrences", deps.CalendarHandler.GetOccurrences).Methods("GET")
	r.HandleFunc("/api/events/{id}/ics", deps.CalendarHandler.ExportEvent).Methods("GET")

	// Sharing
	r.HandleFunc("/api/events/{id}/share", deps.CalendarHandler.ShareEvent).Methods("POST")
	r.HandleFunc("/api/events/{id}/permissions", deps.CalendarHandler.GetPermissions).Methods("GET")
	r.HandleFunc("/api/events/{id}/permissions/{userId}", deps.CalendarHandler.UpdatePermission).Methods("PUT")
	r.HandleFunc("/api/events/{id}/permissions/{userId}", deps.CalendarHandler.RevokePermission).Methods("DELETE")

	// Versioning
	r.HandleFunc("/api/events/{id}/changelog", deps.CalendarHandler.GetChangelog).Methods("GET")
	r.HandleFunc("/api/events/{id}/diff/{v1}/{v2}", deps.CalendarHandler.GetDiff).Methods("GET")
	r.HandleFunc("/api/events/{id}/history/{versionId}", deps.CalendarHandler.GetVersion).Methods("GET")
	r.HandleFunc("/api/events/{id}/rollback/{versionId}", deps.CalendarHandler.Rollback).Methods("POST")

	// Notifications
	r.HandleFunc("/api/notifications", deps.NotificationHandler.GetNotifications).Methods("GET")
	r.HandleFunc("/api/notifications/{id}/seen", deps.NotificationHandler.MarkSeen).Methods("PUT")
}

func health(db *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			log.Errorf("health check failed: %v", err)
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	}
}
