package app

import (
	"github.com/agenda-app/agenda/internal/config"
	"github.com/agenda-app/agenda/internal/event_bus"
	"github.com/agenda-app/agenda/internal/utils"
	"github.com/agenda-app/agenda/pkg/calendar"
	"github.com/agenda-app/agenda/pkg/event"
	"github.com/agenda-app/agenda/pkg/notification"
	"github.com/agenda-app/agenda/pkg/user"
	"github.com/agenda-app/agenda/pkg/versioning"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Dependencies holds all services and handlers for the application.
type Dependencies struct {
	Clock    utils.Clock
	EventBus *event_bus.EventBus

	UserService user.Service
	UserHandler *user.Handler

	EventRepository *event.RepositoryImpl
	VersionEngine   *versioning.Engine
	CalendarService *calendar.Service
	CalendarHandler *calendar.Handler

	NotificationRepository notification.Repository
	NotificationFanout     *notification.Fanout
	NotificationService    *notification.Service
	NotificationHandler    *notification.Handler
	Janitor                *notification.Janitor

	// Unsubscribe detaches the notification fan-out from the bus.
	Unsubscribe func()
}

// BuildDependencies initializes and wires all application services and handlers.
func BuildDependencies(db *pgxpool.Pool, cfg config.Application) *Dependencies {
	deps := &Dependencies{}

	deps.Clock = utils.SystemClock{}
	deps.EventBus = event_bus.NewEventBus()

	deps.UserService = user.NewUserService(user.NewUserRepo(db))
	deps.UserHandler = user.NewHandler(deps.UserService)

	deps.NotificationRepository = notification.NewRepository(db)
	deps.NotificationFanout = notification.NewFanout(deps.NotificationRepository, deps.Clock)
	deps.Unsubscribe = deps.NotificationFanout.Subscribe(deps.EventBus)
	deps.NotificationService = notification.NewService(deps.NotificationRepository)
	deps.NotificationHandler = notification.NewHandler(deps.NotificationService)
	deps.Janitor = notification.NewJanitor(deps.NotificationRepository, deps.Clock, cfg.Notifications)

	deps.EventRepository = event.NewRepository(db)
	deps.VersionEngine = versioning.NewEngine(deps.Clock)
	deps.CalendarService = calendar.NewService(deps.EventRepository, deps.VersionEngine, deps.EventBus, cfg.Scheduling, deps.Clock)
	deps.CalendarHandler = calendar.NewHandler(deps.CalendarService)

	return deps
}
