package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/agenda-app/agenda/internal/config"
	"github.com/agenda-app/agenda/internal/utils"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// Janitor periodically deletes seen notifications older than the retention period.
type Janitor struct {
	repo      Repository
	clock     utils.Clock
	retention time.Duration
	schedule  string
	cron      *cron.Cron
}

func NewJanitor(repo Repository, clock utils.Clock, cfg config.Notifications) *Janitor {
	return &Janitor{
		repo:      repo,
		clock:     clock,
		retention: time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		schedule:  cfg.PurgeSchedule,
		cron:      cron.New(),
	}
}

// Start schedules the purge. A zero retention disables it.
func (j *Janitor) Start() error {
	if j.retention <= 0 {
		log.Info("notification retention disabled")
		return nil
	}
	_, err := j.cron.AddFunc(j.schedule, func() {
		if _, err := j.Purge(context.Background()); err != nil {
			log.Errorf("notification purge failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid purge schedule %q: %w", j.schedule, err)
	}
	j.cron.Start()
	log.Infof("notification purge scheduled (%s), keeping seen notifications for %s", j.schedule, j.retention)
	return nil
}

// Stop halts scheduling and waits for a running purge to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

// Purge deletes seen notifications older than the retention period.
func (j *Janitor) Purge(ctx context.Context) (int64, error) {
	cutoff := j.clock.Now().Add(-j.retention)
	purged, err := j.repo.PurgeSeen(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if purged > 0 {
		log.Infof("purged %d seen notifications created before %s", purged, cutoff.Format(time.RFC3339))
	}
	return purged, nil
}
