package notify

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/corbins/gantry/internal/models"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// BuildDigest summarizes migration activity since the given time: counts per
// terminal status plus any migrations still in flight.
func BuildDigest(db *gorm.DB, since time.Time) (string, error) {
	type row struct {
		Status string `gorm:"column:status"`
		N      int64  `gorm:"column:n"`
	}
	var rows []row
	err := db.Model(&models.Migration{}).
		Select("status, COUNT(*) AS n").
		Where("updated_at >= ?", since).
		Group("status").
		Order("status").
		Scan(&rows).Error
	if err != nil {
		return "", fmt.Errorf("notify: digest query: %w", err)
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("migration digest since %s:", since.Format(time.RFC3339)))
	if len(rows) == 0 {
		b.WriteString(" no activity")
		return b.String(), nil
	}
	for _, r := range rows {
		b.WriteString(fmt.Sprintf(" %s=%d", r.Status, r.N))
	}
	return b.String(), nil
}

// StartDigest publishes a periodic activity digest to the sink on the given
// 5-field cron schedule. It blocks until ctx is cancelled. An invalid
// schedule is returned immediately.
func StartDigest(ctx context.Context, db *gorm.DB, sink Sink, schedule string) error {
	sched, err := cronParser.Parse(schedule)
	if err != nil {
		return fmt.Errorf("notify: parse digest schedule %q: %w", schedule, err)
	}

	last := time.Now()
	for {
		next := sched.Next(time.Now())
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Until(next)):
		}

		text, err := BuildDigest(db, last)
		if err != nil {
			log.Printf("notify: digest: %v", err)
			continue
		}
		last = time.Now()
		Publish(ctx, sink, Event{Detail: text, At: last})
	}
}
