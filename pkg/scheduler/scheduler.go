// Package scheduler fires harvester runs on an interval, a cron expression or
// once at a fixed date, never letting two runs overlap.
package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/robfig/cron/v3"

	"ttharvest/pkg/config"
	"ttharvest/pkg/logger"
)

const (
	// DefaultTimezone applies when none is configured
	DefaultTimezone = "Asia/Ho_Chi_Minh"

	dateLayout = "2006-01-02 15:04:05"
)

// Job is one scheduled run
type Job func(ctx context.Context) error

// LoadLocation resolves the configured timezone
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", name, err)
	}
	return loc, nil
}

// BuildSchedule turns the trigger configuration into a cron schedule and a
// human readable description of it.
func BuildSchedule(cfg config.SchedulerConfig, loc *time.Location) (cron.Schedule, string, error) {
	switch cfg.Type {
	case "", "interval":
		d := cfg.Settings.Interval.Duration()
		if d <= 0 {
			d = time.Hour
		}
		return cron.Every(d), "every " + d.String(), nil

	case "cron":
		c := cfg.Settings.Cron
		dow, err := cronDayOfWeek(orDefault(c.DayOfWeek, "*"))
		if err != nil {
			return nil, "", err
		}
		spec := fmt.Sprintf("%s %s * * %s", orDefault(c.Minute, "0"), orDefault(c.Hour, "*"), dow)
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		sched, err := parser.Parse("CRON_TZ=" + loc.String() + " " + spec)
		if err != nil {
			return nil, "", fmt.Errorf("invalid cron settings %q: %w", spec, err)
		}
		return sched, "cron " + spec, nil

	case "date":
		at, err := parseRunDate(cfg.Settings.Date.RunDate, loc)
		if err != nil {
			return nil, "", err
		}
		return onceSchedule{at: at}, "once at " + at.Format(time.RFC3339), nil
	}
	return nil, "", fmt.Errorf("unknown scheduler type %q", cfg.Type)
}

// cronDayOfWeek converts day_of_week from Monday-first numbering (0 = Monday,
// 6 = Sunday) to cron's Sunday-first numbering. Names and "*" pass through.
func cronDayOfWeek(field string) (string, error) {
	if field == "*" || strings.IndexFunc(field, unicode.IsLetter) >= 0 {
		return field, nil
	}

	var days [7]bool
	for _, term := range strings.Split(field, ",") {
		base, step := strings.TrimSpace(term), 1
		if i := strings.Index(base, "/"); i >= 0 {
			n, err := strconv.Atoi(base[i+1:])
			if err != nil || n <= 0 {
				return "", fmt.Errorf("invalid day_of_week step in %q", term)
			}
			base, step = base[:i], n
		}

		lo, hi := 0, 6
		switch {
		case base == "*":
		case strings.Contains(base, "-"):
			parts := strings.SplitN(base, "-", 2)
			a, errA := strconv.Atoi(parts[0])
			b, errB := strconv.Atoi(parts[1])
			if errA != nil || errB != nil {
				return "", fmt.Errorf("invalid day_of_week range %q", term)
			}
			lo, hi = a, b
		default:
			n, err := strconv.Atoi(base)
			if err != nil {
				return "", fmt.Errorf("invalid day_of_week %q", term)
			}
			lo, hi = n, n
		}
		if lo < 0 || hi > 6 || lo > hi {
			return "", fmt.Errorf("day_of_week %q out of range 0-6", term)
		}
		for d := lo; d <= hi; d += step {
			days[(d+1)%7] = true
		}
	}

	var out []string
	for d, on := range days {
		if on {
			out = append(out, strconv.Itoa(d))
		}
	}
	return strings.Join(out, ","), nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}

func parseRunDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("date scheduler requires settings.date.run_date")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(loc), nil
	}
	t, err := time.ParseInLocation(dateLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid run_date %q: use RFC3339 or %q", s, dateLayout)
	}
	return t, nil
}

// onceSchedule fires a single time. A zero Next tells cron it never runs again.
type onceSchedule struct {
	at time.Time
}

func (o onceSchedule) Next(t time.Time) time.Time {
	if t.Before(o.at) {
		return o.at
	}
	return time.Time{}
}

// Scheduler runs a Job on the configured trigger
type Scheduler struct {
	cfg    config.SchedulerConfig
	job    Job
	logger logger.Logger
}

// New creates a Scheduler
func New(cfg config.SchedulerConfig, job Job, log logger.Logger) *Scheduler {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Scheduler{
		cfg:    cfg,
		job:    job,
		logger: log.WithField("component", "scheduler"),
	}
}

// Run blocks until ctx is cancelled, then waits for a running job to finish
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.cfg.Enabled {
		s.logger.Info("Scheduler disabled")
		return nil
	}

	loc, err := LoadLocation(s.cfg.Timezone)
	if err != nil {
		return err
	}
	sched, desc, err := BuildSchedule(s.cfg, loc)
	if err != nil {
		return err
	}

	cl := logger.CronLogger{L: s.logger}
	guarded := cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)).Then(cron.FuncJob(func() {
		s.fire(ctx)
	}))

	c := cron.New(cron.WithLocation(loc), cron.WithLogger(cl))
	c.Schedule(sched, guarded)

	var startup sync.WaitGroup
	if s.cfg.RunOnStartup {
		startup.Add(1)
		go func() {
			defer startup.Done()
			guarded.Run()
		}()
	}

	c.Start()

	fields := map[string]interface{}{
		"schedule": desc,
		"timezone": loc.String(),
	}
	if entries := c.Entries(); len(entries) > 0 && !entries[0].Next.IsZero() {
		fields["next_run"] = entries[0].Next.Format(time.RFC3339)
	}
	s.logger.InfoWithFields("Scheduler started", fields)

	<-ctx.Done()

	s.logger.Info("Stopping scheduler, waiting for the running job")
	<-c.Stop().Done()
	startup.Wait()
	s.logger.Info("Scheduler stopped")
	return nil
}

func (s *Scheduler) fire(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	if err := s.job(ctx); err != nil {
		s.logger.WithError(err).Error("Scheduled run failed")
		return
	}
	s.logger.WithField("duration", time.Since(start).Round(time.Second).String()).Info("Scheduled run finished")
}
