package reset

import (
	"context"
	"fmt"
	"time"

	"github.com/riverqueue/river"
)

// Clock is swapped in tests.
var now = time.Now

// DailyResetArgs asks for Day (YYYY-MM-DD, UTC) to be archived. An empty
// Day means yesterday.
type DailyResetArgs struct {
	Day string `json:"day"`
}

func (DailyResetArgs) Kind() string { return "daily_reset" }

// InsertOpts makes a second enqueue for the same day a no-op.
func (DailyResetArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{MaxAttempts: 5, UniqueOpts: river.UniqueOpts{ByArgs: true}}
}

// Yesterday returns the previous UTC day for t.
func Yesterday(t time.Time) time.Time {
	t = t.UTC().AddDate(0, 0, -1)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDay parses YYYY-MM-DD, defaulting to yesterday for "".
func ParseDay(s string) (time.Time, error) {
	if s == "" {
		return Yesterday(now()), nil
	}
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day %q: want YYYY-MM-DD", s)
	}
	return d, nil
}

type Worker struct {
	river.WorkerDefaults[DailyResetArgs]
	sweeper *Sweeper
}

func NewWorker(s *Sweeper) *Worker {
	return &Worker{sweeper: s}
}

func (w *Worker) Timeout(*river.Job[DailyResetArgs]) time.Duration { return 30 * time.Minute }

// Work runs the sweep. Failed profiles make the job error so river retries
// it; profiles archived on an earlier attempt are skipped.
func (w *Worker) Work(ctx context.Context, job *river.Job[DailyResetArgs]) error {
	day, err := ParseDay(job.Args.Day)
	if err != nil {
		return river.JobCancel(err)
	}
	sum, err := w.sweeper.Run(ctx, day)
	if err != nil {
		return err
	}
	if sum.Failed > 0 {
		return fmt.Errorf("daily reset %s: %d profiles failed", day.Format(time.DateOnly), sum.Failed)
	}
	return nil
}

// dailyAt fires once a day at a fixed UTC time of day.
type dailyAt struct {
	hour, minute int
}

func (d dailyAt) Next(current time.Time) time.Time {
	c := current.UTC()
	next := time.Date(c.Year(), c.Month(), c.Day(), d.hour, d.minute, 0, 0, time.UTC)
	if !next.After(c) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// PeriodicJob enqueues yesterday's reset every day at 00:05 UTC.
func PeriodicJob() *river.PeriodicJob {
	return river.NewPeriodicJob(
		dailyAt{hour: 0, minute: 5},
		func() (river.JobArgs, *river.InsertOpts) {
			return DailyResetArgs{Day: Yesterday(now()).Format(time.DateOnly)}, nil
		},
		&river.PeriodicJobOpts{RunOnStart: false},
	)
}
