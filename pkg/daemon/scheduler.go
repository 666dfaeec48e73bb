package daemon

import (
	"errors"
	"fmt"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// idleWait is how long the loop sleeps when nothing is scheduled.
const idleWait = time.Hour * 10000

var (
	// ErrNoSchedule is returned when skipping or postponing without a schedule.
	ErrNoSchedule = errors.New("no active schedule")

	// ErrPostponeTooLong is returned when a postponed run would reach the
	// run after it.
	ErrPostponeTooLong = errors.New("postponed run would pass the following run")
)

// TaskFunc represents a runnable task.
type TaskFunc func() error

// Scheduler runs a task on a cron schedule. It drives the periodic host
// battery snapshots of the daemon.
//
// All run bookkeeping lives behind mu. The loop goroutine only sleeps until
// the earliest due time and is woken whenever the bookkeeping changes, so
// Schedule, Skip and Postpone work the same whether or not it is running.
type Scheduler struct {
	Task TaskFunc

	// PreCheck gates every run. A failing check is retried every
	// RetryInterval, at most MaxRetries times, before the run is dropped.
	PreCheck      TaskFunc
	RetryInterval time.Duration
	MaxRetries    int

	// OnUpcoming is called Lead before every run. Zero Lead disables it.
	OnUpcoming func(runAt time.Time)
	Lead       time.Duration

	OnError func(error)

	parser cron.Parser

	mu       sync.Mutex
	expr     string
	schedule cron.Schedule
	slot     time.Time // next cron activation
	runAt    time.Time // slot, or later when postponed
	notified bool      // OnUpcoming already sent for runAt
	retries  int
	retryAt  time.Time
	running  bool

	wake chan struct{}
	stop chan struct{}
}

// ScheduleStatus is a point-in-time view of a Scheduler.
type ScheduleStatus struct {
	Schedule  string
	NextRun   time.Time // zero when nothing is scheduled
	Postponed bool
	Running   bool
}

func NewScheduler(task TaskFunc) *Scheduler {
	if task == nil {
		panic("task function cannot be nil")
	}

	return &Scheduler{
		Task:   task,
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
	}
}

// ParseSchedule validates a cron expression without scheduling it.
func (s *Scheduler) ParseSchedule(expr string) error {
	_, err := s.parser.Parse(expr)
	return err
}

// Schedule replaces the schedule. The next run is the first activation
// after now.
func (s *Scheduler) Schedule(expr string) error {
	sh, err := s.parser.Parse(expr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.expr, s.schedule = expr, sh
	s.resetLocked(sh.Next(time.Now()))
	s.mu.Unlock()

	s.poke()
	return nil
}

// Unschedule removes the schedule. A running loop stays idle until a new
// schedule is set.
func (s *Scheduler) Unschedule() {
	s.mu.Lock()
	s.expr, s.schedule = "", nil
	s.resetLocked(time.Time{})
	s.mu.Unlock()

	s.poke()
}

// Skip drops the next run and returns the one after it.
func (s *Scheduler) Skip() (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == nil {
		return time.Time{}, ErrNoSchedule
	}
	s.resetLocked(s.schedule.Next(s.slot))
	s.poke()

	return s.runAt, nil
}

// Postpone delays the next run by d and returns the new run time. Only the
// next run moves; later activations keep following the schedule.
func (s *Scheduler) Postpone(d time.Duration) (time.Time, error) {
	if d <= 0 {
		return time.Time{}, fmt.Errorf("postpone duration must be positive, got %s", d)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == nil {
		return time.Time{}, ErrNoSchedule
	}
	at := s.runAt.Add(d).Truncate(time.Second)
	if following := s.schedule.Next(s.slot); !at.Before(following) {
		return time.Time{}, pkgerrors.Wrapf(ErrPostponeTooLong, "%s from %s reaches %s",
			d, s.runAt.Format(time.DateTime), following.Format(time.DateTime))
	}

	s.resetLocked(s.slot)
	s.runAt = at
	s.poke()

	return at, nil
}

func (s *Scheduler) Status() ScheduleStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	return ScheduleStatus{
		Schedule:  s.expr,
		NextRun:   s.runAt,
		Postponed: !s.runAt.Equal(s.slot),
		Running:   s.running,
	}
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	go s.loop()
}

func (s *Scheduler) Stop() {
	select {
	case <-s.stop: // already closed
	default:
		close(s.stop)
	}
}

func (s *Scheduler) loop() {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		logrus.Debug("scheduler stopped")
	}()

	logrus.Debug("scheduler started")

	timer := time.NewTimer(idleWait)
	defer timer.Stop()

	for {
		timer.Reset(s.untilDue(time.Now()))

		select {
		case <-s.stop:
			return
		case <-s.wake:
		case now := <-timer.C:
			s.fire(now)
		}
	}
}

// untilDue returns how long the loop may sleep.
func (s *Scheduler) untilDue(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == nil {
		return idleWait
	}
	return max(s.dueLocked().Sub(now), 0)
}

func (s *Scheduler) dueLocked() time.Time {
	switch {
	case !s.retryAt.IsZero():
		return s.retryAt
	case s.announceLocked():
		return s.runAt.Add(-s.Lead)
	default:
		return s.runAt
	}
}

func (s *Scheduler) announceLocked() bool {
	return s.Lead > 0 && s.OnUpcoming != nil && !s.notified
}

func (s *Scheduler) fire(now time.Time) {
	s.mu.Lock()
	if s.schedule == nil || now.Before(s.dueLocked()) {
		s.mu.Unlock()
		return
	}
	runAt := s.runAt
	if s.retryAt.IsZero() && s.announceLocked() {
		s.notified = true
		s.mu.Unlock()

		logrus.Debugf("upcoming scheduled task at %s", runAt.Format(time.DateTime))
		go s.OnUpcoming(runAt)
		return
	}
	s.mu.Unlock()

	if s.PreCheck != nil {
		if err := s.PreCheck(); err != nil {
			s.retryOrDrop(now, runAt, err)
			return
		}
	}

	s.mu.Lock()
	if runAt.Equal(s.runAt) {
		s.advanceLocked(now)
	}
	s.mu.Unlock()

	logrus.Debugf("running scheduled task due at %s", runAt.Format(time.DateTime))
	go func() {
		if err := s.Task(); err != nil {
			s.report(pkgerrors.Wrap(err, "task failed"))
		}
	}()
}

// retryOrDrop handles a failed PreCheck for the run due at runAt. The first
// failure and the final drop are reported; retries in between are not.
func (s *Scheduler) retryOrDrop(now, runAt time.Time, err error) {
	s.mu.Lock()
	if !runAt.Equal(s.runAt) {
		// Rescheduled while the check ran.
		s.mu.Unlock()
		return
	}
	s.retries++
	attempt := s.retries
	retry := attempt <= s.MaxRetries
	if retry {
		s.retryAt = now.Add(s.RetryInterval)
	} else {
		s.advanceLocked(now)
	}
	s.mu.Unlock()

	if retry {
		logrus.Debugf("precheck failed (%d/%d): %v; retrying in %s", attempt, s.MaxRetries, err, s.RetryInterval)
		if attempt == 1 {
			s.report(pkgerrors.Wrap(err, "precheck failed"))
		}
		return
	}
	s.report(pkgerrors.Wrapf(err, "precheck failed %d times, run due at %s dropped", attempt, runAt.Format(time.DateTime)))
}

// advanceLocked moves to the first activation after both the current slot
// and now, so a loop that overslept does not replay missed runs.
func (s *Scheduler) advanceLocked(now time.Time) {
	from := s.slot
	if now.After(from) {
		from = now
	}
	s.resetLocked(s.schedule.Next(from))
}

// resetLocked points the next run at slot and forgets notices and retries.
func (s *Scheduler) resetLocked(slot time.Time) {
	s.slot, s.runAt = slot, slot
	s.notified = false
	s.retries = 0
	s.retryAt = time.Time{}
}

func (s *Scheduler) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) report(err error) {
	if s.OnError == nil {
		return
	}
	go s.OnError(err)
}
