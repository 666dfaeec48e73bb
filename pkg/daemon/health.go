package daemon

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/esoh/pkg/events"
	"github.com/charlie0129/esoh/pkg/hostbattery"
	"github.com/charlie0129/esoh/pkg/types"
)

// readHostBattery is replaced in tests.
var readHostBattery = hostbattery.Read

// recordHealthSnapshot reads the host battery and stores the snapshot.
func recordHealthSnapshot() (hostbattery.Snapshot, error) {
	s, err := readHostBattery()
	if err != nil {
		return hostbattery.Snapshot{}, err
	}

	history.Add(s)
	mtr.ObserveHealth(s.Retention)
	hub.Publish(events.HealthSnapshot, s)

	logrus.WithFields(logrus.Fields{
		"designCapacity": s.DesignCapacity,
		"fullCapacity":   s.FullCapacity,
		"retention":      s.Retention,
	}).Debug("host battery snapshot taken")

	return s, nil
}

func takeHealthSnapshot() error {
	_, err := recordHealthSnapshot()
	return err
}

// checkHostBattery gates scheduled snapshots on a readable battery.
func checkHostBattery() error {
	_, err := readHostBattery()
	return err
}

func announceHealthSnapshot(at time.Time) {
	hub.Publish(events.HealthSnapshotUpcoming, events.HealthSnapshotUpcomingEvent{
		At: at,
		Ts: time.Now().Unix(),
	})
}

func onHealthError(err error) {
	// Machines without a battery are common for a daemon like this.
	if errors.Is(err, hostbattery.ErrNoBattery) {
		logrus.Debugf("scheduled health snapshot skipped: %v", err)
		return
	}
	logrus.Warnf("scheduled health snapshot failed: %v", err)
}

func newHealthScheduler() *Scheduler {
	s := NewScheduler(takeHealthSnapshot)
	s.PreCheck = checkHostBattery
	s.RetryInterval = healthPreCheckInterval
	s.MaxRetries = healthPreCheckRetries
	s.OnUpcoming = announceHealthSnapshot
	s.Lead = healthSnapshotLead
	s.OnError = onHealthError
	return s
}

// applyHealthSchedule (re)schedules the snapshots. An empty expression
// disables them.
func applyHealthSchedule(expr string) error {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		scheduler.Unschedule()
		logrus.Info("scheduled health snapshots disabled")
		return nil
	}
	if err := scheduler.Schedule(expr); err != nil {
		return err
	}
	logrus.WithField("schedule", expr).Infof("next health snapshot at %s", scheduler.Status().NextRun.Format(time.DateTime))
	return nil
}

func healthScheduleStatus() types.HealthScheduleStatus {
	st := scheduler.Status()
	ret := types.HealthScheduleStatus{
		Schedule:  st.Schedule,
		Postponed: st.Postponed,
	}
	if !st.NextRun.IsZero() {
		ret.NextRun = &st.NextRun
	}
	return ret
}

func getHealthHistory(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, history.List())
}

func postHealthSnapshot(c *gin.Context) {
	s, err := recordHealthSnapshot()
	if err != nil {
		status, kind := http.StatusInternalServerError, types.ErrorKindInternal
		if errors.Is(err, hostbattery.ErrNoBattery) || errors.Is(err, hostbattery.ErrNoDesignCapacity) {
			status, kind = http.StatusNotFound, types.ErrorKindNoBattery
		}
		abortWithError(c, status, kind, err)
		return
	}

	c.IndentedJSON(http.StatusCreated, s)
}

func setHealthSchedule(c *gin.Context) {
	var expr string
	if err := c.BindJSON(&expr); err != nil {
		abortWithError(c, http.StatusBadRequest, types.ErrorKindInvalidInput, err)
		return
	}

	if trimmed := strings.TrimSpace(expr); trimmed != "" {
		if err := scheduler.ParseSchedule(trimmed); err != nil {
			abortWithError(c, http.StatusBadRequest, types.ErrorKindInvalidInput, err)
			return
		}
	}

	conf.SetHealthSchedule(expr)
	if err := conf.Save(); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
		abortWithError(c, http.StatusInternalServerError, types.ErrorKindInternal, err)
		return
	}

	if err := applyHealthSchedule(expr); err != nil {
		abortWithError(c, http.StatusInternalServerError, types.ErrorKindInternal, err)
		return
	}

	logrus.Infof("set health schedule to %q", expr)

	c.IndentedJSON(http.StatusCreated, "ok")
}

func getHealthSchedule(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, healthScheduleStatus())
}

func abortWithScheduleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNoSchedule):
		abortWithError(c, http.StatusConflict, types.ErrorKindNoSchedule, err)
	case errors.Is(err, ErrPostponeTooLong):
		abortWithError(c, http.StatusBadRequest, types.ErrorKindInvalidInput, err)
	default:
		abortWithError(c, http.StatusInternalServerError, types.ErrorKindInternal, err)
	}
}

func skipHealthSnapshot(c *gin.Context) {
	next, err := scheduler.Skip()
	if err != nil {
		abortWithScheduleError(c, err)
		return
	}

	logrus.Infof("skipped next health snapshot, next one at %s", next.Format(time.DateTime))

	c.IndentedJSON(http.StatusCreated, healthScheduleStatus())
}

func postponeHealthSnapshot(c *gin.Context) {
	var req types.PostponeRequest
	if err := c.BindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, types.ErrorKindInvalidInput, err)
		return
	}
	d, err := time.ParseDuration(req.Duration)
	if err != nil || d <= 0 {
		abortWithError(c, http.StatusBadRequest, types.ErrorKindInvalidInput,
			fmt.Errorf("postpone duration must be a positive duration, got %q", req.Duration))
		return
	}

	next, err := scheduler.Postpone(d)
	if err != nil {
		abortWithScheduleError(c, err)
		return
	}

	logrus.Infof("postponed next health snapshot to %s", next.Format(time.DateTime))

	c.IndentedJSON(http.StatusCreated, healthScheduleStatus())
}
