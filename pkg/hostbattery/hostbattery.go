// Package hostbattery reads the capacity retention of the machine's own
// battery, as reported by the operating system.
package hostbattery

import (
	"errors"
	"sync"
	"time"

	"github.com/distatus/battery"
	pkgerrors "github.com/pkg/errors"
)

var (
	// ErrNoBattery is returned when the system reports no battery.
	ErrNoBattery = errors.New("no batteries found")

	// ErrNoDesignCapacity is returned when the battery does not report its
	// design capacity, so retention cannot be computed.
	ErrNoDesignCapacity = errors.New("battery reports no design capacity")
)

// getAll is replaced in tests.
var getAll = battery.GetAll

// Snapshot is a single reading. Capacities are in mWh.
type Snapshot struct {
	Time           time.Time `json:"time"`
	DesignCapacity float64   `json:"designCapacity"`
	FullCapacity   float64   `json:"fullCapacity"`
	Current        float64   `json:"current"`
	Voltage        float64   `json:"voltage"`
	DesignVoltage  float64   `json:"designVoltage"`
	// Retention is FullCapacity / DesignCapacity.
	Retention float64 `json:"retention"`
}

// Read takes a snapshot of the first battery.
func Read() (Snapshot, error) {
	batteries, err := getAll()
	if err != nil {
		return Snapshot{}, pkgerrors.Wrap(err, "failed to read batteries")
	}
	if len(batteries) == 0 {
		return Snapshot{}, ErrNoBattery
	}

	return fromBattery(batteries[0], time.Now())
}

func fromBattery(b *battery.Battery, now time.Time) (Snapshot, error) {
	if b == nil {
		return Snapshot{}, ErrNoBattery
	}
	if b.Design <= 0 {
		return Snapshot{}, ErrNoDesignCapacity
	}

	return Snapshot{
		Time:           now,
		DesignCapacity: b.Design,
		FullCapacity:   b.Full,
		Current:        b.Current,
		Voltage:        b.Voltage,
		DesignVoltage:  b.DesignVoltage,
		Retention:      b.Full / b.Design,
	}, nil
}

// History keeps the most recent snapshots, oldest first.
type History struct {
	mu    sync.RWMutex
	limit int
	items []Snapshot
}

// NewHistory returns a History holding at most limit snapshots.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = 1
	}
	return &History{limit: limit}
}

// Add appends s, dropping the oldest entry when full.
func (h *History) Add(s Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.items = append(h.items, s)
	if over := len(h.items) - h.limit; over > 0 {
		h.items = append(h.items[:0], h.items[over:]...)
	}
}

// List returns a copy of the stored snapshots.
func (h *History) List() []Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ret := make([]Snapshot, len(h.items))
	copy(ret, h.items)
	return ret
}
