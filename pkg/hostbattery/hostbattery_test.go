package hostbattery

import (
	"errors"
	"testing"
	"time"

	"github.com/distatus/battery"
)

func TestRead(t *testing.T) {
	orig := getAll
	defer func() { getAll = orig }()

	tests := []struct {
		name      string
		batteries []*battery.Battery
		err       error
		want      float64
		wantErr   error
	}{
		{
			name:      "healthy",
			batteries: []*battery.Battery{{Full: 45000, Design: 50000, Voltage: 12.1, DesignVoltage: 11.4}},
			want:      0.9,
		},
		{
			name:    "no batteries",
			wantErr: ErrNoBattery,
		},
		{
			name:      "no design capacity",
			batteries: []*battery.Battery{{Full: 45000}},
			wantErr:   ErrNoDesignCapacity,
		},
		{
			name:    "read failure",
			err:     errors.New("boom"),
			wantErr: errors.New("boom"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			getAll = func() ([]*battery.Battery, error) { return tt.batteries, tt.err }

			s, err := Read()
			if tt.wantErr != nil {
				if err == nil {
					t.Fatalf("expected error %v", tt.wantErr)
				}
				if tt.err == nil && !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if s.Retention != tt.want {
				t.Fatalf("retention = %v, want %v", s.Retention, tt.want)
			}
			if s.Time.IsZero() {
				t.Fatalf("snapshot time not set")
			}
		})
	}
}

func TestHistoryBounded(t *testing.T) {
	h := NewHistory(3)
	start := time.Now()
	for i := 0; i < 5; i++ {
		h.Add(Snapshot{Time: start.Add(time.Duration(i) * time.Minute), Retention: float64(i)})
	}

	items := h.List()
	if len(items) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(items))
	}
	for i, s := range items {
		if s.Retention != float64(i+2) {
			t.Fatalf("unexpected order: %+v", items)
		}
	}

	items[0].Retention = -1
	if h.List()[0].Retention == -1 {
		t.Fatalf("List must return a copy")
	}
}
