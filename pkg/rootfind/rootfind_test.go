package rootfind

import (
	"context"
	"errors"
	"math"
	"testing"
)

func TestNewton(t *testing.T) {
	tests := []struct {
		name    string
		f       Func
		bracket Bracket
		x0      float64
		want    float64
		wantErr error
	}{
		{
			name:    "linear",
			f:       func(x float64) float64 { return 2*x - 1 },
			bracket: Bracket{Lo: 0, Hi: 1},
			x0:      0.9,
			want:    0.5,
		},
		{
			name:    "decreasing cubic",
			f:       func(x float64) float64 { return 0.125 - x*x*x },
			bracket: Bracket{Lo: 0, Hi: 1},
			x0:      0.9,
			want:    0.5,
		},
		{
			name:    "guess outside bracket is clamped",
			f:       func(x float64) float64 { return math.Exp(x) - 2 },
			bracket: Bracket{Lo: 0, Hi: 1},
			x0:      5,
			want:    math.Ln2,
		},
		{
			name: "flat region falls back to bisection",
			f: func(x float64) float64 {
				if x > 0.8 {
					return 1
				}
				return x - 0.3
			},
			bracket: Bracket{Lo: 0, Hi: 1},
			x0:      0.95,
			want:    0.3,
		},
		{
			name:    "root on upper edge",
			f:       func(x float64) float64 { return x - 1 },
			bracket: Bracket{Lo: 0, Hi: 1},
			x0:      0.2,
			want:    1,
		},
		{
			name:    "root on lower edge",
			f:       func(x float64) float64 { return x },
			bracket: Bracket{Lo: 0, Hi: 1},
			x0:      0.7,
			want:    0,
		},
		{
			name:    "no sign change",
			f:       func(x float64) float64 { return x + 1 },
			bracket: Bracket{Lo: 0, Hi: 1},
			wantErr: ErrNoSignChange,
		},
		{
			name:    "empty bracket",
			f:       func(x float64) float64 { return x },
			bracket: Bracket{Lo: 1, Hi: 0},
			wantErr: ErrEmptyBracket,
		},
		{
			name:    "nan at edge",
			f:       func(x float64) float64 { return math.Log(x - 0.5) },
			bracket: Bracket{Lo: 0, Hi: 1},
			wantErr: ErrNaN,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Newton(context.Background(), tt.f, tt.bracket, tt.x0, Settings{})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected error %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if math.Abs(res.Root-tt.want) > 1e-8 {
				t.Fatalf("root = %v, want %v", res.Root, tt.want)
			}
			if math.Abs(res.Residual) >= DefaultTolerance {
				t.Fatalf("residual %v above tolerance", res.Residual)
			}
		})
	}
}

func TestNewtonMaxIterations(t *testing.T) {
	f := func(x float64) float64 { return math.Atan(x - 0.3) }

	res, err := Newton(context.Background(), f, Bracket{Lo: 0, Hi: 1}, 0.9, Settings{MaxIterations: 2, Tolerance: 1e-15})
	if !errors.Is(err, ErrMaxIterations) {
		t.Fatalf("expected ErrMaxIterations, got %v", err)
	}
	if res.Iterations != 2 {
		t.Fatalf("iterations = %d, want 2", res.Iterations)
	}
	if res.Root < 0 || res.Root > 1 {
		t.Fatalf("last iterate %v left the bracket", res.Root)
	}
}

func TestNewtonCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Newton(ctx, func(x float64) float64 { return x - 0.5 }, Bracket{Lo: 0, Hi: 1}, 0.9, Settings{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewtonStaysInBracket(t *testing.T) {
	lo, hi := 0.2, 0.6
	f := func(x float64) float64 {
		if x < lo || x > hi {
			t.Fatalf("f evaluated outside bracket at %v", x)
		}
		return math.Tan(3*(x-0.45)) * 10
	}

	res, err := Newton(context.Background(), f, Bracket{Lo: lo, Hi: hi}, 0.21, Settings{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(res.Root-0.45) > 1e-8 {
		t.Fatalf("root = %v, want 0.45", res.Root)
	}
}
