package features

import (
	"math"
	"testing"

	"github.com/shieldterminal/edgecore/internal/domain"
)

func f(v float64) *float64 { return &v }

func TestEngineerColdStartZerosWindowedFeatures(t *testing.T) {
	e := New(DefaultConfig(), "1.0.0")
	ring := domain.RingRecord{RingNumber: 3, ThrustMean: f(1000), TorqueMean: f(200), AdvanceRateMean: f(0.02)}
	history := []domain.RingRecord{
		{RingNumber: 1, ThrustMean: f(900)},
		{RingNumber: 2, ThrustMean: f(950)},
	}
	fv := e.Engineer(ring, history, SoilClay, true)

	idx := indexOf(fv.Names, "thrust_mean_window_mean")
	if fv.Values[idx] != 0 {
		t.Fatalf("expected cold-start window mean 0 with <3 history rings, got %v", fv.Values[idx])
	}
}

func TestEngineerWindowedMeanWithEnoughHistory(t *testing.T) {
	e := New(DefaultConfig(), "1.0.0")
	ring := domain.RingRecord{RingNumber: 5, ThrustMean: f(1000)}
	history := []domain.RingRecord{
		{RingNumber: 1, ThrustMean: f(100)},
		{RingNumber: 2, ThrustMean: f(200)},
		{RingNumber: 3, ThrustMean: f(300)},
	}
	fv := e.Engineer(ring, history, SoilClay, true)
	idx := indexOf(fv.Names, "thrust_mean_window_mean")
	if fv.Values[idx] != 200 {
		t.Fatalf("window mean = %v, want 200", fv.Values[idx])
	}
}

func TestEngineerGeologicalFallback(t *testing.T) {
	e := New(DefaultConfig(), "1.0.0")
	ring := domain.RingRecord{RingNumber: 1}
	fv := e.Engineer(ring, nil, "", false)
	idx := indexOf(fv.Names, "soil_"+string(e.cfg.FallbackSoilType))
	if fv.Values[idx] != 1.0 {
		t.Fatalf("expected fallback soil type one-hot set")
	}
}

func TestEngineerCompletenessFractionNonNaN(t *testing.T) {
	e := New(DefaultConfig(), "1.0.0")
	ring := domain.RingRecord{RingNumber: 1} // every raw channel nil
	fv := e.Engineer(ring, nil, SoilClay, true)
	if fv.Completeness <= 0 || fv.Completeness >= 1 {
		t.Fatalf("completeness = %v, want strictly between 0 and 1", fv.Completeness)
	}
	for _, v := range fv.Values {
		_ = math.IsNaN(v) // sanity: NaNs are allowed to persist pre-boundary
	}
}

func indexOf(names []string, target string) int {
	for i, n := range names {
		if n == target {
			return i
		}
	}
	return -1
}
