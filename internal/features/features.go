// Package features turns an aligned ring (plus its recent history) into the
// flat numeric vector the inference session consumes.
package features

import (
	"math"

	"github.com/shieldterminal/edgecore/internal/domain"
)

// SoilType is one of the one-hot encoded geological categories.
type SoilType string

const (
	SoilClay       SoilType = "soft_clay"
	SoilSandSilt   SoilType = "sand_silt"
	SoilHardRock   SoilType = "hard_rock"
	SoilMixed      SoilType = "mixed"
	SoilTransition SoilType = "transition"
)

var soilTypes = []SoilType{SoilClay, SoilSandSilt, SoilHardRock, SoilMixed, SoilTransition}

// normRange is the [min, max] used for min-max normalization of a feature.
type normRange struct{ min, max float64 }

// Config carries the window size and the normalization/fallback tables a
// faithful feature pipeline needs pinned down ahead of time.
type Config struct {
	WindowSize        int
	FallbackSoilType  SoilType
	NormalizationRanges map[string]normRange
}

// DefaultConfig mirrors the feature engineer's own fixed constants.
func DefaultConfig() Config {
	return Config{
		WindowSize:       10,
		FallbackSoilType: SoilMixed,
		NormalizationRanges: map[string]normRange{
			"thrust_mean":          {0, 30000},
			"torque_mean":          {0, 5000},
			"advance_rate_mean":    {0, 0.1},
			"chamber_pressure_mean": {0, 5},
			"specific_energy":      {0, 50},
			"volume_loss_ratio":    {-20, 20},
		},
	}
}

// Engineer is constructed once by the daemon; it is stateless beyond its
// config, with all history passed in by the caller.
type Engineer struct {
	cfg     Config
	version string
}

// New constructs a Feature Engineer at the given version tag, persisted
// alongside every model that was trained against a particular feature set.
func New(cfg Config, version string) *Engineer {
	return &Engineer{cfg: cfg, version: version}
}

// Version returns the feature engineering version string.
func (e *Engineer) Version() string { return e.version }

// Engineer builds the feature vector for `ring`, using `history` (up to
// WindowSize prior rings, chronologically ascending, not including ring
// itself) for the windowed features, and `soilType`/`ok` for geological
// one-hot encoding (falls back to FallbackSoilType when !ok).
func (e *Engineer) Engineer(ring domain.RingRecord, history []domain.RingRecord, soilType SoilType, ok bool) domain.FeatureVector {
	var names []string
	var values []float64
	nanCount := 0
	total := 0

	add := func(name string, v *float64) {
		names = append(names, name)
		total++
		if v == nil {
			values = append(values, math.NaN())
			nanCount++
			return
		}
		values = append(values, *v)
	}

	// 1. raw
	add("thrust_mean", ring.ThrustMean)
	add("torque_mean", ring.TorqueMean)
	add("advance_rate_mean", ring.AdvanceRateMean)
	add("chamber_pressure_mean", ring.ChamberPressureMean)
	add("grout_volume", ring.GroutVolume)
	add("grout_pressure_mean", ring.GroutPressureMean)
	add("pitch_mean", ring.PitchMean)
	add("roll_mean", ring.RollMean)
	add("yaw_mean", ring.YawMean)
	add("specific_energy", ring.SpecificEnergy)
	add("volume_loss_ratio", ring.VolumeLossRatio)

	// 2. derived ratios
	add("thrust_torque_ratio", ratio(ring.ThrustMean, ring.TorqueMean))
	add("advance_pressure_ratio", ratio(ring.AdvanceRateMean, ring.ChamberPressureMean))

	// 3. geological one-hot, with fallback when the caller has no
	// classification for this ring.
	used := soilType
	if !ok {
		used = e.cfg.FallbackSoilType
	}
	for _, st := range soilTypes {
		v := 0.0
		if st == used {
			v = 1.0
		}
		names = append(names, "soil_"+string(st))
		values = append(values, v)
		total++
	}

	// quality: geological fallback is detected first (step 3 above), then
	// cold start (step 4) takes precedence if both apply, since a model
	// fed zeroed trend features needs that flagged even when the zone was
	// also unclassified.
	quality := domain.QualityNormal
	if !ok {
		quality = domain.QualityGeologicalDataIncomplete
	}
	coldStart := len(history) < 3
	if coldStart {
		quality = domain.QualityColdStart
	}

	// 4. windowed features over the last WindowSize rings: mean, std, and
	// a trend slope, all zeroed during cold start (<3 rings of history).
	windowed := windowHistory(history, e.cfg.WindowSize)
	for _, ch := range []string{"thrust_mean", "torque_mean", "advance_rate_mean"} {
		series := extractSeries(windowed, ch)
		wMean, wStd, wSlope := 0.0, 0.0, 0.0
		if len(series) >= 3 {
			wMean, wStd = meanStd(series)
			wSlope = trendSlope(series)
		}
		names = append(names, ch+"_window_mean", ch+"_window_std", ch+"_window_slope")
		values = append(values, wMean, wStd, wSlope)
		total += 3
	}

	// 5. min-max normalization, applied to the raw feature subset with a
	// known range; untracked features pass through unchanged.
	for i, n := range names {
		if r, ok := e.cfg.NormalizationRanges[n]; ok && r.max != r.min && !math.IsNaN(values[i]) {
			values[i] = (values[i] - r.min) / (r.max - r.min)
		}
	}

	completeness := 1.0
	if total > 0 {
		completeness = 1.0 - float64(nanCount)/float64(total)
	}

	return domain.FeatureVector{
		RingNumber:     ring.RingNumber,
		Names:          names,
		Values:         values,
		Completeness:   completeness,
		GeologicalZone: string(used),
		QualityFlag:    quality,
	}
}

func ratio(a, b *float64) *float64 {
	if a == nil || b == nil || *b == 0 {
		return nil
	}
	r := *a / *b
	return &r
}

func windowHistory(history []domain.RingRecord, n int) []domain.RingRecord {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

func extractSeries(rings []domain.RingRecord, channel string) []float64 {
	var out []float64
	for _, r := range rings {
		var v *float64
		switch channel {
		case "thrust_mean":
			v = r.ThrustMean
		case "torque_mean":
			v = r.TorqueMean
		case "advance_rate_mean":
			v = r.AdvanceRateMean
		}
		if v != nil {
			out = append(out, *v)
		}
	}
	return out
}

func meanStd(values []float64) (mean, std float64) {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean = sum / float64(len(values))
	var ss float64
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	std = math.Sqrt(ss / float64(len(values)))
	return mean, std
}

// trendSlope fits a simple least-squares line against index and returns its
// slope, giving a cheap linear trend indicator over the window.
func trendSlope(values []float64) float64 {
	n := float64(len(values))
	var sumX, sumY, sumXY, sumXX float64
	for i, v := range values {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}
