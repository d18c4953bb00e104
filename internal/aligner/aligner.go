// Package aligner turns a ring's raw PLC, attitude, and monitoring telemetry
// into one closed ring_summary row: a fixed time window in, one aggregated
// record out.
package aligner

import (
	"context"
	"math"
	"time"

	"github.com/shieldterminal/edgecore/internal/domain"
	"github.com/shieldterminal/edgecore/internal/infra/sqlite"
)

// RingTaggingFallback decides how PLC rows are matched to a ring window
// when the upstream ring_number tag may be absent.
type RingTaggingFallback string

const (
	// FallbackStrict requires rows to already carry ring_number — rows
	// without it are simply excluded from aggregation.
	FallbackStrict RingTaggingFallback = "strict"
	// FallbackWindow ignores ring_number and matches rows by timestamp
	// window alone, at the cost of possibly mixing rows from adjacent
	// rings whose sensors drift across the boundary.
	FallbackWindow RingTaggingFallback = "window"
)

// Config controls the Aligner's geometry, settlement lag window,
// completeness minimums, and fallback policy. CutterheadRPM is the single source of truth used to derive
// specific_energy; see the design notes on why the Feature Engineer does
// not hold a competing value.
type Config struct {
	RingTaggingFallback RingTaggingFallback
	TunnelDiameterM     float64 // ring geometry, meters
	CutterheadRPM       float64
	SettlementLagMin    time.Duration // lower bound of the surface-settlement lag window
	SettlementLagMax    time.Duration // upper bound of the surface-settlement lag window
	RequireSettlement   bool          // settlement absence alone drops "complete" to "partial"
	MinCompleteChannels int           // PLC channels required present for "complete"
	MinPartialChannels  int           // PLC channels required present for "partial"
	MinCompleteAttitude int           // attitude channels required present for "complete"
	MinPartialAttitude  int           // attitude channels required present for "partial"
}

// DefaultConfig mirrors the aggregator's own defaults: a 6-8 hour settlement
// lag window, per scenario S1.
func DefaultConfig() Config {
	return Config{
		RingTaggingFallback: FallbackStrict,
		TunnelDiameterM:     6.5,
		CutterheadRPM:       2.0,
		SettlementLagMin:    6 * time.Hour,
		SettlementLagMax:    8 * time.Hour,
		RequireSettlement:   true,
		MinCompleteChannels: 6,
		MinPartialChannels:  3,
		MinCompleteAttitude: 5,
		MinPartialAttitude:  2,
	}
}

// Aligner is constructed once by the daemon and holds no other state.
type Aligner struct {
	db  *sqlite.DB
	cfg Config
}

// New constructs an Aligner over the given store.
func New(db *sqlite.DB, cfg Config) *Aligner {
	return &Aligner{db: db, cfg: cfg}
}

var plcChannels = []string{
	"cutterhead_thrust", "cutterhead_torque", "advance_rate",
	"chamber_pressure", "grout_volume", "grout_pressure",
}

// channelStat is the mean/std pair computed per PLC channel.
type channelStat struct {
	mean *float64
	std  *float64
}

// AlignRing aggregates all telemetry in [windowStart, windowEnd) for
// ringNumber into a closed ring_summary row and persists it. Re-running on
// the same ring with the same window produces the same record.
func (a *Aligner) AlignRing(ctx context.Context, ringNumber int64, windowStart, windowEnd time.Time) (domain.RingRecord, error) {
	fallback := a.cfg.RingTaggingFallback == FallbackWindow

	stats := make(map[string]channelStat, len(plcChannels))
	present := 0
	for _, ch := range plcChannels {
		samples, err := a.db.PLCTagValues(ringNumber, ch, windowStart, windowEnd, fallback)
		if err != nil {
			return domain.RingRecord{}, domain.NewError(domain.CategoryStorage, domain.CodeStorageQueryFailed, "query plc_logs", err)
		}
		if len(samples) == 0 {
			stats[ch] = channelStat{} // NULL, not zero
			continue
		}
		present++
		values := make([]float64, len(samples))
		for i, s := range samples {
			values[i] = s.Value
		}
		mean, std := meanStd(values)
		stats[ch] = channelStat{mean: &mean, std: &std}
	}

	attitude, err := a.db.AttitudeSamples(ringNumber, windowStart, windowEnd, fallback)
	if err != nil {
		return domain.RingRecord{}, domain.NewError(domain.CategoryStorage, domain.CodeStorageQueryFailed, "query attitude_logs", err)
	}

	r := domain.RingRecord{
		RingNumber: ringNumber,
		StartTime:  windowStart,
		EndTime:    windowEnd,
		CreatedAt:  time.Now().UTC(),
		SyncStatus: domain.SyncPending,
	}
	r.ThrustMean, r.ThrustStd = stats["cutterhead_thrust"].mean, stats["cutterhead_thrust"].std
	r.TorqueMean, r.TorqueStd = stats["cutterhead_torque"].mean, stats["cutterhead_torque"].std
	r.AdvanceRateMean, r.AdvanceRateStd = stats["advance_rate"].mean, stats["advance_rate"].std
	r.ChamberPressureMean, r.ChamberPressureStd = stats["chamber_pressure"].mean, stats["chamber_pressure"].std
	r.GroutVolume = stats["grout_volume"].mean
	r.GroutPressureMean = stats["grout_pressure"].mean

	attitudePresent := 0
	if len(attitude) > 0 {
		var pitch, roll, yaw, hdev, vdev []float64
		for _, s := range attitude {
			if s.Pitch != nil {
				pitch = append(pitch, *s.Pitch)
			}
			if s.Roll != nil {
				roll = append(roll, *s.Roll)
			}
			if s.Yaw != nil {
				yaw = append(yaw, *s.Yaw)
			}
			if s.HorizontalDeviation != nil {
				hdev = append(hdev, *s.HorizontalDeviation)
			}
			if s.VerticalDeviation != nil {
				vdev = append(vdev, *s.VerticalDeviation)
			}
		}
		r.PitchMean = meanOnly(pitch)
		r.RollMean = meanOnly(roll)
		r.YawMean = meanOnly(yaw)
		r.HorizontalDeviation = meanOnly(hdev)
		r.VerticalDeviation = meanOnly(vdev)
		for _, s := range [][]float64{pitch, roll, yaw, hdev, vdev} {
			if len(s) > 0 {
				attitudePresent++
			}
		}
	}

	a.deriveIndicators(&r)

	settlement, err := a.laggedSettlement(ringNumber, windowEnd)
	if err != nil {
		return domain.RingRecord{}, domain.NewError(domain.CategoryStorage, domain.CodeStorageQueryFailed, "query monitoring_logs", err)
	}
	r.SettlementValue = settlement

	r.DataCompletenessFlag = a.completeness(present, attitudePresent, settlement != nil)

	if err := a.db.UpsertRing(r); err != nil {
		return domain.RingRecord{}, domain.NewError(domain.CategoryStorage, domain.CodeStorageWriteFailed, "persist ring_summary", err)
	}
	return r, nil
}

// deriveIndicators computes specific_energy, theoretical_volume,
// ground_loss_rate, and volume_loss_ratio from the aggregated channels.
// specific_energy = (T * omega) / (A * v), in MJ/m^3, where T is mean
// torque (kN*m, converted to N*m), omega is cutterhead angular velocity (rad/s, from
// CutterheadRPM), A is the bore cross-section, and v is mean advance rate
// (m/s assumed pre-converted by the caller's unit convention).
func (a *Aligner) deriveIndicators(r *domain.RingRecord) {
	area := math.Pi * a.cfg.TunnelDiameterM * a.cfg.TunnelDiameterM / 4
	omega := 2 * math.Pi * a.cfg.CutterheadRPM / 60

	if r.TorqueMean != nil && r.AdvanceRateMean != nil && *r.AdvanceRateMean > 0 {
		specificEnergy := (*r.TorqueMean * 1000 * omega) / (area * *r.AdvanceRateMean) / 1e6
		r.SpecificEnergy = &specificEnergy
	}

	// theoretical bore volume for this ring's width; width derived from
	// advance rate integrated over the window when available, otherwise
	// left unset.
	if r.AdvanceRateMean != nil {
		width := *r.AdvanceRateMean * r.EndTime.Sub(r.StartTime).Seconds()
		vt := area * width
		r.TheoreticalVolume = &vt
		if r.GroutVolume != nil {
			loss := vt - *r.GroutVolume
			r.GroundLossRate = &loss
			if vt != 0 {
				ratio := 100 * loss / vt
				r.VolumeLossRatio = &ratio
			}
		}
	}
}

// laggedSettlement associates this ring's window with surface_settlement
// samples taken for this ring number in [end_time+lag_min, end_time+lag_max].
func (a *Aligner) laggedSettlement(ringNumber int64, windowEnd time.Time) (*float64, error) {
	lagStart := windowEnd.Add(a.cfg.SettlementLagMin)
	lagEnd := windowEnd.Add(a.cfg.SettlementLagMax)
	samples, err := a.db.MonitoringSamplesInWindow(ringNumber, "surface_settlement", lagStart, lagEnd)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, nil
	}
	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = s.Value
	}
	mean, _ := meanStd(values)
	return &mean, nil
}

// completeness mirrors the aggregator's assessment: complete requires both
// PLC and attitude channel minimums plus a settlement value (when required);
// partial requires either channel minimum alone; otherwise incomplete.
func (a *Aligner) completeness(plcPresent, attitudePresent int, hasSettlement bool) domain.CompletenessFlag {
	settlementOK := hasSettlement || !a.cfg.RequireSettlement
	switch {
	case plcPresent >= a.cfg.MinCompleteChannels && attitudePresent >= a.cfg.MinCompleteAttitude && settlementOK:
		return domain.CompletenessComplete
	case plcPresent >= a.cfg.MinPartialChannels || attitudePresent >= a.cfg.MinPartialAttitude:
		return domain.CompletenessPartial
	default:
		return domain.CompletenessIncomplete
	}
}

func meanStd(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean = sum / float64(len(values))
	if len(values) == 1 {
		return mean, 0
	}
	var ss float64
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	std = math.Sqrt(ss / float64(len(values)))
	return mean, std
}

func meanOnly(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	m, _ := meanStd(values)
	return &m
}
