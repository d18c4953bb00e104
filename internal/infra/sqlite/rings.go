package sqlite

import (
	"database/sql"
	"time"

	"github.com/shieldterminal/edgecore/internal/domain"
)

// UpsertRing inserts or replaces a ring_summary row. The Aligner is the
// only caller; re-running on the same ring produces the same row.
func (d *DB) UpsertRing(r domain.RingRecord) error {
	_, err := d.db.Exec(
		`INSERT INTO ring_summary (
			ring_number, start_time, end_time,
			thrust_mean, thrust_std, torque_mean, torque_std,
			advance_rate_mean, advance_rate_std,
			chamber_pressure_mean, chamber_pressure_std,
			grout_volume, grout_pressure_mean,
			pitch_mean, roll_mean, yaw_mean,
			horizontal_deviation, vertical_deviation,
			specific_energy, theoretical_volume, ground_loss_rate, volume_loss_ratio,
			settlement_value, data_completeness_flag, sync_status, created_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(ring_number) DO UPDATE SET
			start_time=excluded.start_time, end_time=excluded.end_time,
			thrust_mean=excluded.thrust_mean, thrust_std=excluded.thrust_std,
			torque_mean=excluded.torque_mean, torque_std=excluded.torque_std,
			advance_rate_mean=excluded.advance_rate_mean, advance_rate_std=excluded.advance_rate_std,
			chamber_pressure_mean=excluded.chamber_pressure_mean, chamber_pressure_std=excluded.chamber_pressure_std,
			grout_volume=excluded.grout_volume, grout_pressure_mean=excluded.grout_pressure_mean,
			pitch_mean=excluded.pitch_mean, roll_mean=excluded.roll_mean, yaw_mean=excluded.yaw_mean,
			horizontal_deviation=excluded.horizontal_deviation, vertical_deviation=excluded.vertical_deviation,
			specific_energy=excluded.specific_energy, theoretical_volume=excluded.theoretical_volume,
			ground_loss_rate=excluded.ground_loss_rate, volume_loss_ratio=excluded.volume_loss_ratio,
			settlement_value=excluded.settlement_value,
			data_completeness_flag=excluded.data_completeness_flag`,
		r.RingNumber, r.StartTime.Unix(), r.EndTime.Unix(),
		nullableFloat(r.ThrustMean), nullableFloat(r.ThrustStd),
		nullableFloat(r.TorqueMean), nullableFloat(r.TorqueStd),
		nullableFloat(r.AdvanceRateMean), nullableFloat(r.AdvanceRateStd),
		nullableFloat(r.ChamberPressureMean), nullableFloat(r.ChamberPressureStd),
		nullableFloat(r.GroutVolume), nullableFloat(r.GroutPressureMean),
		nullableFloat(r.PitchMean), nullableFloat(r.RollMean), nullableFloat(r.YawMean),
		nullableFloat(r.HorizontalDeviation), nullableFloat(r.VerticalDeviation),
		nullableFloat(r.SpecificEnergy), nullableFloat(r.TheoreticalVolume),
		nullableFloat(r.GroundLossRate), nullableFloat(r.VolumeLossRatio),
		nullableFloat(r.SettlementValue), string(r.DataCompletenessFlag), string(r.SyncStatus),
		r.CreatedAt.Unix(),
	)
	return err
}

const ringSelectCols = `ring_number, start_time, end_time,
	thrust_mean, thrust_std, torque_mean, torque_std,
	advance_rate_mean, advance_rate_std,
	chamber_pressure_mean, chamber_pressure_std,
	grout_volume, grout_pressure_mean,
	pitch_mean, roll_mean, yaw_mean,
	horizontal_deviation, vertical_deviation,
	specific_energy, theoretical_volume, ground_loss_rate, volume_loss_ratio,
	settlement_value, data_completeness_flag, sync_status, created_at`

func scanRing(s scanner) (domain.RingRecord, error) {
	var r domain.RingRecord
	var start, end, created int64
	var completeness, syncStatus string
	err := s.Scan(&r.RingNumber, &start, &end,
		&r.ThrustMean, &r.ThrustStd, &r.TorqueMean, &r.TorqueStd,
		&r.AdvanceRateMean, &r.AdvanceRateStd,
		&r.ChamberPressureMean, &r.ChamberPressureStd,
		&r.GroutVolume, &r.GroutPressureMean,
		&r.PitchMean, &r.RollMean, &r.YawMean,
		&r.HorizontalDeviation, &r.VerticalDeviation,
		&r.SpecificEnergy, &r.TheoreticalVolume, &r.GroundLossRate, &r.VolumeLossRatio,
		&r.SettlementValue, &completeness, &syncStatus, &created,
	)
	if err != nil {
		return r, err
	}
	r.StartTime = time.Unix(start, 0).UTC()
	r.EndTime = time.Unix(end, 0).UTC()
	r.CreatedAt = time.Unix(created, 0).UTC()
	r.DataCompletenessFlag = domain.CompletenessFlag(completeness)
	r.SyncStatus = domain.SyncStatus(syncStatus)
	return r, nil
}

// GetRing fetches a single ring by number.
func (d *DB) GetRing(ringNumber int64) (*domain.RingRecord, error) {
	row := d.db.QueryRow(`SELECT `+ringSelectCols+` FROM ring_summary WHERE ring_number = ?`, ringNumber)
	r, err := scanRing(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// RecentRings returns up to n rings strictly before (and not including)
// ringNumber, ordered chronologically ascending, for windowed-feature and
// historical-context use.
func (d *DB) RecentRings(beforeRing int64, n int) ([]domain.RingRecord, error) {
	rows, err := d.db.Query(
		`SELECT `+ringSelectCols+` FROM ring_summary WHERE ring_number < ?
		 ORDER BY ring_number DESC LIMIT ?`, beforeRing, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RingRecord
	for rows.Next() {
		r, err := scanRing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// reverse to chronological ascending
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// MarkRingSynced sets sync_status='synced' after a confirmed 2xx upload.
func (d *DB) MarkRingSynced(ringNumber int64) error {
	_, err := d.db.Exec(`UPDATE ring_summary SET sync_status = 'synced' WHERE ring_number = ?`, ringNumber)
	return err
}

// SyncedRingsBefore returns ring numbers eligible for normal purge: synced
// and with acceptable completeness, started before cutoff.
func (d *DB) SyncedRingsBefore(cutoff time.Time) ([]int64, error) {
	rows, err := d.db.Query(
		`SELECT DISTINCT ring_number FROM ring_summary
		 WHERE start_time < ? AND sync_status = 'synced'
		   AND data_completeness_flag IN ('complete', 'acceptable')
		 ORDER BY ring_number`, cutoff.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var n int64
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// AllRingNumbersBefore returns every ring number started before cutoff,
// regardless of sync status or completeness, for emergency purge candidate
// selection where disk pressure overrides the normal safety invariant.
func (d *DB) AllRingNumbersBefore(cutoff time.Time) ([]int64, error) {
	rows, err := d.db.Query(
		`SELECT ring_number FROM ring_summary WHERE start_time < ? ORDER BY ring_number`, cutoff.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var n int64
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
