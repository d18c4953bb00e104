package sqlite

import (
	"database/sql"
	"time"
)

// PLCSample is one row read from plc_logs for a given tag within a ring's
// window.
type PLCSample struct {
	Timestamp time.Time
	TagName   string
	Value     float64
}

// AttitudeSample is one row read from attitude_logs.
type AttitudeSample struct {
	Timestamp           time.Time
	Pitch               *float64
	Roll                *float64
	Yaw                 *float64
	HorizontalDeviation *float64
	VerticalDeviation   *float64
}

// MonitoringSample is one row read from monitoring_logs, used for the
// lagged settlement association.
type MonitoringSample struct {
	Timestamp  time.Time
	SensorType string
	Value      float64
}

// PLCTagValues returns quality-flag-filtered samples for a tag, preferring
// rows explicitly tagged with ringNumber and falling back to a time-window
// scan when fallbackWindow is true (the "window" ring-tagging policy).
func (d *DB) PLCTagValues(ringNumber int64, tag string, start, end time.Time, fallbackWindow bool) ([]PLCSample, error) {
	var rows *sql.Rows
	var err error

	if fallbackWindow {
		rows, err = d.db.Query(
			`SELECT timestamp, tag_name, value FROM plc_logs
			 WHERE tag_name = ? AND data_quality_flag = 'good'
			   AND timestamp >= ? AND timestamp < ?
			 ORDER BY timestamp ASC`,
			tag, start.Unix(), end.Unix(),
		)
	} else {
		rows, err = d.db.Query(
			`SELECT timestamp, tag_name, value FROM plc_logs
			 WHERE tag_name = ? AND data_quality_flag = 'good' AND ring_number = ?
			 ORDER BY timestamp ASC`,
			tag, ringNumber,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PLCSample
	for rows.Next() {
		var s PLCSample
		var ts int64
		if err := rows.Scan(&ts, &s.TagName, &s.Value); err != nil {
			return nil, err
		}
		s.Timestamp = time.Unix(ts, 0).UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

// AttitudeSamples returns attitude rows for a ring's window.
func (d *DB) AttitudeSamples(ringNumber int64, start, end time.Time, fallbackWindow bool) ([]AttitudeSample, error) {
	var r *sql.Rows
	var err error
	if fallbackWindow {
		r, err = d.db.Query(`SELECT timestamp, pitch, roll, yaw, horizontal_deviation, vertical_deviation
			FROM attitude_logs WHERE timestamp >= ? AND timestamp < ? ORDER BY timestamp ASC`,
			start.Unix(), end.Unix())
	} else {
		r, err = d.db.Query(`SELECT timestamp, pitch, roll, yaw, horizontal_deviation, vertical_deviation
			FROM attitude_logs WHERE ring_number = ? ORDER BY timestamp ASC`, ringNumber)
	}
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var out []AttitudeSample
	for r.Next() {
		var s AttitudeSample
		var ts int64
		var pitch, roll, yaw, hDev, vDev sql.NullFloat64
		if err := r.Scan(&ts, &pitch, &roll, &yaw, &hDev, &vDev); err != nil {
			return nil, err
		}
		s.Timestamp = time.Unix(ts, 0).UTC()
		s.Pitch = floatPtr(pitch)
		s.Roll = floatPtr(roll)
		s.Yaw = floatPtr(yaw)
		s.HorizontalDeviation = floatPtr(hDev)
		s.VerticalDeviation = floatPtr(vDev)
		out = append(out, s)
	}
	return out, r.Err()
}

// MonitoringSamplesInWindow returns monitoring_logs rows for ringNumber and a
// sensor type within [start,end], used for the Aligner's lagged settlement
// lookup. Unlike PLCTagValues/AttitudeSamples there is no window-fallback
// mode: settlement sensors are always tagged with the ring they measure.
func (d *DB) MonitoringSamplesInWindow(ringNumber int64, sensorType string, start, end time.Time) ([]MonitoringSample, error) {
	rows, err := d.db.Query(
		`SELECT timestamp, sensor_type, value FROM monitoring_logs
		 WHERE sensor_type = ? AND timestamp >= ? AND timestamp <= ? AND ring_number = ?
		 ORDER BY timestamp ASC`,
		sensorType, start.Unix(), end.Unix(), ringNumber,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MonitoringSample
	for rows.Next() {
		var s MonitoringSample
		var ts int64
		if err := rows.Scan(&ts, &s.SensorType, &s.Value); err != nil {
			return nil, err
		}
		s.Timestamp = time.Unix(ts, 0).UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}
