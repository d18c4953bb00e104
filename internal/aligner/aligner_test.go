package aligner

import (
	"context"
	"testing"
	"time"

	"github.com/shieldterminal/edgecore/internal/infra/sqlite"
)

func openTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestAlignRingAggregation exercises S1: 1800 thrust samples at a constant
// value should aggregate to mean=value, std=0, and a settlement sample
// inside the lag window should populate settlement_value with completeness
// "complete" once enough other channels are present too.
func TestAlignRingAggregation(t *testing.T) {
	db := openTestDB(t)
	conn := db.Conn()

	windowStart := time.Unix(0, 0).UTC()
	windowEnd := windowStart.Add(1800 * time.Second)

	for i := 0; i < 1800; i++ {
		ts := windowStart.Add(time.Duration(i) * time.Second).Unix()
		for _, ch := range plcChannels {
			val := 12000.0
			if ch != "cutterhead_thrust" {
				val = 1.0
			}
			if _, err := conn.Exec(
				`INSERT INTO plc_logs (timestamp, tag_name, value, data_quality_flag, ring_number) VALUES (?,?,?,?,?)`,
				ts, ch, val, "good", 1,
			); err != nil {
				t.Fatal(err)
			}
		}
	}

	lagStart := windowEnd.Add(7 * time.Hour)
	for i := 0; i < 10; i++ {
		ts := lagStart.Add(time.Duration(i) * time.Minute).Unix()
		if _, err := conn.Exec(
			`INSERT INTO monitoring_logs (timestamp, sensor_type, value, ring_number) VALUES (?,?,?,?)`,
			ts, "surface_settlement", 5.0, 1,
		); err != nil {
			t.Fatal(err)
		}
	}

	for i := 0; i < 100; i++ {
		ts := windowStart.Add(time.Duration(i) * time.Second).Unix()
		if _, err := conn.Exec(
			`INSERT INTO attitude_logs (timestamp, pitch, roll, yaw, horizontal_deviation, vertical_deviation, ring_number) VALUES (?,?,?,?,?,?,?)`,
			ts, 0.1, 0.2, 0.3, 0.4, 0.5, 1,
		); err != nil {
			t.Fatal(err)
		}
	}

	a := New(db, DefaultConfig())
	record, err := a.AlignRing(context.Background(), 1, windowStart, windowEnd)
	if err != nil {
		t.Fatalf("align ring: %v", err)
	}

	if record.ThrustMean == nil || *record.ThrustMean != 12000.0 {
		t.Fatalf("thrust mean = %v, want 12000", record.ThrustMean)
	}
	if record.ThrustStd == nil || *record.ThrustStd != 0 {
		t.Fatalf("thrust std = %v, want 0", record.ThrustStd)
	}
	if record.SettlementValue == nil || *record.SettlementValue != 5.0 {
		t.Fatalf("settlement = %v, want 5.0", record.SettlementValue)
	}
	if record.DataCompletenessFlag != "complete" {
		t.Fatalf("completeness = %v, want complete", record.DataCompletenessFlag)
	}
}

// TestAlignRingIdempotent re-running on the same ring and window must
// produce the same record (invariant 7).
func TestAlignRingIdempotent(t *testing.T) {
	db := openTestDB(t)
	conn := db.Conn()
	windowStart := time.Unix(0, 0).UTC()
	windowEnd := windowStart.Add(time.Hour)

	for i := 0; i < 100; i++ {
		ts := windowStart.Add(time.Duration(i) * time.Second).Unix()
		if _, err := conn.Exec(
			`INSERT INTO plc_logs (timestamp, tag_name, value, data_quality_flag, ring_number) VALUES (?,?,?,?,?)`,
			ts, "cutterhead_thrust", 100.0, "good", 7,
		); err != nil {
			t.Fatal(err)
		}
	}

	a := New(db, DefaultConfig())
	first, err := a.AlignRing(context.Background(), 7, windowStart, windowEnd)
	if err != nil {
		t.Fatal(err)
	}
	second, err := a.AlignRing(context.Background(), 7, windowStart, windowEnd)
	if err != nil {
		t.Fatal(err)
	}
	if *first.ThrustMean != *second.ThrustMean {
		t.Fatalf("non-idempotent: %v != %v", *first.ThrustMean, *second.ThrustMean)
	}
}

// TestLaggedSettlementScopedToRing ensures settlement samples from another
// ring in the same lag window, and samples outside [lag_min, lag_max], are
// both excluded from this ring's settlement_value.
func TestLaggedSettlementScopedToRing(t *testing.T) {
	db := openTestDB(t)
	conn := db.Conn()

	windowStart := time.Unix(0, 0).UTC()
	windowEnd := windowStart.Add(time.Hour)

	inLag := windowEnd.Add(7 * time.Hour).Unix()
	if _, err := conn.Exec(
		`INSERT INTO monitoring_logs (timestamp, sensor_type, value, ring_number) VALUES (?,?,?,?)`,
		inLag, "surface_settlement", 999.0, 2, // different ring, same window
	); err != nil {
		t.Fatal(err)
	}
	outOfRange := windowEnd.Add(20 * time.Hour).Unix()
	if _, err := conn.Exec(
		`INSERT INTO monitoring_logs (timestamp, sensor_type, value, ring_number) VALUES (?,?,?,?)`,
		outOfRange, "surface_settlement", 999.0, 1, // right ring, wrong lag
	); err != nil {
		t.Fatal(err)
	}
	if _, err := conn.Exec(
		`INSERT INTO monitoring_logs (timestamp, sensor_type, value, ring_number) VALUES (?,?,?,?)`,
		inLag, "surface_settlement", 5.0, 1, // right ring, right lag
	); err != nil {
		t.Fatal(err)
	}

	a := New(db, DefaultConfig())
	record, err := a.AlignRing(context.Background(), 1, windowStart, windowEnd)
	if err != nil {
		t.Fatalf("align ring: %v", err)
	}
	if record.SettlementValue == nil || *record.SettlementValue != 5.0 {
		t.Fatalf("settlement = %v, want 5.0 (other ring and out-of-range samples must not leak in)", record.SettlementValue)
	}
}

// TestEmptyChannelIsNullNotZero ensures a channel with no samples stays nil.
func TestEmptyChannelIsNullNotZero(t *testing.T) {
	db := openTestDB(t)
	a := New(db, DefaultConfig())
	record, err := a.AlignRing(context.Background(), 99, time.Unix(0, 0).UTC(), time.Unix(3600, 0).UTC())
	if err != nil {
		t.Fatal(err)
	}
	if record.ThrustMean != nil {
		t.Fatalf("expected nil thrust mean for empty channel, got %v", *record.ThrustMean)
	}
	if record.DataCompletenessFlag != "incomplete" {
		t.Fatalf("completeness = %v, want incomplete", record.DataCompletenessFlag)
	}
}
