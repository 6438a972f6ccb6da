package segdb

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/tracksense/activitykit/internal/activity"
)

// ErrNotFound is returned by point queries that match no segment.
var ErrNotFound = errors.New("segment not found")

// continuityTolerance is how far apart adjacent segment boundaries may sit
// before the gap is logged as an anomaly.
const continuityTolerance = time.Second

const segmentColumns = `lookup_id, session_id, device_id, activity_type, unknown_reason,
	start_unix_nanos, end_unix_nanos, recorded_unix_nanos, step_count, step_distance`

// Insert writes a new segment. Temporal overlap with an existing segment and
// discontinuity against the preceding segment are detected first and logged;
// neither blocks the write.
func (db *DB) Insert(seg *activity.Segment) error {
	db.checkOverlap(seg)
	db.checkContinuity(seg)

	_, err := db.Exec(`
		INSERT INTO activity_segments (`+segmentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		seg.LookupID,
		seg.SessionID,
		seg.DeviceID,
		string(seg.Type),
		nullReason(seg.UnknownReason),
		seg.StartTime.UnixNano(),
		nullNanos(seg.EndTime),
		seg.RecordedAt.UnixNano(),
		seg.StepCount,
		seg.StepDistance,
	)
	if err != nil {
		return fmt.Errorf("insert segment %s: %w", seg.LookupID, err)
	}
	return nil
}

// Update rewrites a segment keyed by lookup id. Last write wins.
func (db *DB) Update(seg *activity.Segment) error {
	_, err := db.Exec(`
		UPDATE activity_segments SET
			session_id = ?,
			device_id = ?,
			activity_type = ?,
			unknown_reason = ?,
			start_unix_nanos = ?,
			end_unix_nanos = ?,
			recorded_unix_nanos = ?
		WHERE lookup_id = ?
	`,
		seg.SessionID,
		seg.DeviceID,
		string(seg.Type),
		nullReason(seg.UnknownReason),
		seg.StartTime.UnixNano(),
		nullNanos(seg.EndTime),
		seg.RecordedAt.UnixNano(),
		seg.LookupID,
	)
	if err != nil {
		return fmt.Errorf("update segment %s: %w", seg.LookupID, err)
	}
	return nil
}

// UpdateStepData writes the one-time step enrichment for a closed segment.
func (db *DB) UpdateStepData(seg *activity.Segment) error {
	_, err := db.Exec(`
		UPDATE activity_segments SET
			step_count = ?,
			step_distance = ?,
			recorded_unix_nanos = ?
		WHERE lookup_id = ?
	`,
		seg.StepCount,
		seg.StepDistance,
		seg.RecordedAt.UnixNano(),
		seg.LookupID,
	)
	if err != nil {
		return fmt.Errorf("update step data for %s: %w", seg.LookupID, err)
	}
	return nil
}

// MostRecent returns up to n segments ordered by most recent start first.
func (db *DB) MostRecent(n int) ([]*activity.Segment, error) {
	rows, err := db.Query(`
		SELECT `+segmentColumns+`
		FROM activity_segments
		ORDER BY start_unix_nanos DESC
		LIMIT ?
	`, n)
	if err != nil {
		return nil, fmt.Errorf("query recent segments: %w", err)
	}
	defer rows.Close()

	var out []*activity.Segment
	for rows.Next() {
		seg, err := scanSegment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, seg)
	}
	return out, rows.Err()
}

// FindAt returns the segment whose interval contains t. Open segments match
// any instant at or after their start.
func (db *DB) FindAt(t time.Time) (*activity.Segment, error) {
	row := db.QueryRow(`
		SELECT `+segmentColumns+`
		FROM activity_segments
		WHERE start_unix_nanos <= ?
		  AND (end_unix_nanos IS NULL OR end_unix_nanos > ?)
		ORDER BY start_unix_nanos DESC
		LIMIT 1
	`, t.UnixNano(), t.UnixNano())
	return scanOne(row)
}

// FindByLookupID returns the segment with the given lookup id.
func (db *DB) FindByLookupID(id string) (*activity.Segment, error) {
	row := db.QueryRow(`
		SELECT `+segmentColumns+`
		FROM activity_segments
		WHERE lookup_id = ?
	`, id)
	return scanOne(row)
}

// CurrentOpen returns the most recently started open segment, or ErrNotFound.
func (db *DB) CurrentOpen() (*activity.Segment, error) {
	row := db.QueryRow(`
		SELECT ` + segmentColumns + `
		FROM activity_segments
		WHERE end_unix_nanos IS NULL
		ORDER BY start_unix_nanos DESC
		LIMIT 1
	`)
	return scanOne(row)
}

// checkOverlap logs an anomaly when an existing segment's interval contains
// the new segment's start.
func (db *DB) checkOverlap(seg *activity.Segment) {
	start := seg.StartTime.UnixNano()
	var existing string
	err := db.QueryRow(`
		SELECT lookup_id
		FROM activity_segments
		WHERE lookup_id != ?
		  AND start_unix_nanos <= ?
		  AND (end_unix_nanos IS NULL OR end_unix_nanos > ?)
		LIMIT 1
	`, seg.LookupID, start, start).Scan(&existing)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		log.Printf("segment overlap check failed: %v", err)
	default:
		log.Printf("anomaly: segment %s start %s overlaps segment %s",
			seg.LookupID, seg.StartTime.Format(time.RFC3339Nano), existing)
	}
}

// checkContinuity logs an anomaly when the preceding segment's end does not
// meet the new segment's start within the tolerance.
func (db *DB) checkContinuity(seg *activity.Segment) {
	var endNanos sql.NullInt64
	err := db.QueryRow(`
		SELECT end_unix_nanos
		FROM activity_segments
		WHERE start_unix_nanos < ?
		ORDER BY start_unix_nanos DESC
		LIMIT 1
	`, seg.StartTime.UnixNano()).Scan(&endNanos)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return
	case err != nil:
		log.Printf("segment continuity check failed: %v", err)
		return
	}
	if !endNanos.Valid {
		// Open predecessor shows up in the overlap check instead.
		return
	}
	gap := seg.StartTime.Sub(time.Unix(0, endNanos.Int64))
	if gap > continuityTolerance || gap < -continuityTolerance {
		log.Printf("anomaly: segment %s starts %s after previous end", seg.LookupID, gap)
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOne(row *sql.Row) (*activity.Segment, error) {
	seg, err := scanSegment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return seg, err
}

func scanSegment(row rowScanner) (*activity.Segment, error) {
	var (
		seg           activity.Segment
		activityType  string
		unknownReason sql.NullString
		startNanos    int64
		endNanos      sql.NullInt64
		recordedNanos int64
		stepCount     sql.NullInt64
		stepDistance  sql.NullFloat64
	)
	err := row.Scan(
		&seg.LookupID,
		&seg.SessionID,
		&seg.DeviceID,
		&activityType,
		&unknownReason,
		&startNanos,
		&endNanos,
		&recordedNanos,
		&stepCount,
		&stepDistance,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan segment: %w", err)
	}

	seg.Type = activity.Type(activityType)
	if unknownReason.Valid {
		seg.UnknownReason = activity.UnknownReason(unknownReason.String)
	}
	seg.StartTime = time.Unix(0, startNanos)
	if endNanos.Valid {
		seg.EndTime = time.Unix(0, endNanos.Int64)
	}
	seg.RecordedAt = time.Unix(0, recordedNanos)
	if stepCount.Valid {
		seg.StepCount = &stepCount.Int64
	}
	if stepDistance.Valid {
		seg.StepDistance = &stepDistance.Float64
	}
	return &seg, nil
}

func nullReason(r activity.UnknownReason) any {
	if r == "" {
		return nil
	}
	return string(r)
}

func nullNanos(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UnixNano()
}
