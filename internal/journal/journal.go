// Package journal keeps a durable SQLite record of every plate emission.
// The daemon restores recent emissions from it at startup so a restart does
// not re-emit plates inside the dedup window, and the CLI and status API
// read it for history.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"platewatch/internal/lpr"
	"platewatch/internal/pipeline"
)

// Entry is one journaled emission.
type Entry struct {
	ID             string    `json:"id"`
	CameraID       string    `json:"camera_id"`
	Plate          string    `json:"plate"`
	PlateRaw       string    `json:"plate_raw"`
	DetConfidence  float64   `json:"det_confidence"`
	OCRConfidence  float64   `json:"ocr_confidence"`
	CombinedScore  float64   `json:"combined_score"`
	HighConfidence bool      `json:"high_confidence"`
	ScorePath      string    `json:"score_path"`
	ConfirmedBy    string    `json:"confirmed_by"`
	StatusCode     int       `json:"status_code"`
	DeliveryError  string    `json:"delivery_error,omitempty"`
	Throttled      bool      `json:"throttled"`
	FrameSeq       uint64    `json:"frame_seq"`
	DetectionPath  string    `json:"detection_path,omitempty"`
	FullFramePath  string    `json:"full_frame_path,omitempty"`
	PayloadJSON    string    `json:"-"`
	DecidedAt      time.Time `json:"decided_at"`
}

// Delivered reports whether the backend accepted the event.
func (e Entry) Delivered() bool {
	return e.DeliveryError == "" && e.StatusCode >= 200 && e.StatusCode < 300
}

// ListOptions filters List.
type ListOptions struct {
	Limit    int
	Plate    string
	CameraID string
}

const (
	defaultListLimit = 50
	maxListLimit     = 1000
)

// Journal manages emission persistence backed by SQLite.
type Journal struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the journal database at path.
func Open(path string) (*Journal, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("journal path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure journal directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	j := &Journal{db: db, path: path}
	if err := j.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

// Path returns the database file path.
func (j *Journal) Path() string { return j.path }

// Close closes the underlying database connection.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Record journals one pipeline emission. It satisfies pipeline.Recorder.
func (j *Journal) Record(ctx context.Context, em pipeline.Emission) error {
	entry := Entry{
		ID:             uuid.NewString(),
		CameraID:       em.Event.CameraID,
		Plate:          em.Event.Plate,
		PlateRaw:       em.Event.PlateRaw,
		DetConfidence:  em.Event.DetConfidence,
		OCRConfidence:  em.Event.OCRConfidence,
		CombinedScore:  em.Score.Combined,
		HighConfidence: em.Score.High,
		ScorePath:      string(em.Score.Path),
		ConfirmedBy:    string(em.ConfirmedBy),
		StatusCode:     em.StatusCode,
		Throttled:      em.Throttled,
		FrameSeq:       em.FrameSeq,
		DetectionPath:  em.Event.DetectionPath,
		FullFramePath:  em.Event.FullFramePath,
		DecidedAt:      em.DecidedAt,
	}
	if em.DeliveryErr != nil {
		entry.DeliveryError = em.DeliveryErr.Error()
	}
	payload := em.Event
	payload.Meta.SnapshotJPEGB64 = ""
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	entry.PayloadJSON = string(data)
	return j.Insert(ctx, entry)
}

// Insert stores entry, assigning an id when it has none.
func (j *Journal) Insert(ctx context.Context, entry Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.DecidedAt.IsZero() {
		entry.DecidedAt = time.Now()
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO emissions (
            id, camera_id, plate, plate_raw, det_confidence, ocr_confidence,
            combined_score, high_confidence, score_path, confirmed_by, status_code,
            delivery_error, throttled, frame_seq, detection_path, full_frame_path,
            payload_json, decided_at_ms
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.CameraID,
		entry.Plate,
		nullableString(entry.PlateRaw),
		entry.DetConfidence,
		entry.OCRConfidence,
		entry.CombinedScore,
		boolToInt(entry.HighConfidence),
		nullableString(entry.ScorePath),
		nullableString(entry.ConfirmedBy),
		entry.StatusCode,
		nullableString(entry.DeliveryError),
		boolToInt(entry.Throttled),
		int64(entry.FrameSeq),
		nullableString(entry.DetectionPath),
		nullableString(entry.FullFramePath),
		nullableString(entry.PayloadJSON),
		entry.DecidedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert emission: %w", err)
	}
	return nil
}

const entryColumns = "id, camera_id, plate, plate_raw, det_confidence, ocr_confidence, combined_score, high_confidence, score_path, confirmed_by, status_code, delivery_error, throttled, frame_seq, detection_path, full_frame_path, payload_json, decided_at_ms"

// List returns the newest entries first.
func (j *Journal) List(ctx context.Context, opts ListOptions) ([]Entry, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	limit = min(limit, maxListLimit)

	var (
		where []string
		args  []any
	)
	if plate := lpr.NormalizePlate(opts.Plate); plate != "" {
		where = append(where, "plate = ?")
		args = append(args, plate)
	}
	if camera := strings.TrimSpace(opts.CameraID); camera != "" {
		where = append(where, "camera_id = ?")
		args = append(args, camera)
	}
	query := `SELECT ` + entryColumns + ` FROM emissions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY decided_at_ms DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list emissions: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate emissions: %w", err)
	}
	return entries, nil
}

// RecentEmissions returns the newest delivered emission time per plate for
// cameraID at or after since. Failed deliveries are left out so a restart
// does not suppress a plate the backend never received.
func (j *Journal) RecentEmissions(ctx context.Context, cameraID string, since time.Time) (map[string]time.Time, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT plate, MAX(decided_at_ms) FROM emissions
         WHERE camera_id = ? AND decided_at_ms >= ?
           AND delivery_error IS NULL AND status_code BETWEEN 200 AND 299
         GROUP BY plate`,
		cameraID, since.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("recent emissions: %w", err)
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var (
			plate string
			ms    int64
		)
		if err := rows.Scan(&plate, &ms); err != nil {
			return nil, fmt.Errorf("scan recent emission: %w", err)
		}
		out[plate] = time.UnixMilli(ms)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent emissions: %w", err)
	}
	return out, nil
}

// Prune deletes entries decided before cutoff and returns how many were removed.
func (j *Journal) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := j.db.ExecContext(ctx, "DELETE FROM emissions WHERE decided_at_ms < ?", cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune emissions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune rows affected: %w", err)
	}
	return n, nil
}

// Count returns the number of journaled emissions.
func (j *Journal) Count(ctx context.Context) (int, error) {
	var n int
	if err := j.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM emissions").Scan(&n); err != nil {
		return 0, fmt.Errorf("count emissions: %w", err)
	}
	return n, nil
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (Entry, error) {
	var (
		entry         Entry
		plateRaw      sql.NullString
		scorePath     sql.NullString
		confirmedBy   sql.NullString
		deliveryError sql.NullString
		detectionPath sql.NullString
		fullFramePath sql.NullString
		payload       sql.NullString
		high          int
		throttled     int
		frameSeq      int64
		decidedMS     int64
	)
	if err := scanner.Scan(
		&entry.ID,
		&entry.CameraID,
		&entry.Plate,
		&plateRaw,
		&entry.DetConfidence,
		&entry.OCRConfidence,
		&entry.CombinedScore,
		&high,
		&scorePath,
		&confirmedBy,
		&entry.StatusCode,
		&deliveryError,
		&throttled,
		&frameSeq,
		&detectionPath,
		&fullFramePath,
		&payload,
		&decidedMS,
	); err != nil {
		return Entry{}, fmt.Errorf("scan emission: %w", err)
	}
	entry.PlateRaw = plateRaw.String
	entry.ScorePath = scorePath.String
	entry.ConfirmedBy = confirmedBy.String
	entry.DeliveryError = deliveryError.String
	entry.DetectionPath = detectionPath.String
	entry.FullFramePath = fullFramePath.String
	entry.PayloadJSON = payload.String
	entry.HighConfidence = high != 0
	entry.Throttled = throttled != 0
	entry.FrameSeq = uint64(frameSeq)
	entry.DecidedAt = time.UnixMilli(decidedMS)
	return entry, nil
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
