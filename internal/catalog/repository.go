package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Repository persists feeds, layouts, projects and jobs. Getters return
// nil, nil when the record does not exist; Delete reports whether a row
// was removed.
type Repository interface {
	CreateFeed(ctx context.Context, feed *Feed) error
	GetFeed(ctx context.Context, id string) (*Feed, error)
	ListFeeds(ctx context.Context) ([]*Feed, error)
	UpdateFeed(ctx context.Context, feed *Feed) error
	DeleteFeed(ctx context.Context, id string) (bool, error)

	CreateLayout(ctx context.Context, layout *Layout) error
	GetLayout(ctx context.Context, id string) (*Layout, error)
	ListLayouts(ctx context.Context) ([]*Layout, error)
	UpdateLayout(ctx context.Context, layout *Layout) error
	DeleteLayout(ctx context.Context, id string) (bool, error)

	CreateProject(ctx context.Context, project *Project) error
	GetProject(ctx context.Context, id string) (*Project, error)
	ListProjects(ctx context.Context) ([]*Project, error)
	UpdateProject(ctx context.Context, project *Project) error
	DeleteProject(ctx context.Context, id string) (bool, error)

	CreateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)
	ListJobs(ctx context.Context, limit int) ([]*Job, error)
	ListQueuedJobs(ctx context.Context) ([]*Job, error)
	ClaimJob(ctx context.Context, id string) (bool, error)
	FinishJob(ctx context.Context, id, status, result, errMsg string) (bool, error)
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

const feedColumns = `id, name, source_url, file_path, size_bytes, duration_seconds,
	trim_start, trim_end, offset_seconds, volume, status, created_at, updated_at`

func (r *SQLiteRepository) CreateFeed(ctx context.Context, f *Feed) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO feeds (`+feedColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, f.ID, f.Name, nullString(f.SourceURL), nullString(f.FilePath), f.SizeBytes,
		nullFloat(f.DurationSeconds), nullFloat(f.TrimStart), nullFloat(f.TrimEnd),
		f.OffsetSeconds, f.Volume, f.Status, formatTime(f.CreatedAt), formatTime(f.UpdatedAt))
	return err
}

func (r *SQLiteRepository) GetFeed(ctx context.Context, id string) (*Feed, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+feedColumns+` FROM feeds WHERE id = ?`, id)
	f, err := scanFeed(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return f, err
}

func (r *SQLiteRepository) ListFeeds(ctx context.Context) ([]*Feed, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+feedColumns+` FROM feeds ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	feeds := []*Feed{}
	for rows.Next() {
		f, err := scanFeed(rows)
		if err != nil {
			return nil, err
		}
		feeds = append(feeds, f)
	}
	return feeds, rows.Err()
}

func (r *SQLiteRepository) UpdateFeed(ctx context.Context, f *Feed) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE feeds SET name = ?, source_url = ?, file_path = ?, size_bytes = ?,
			duration_seconds = ?, trim_start = ?, trim_end = ?, offset_seconds = ?,
			volume = ?, status = ?, updated_at = ?
		WHERE id = ?
	`, f.Name, nullString(f.SourceURL), nullString(f.FilePath), f.SizeBytes,
		nullFloat(f.DurationSeconds), nullFloat(f.TrimStart), nullFloat(f.TrimEnd),
		f.OffsetSeconds, f.Volume, f.Status, formatTime(f.UpdatedAt), f.ID)
	return err
}

func (r *SQLiteRepository) DeleteFeed(ctx context.Context, id string) (bool, error) {
	return r.deleteByID(ctx, "DELETE FROM feeds WHERE id = ?", id)
}

func scanFeed(s scanner) (*Feed, error) {
	var f Feed
	var sourceURL, filePath sql.NullString
	var duration, trimStart, trimEnd sql.NullFloat64
	var createdAt, updatedAt string

	err := s.Scan(&f.ID, &f.Name, &sourceURL, &filePath, &f.SizeBytes, &duration,
		&trimStart, &trimEnd, &f.OffsetSeconds, &f.Volume, &f.Status, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	f.SourceURL = sourceURL.String
	f.FilePath = filePath.String
	f.DurationSeconds = floatPtr(duration)
	f.TrimStart = floatPtr(trimStart)
	f.TrimEnd = floatPtr(trimEnd)
	f.CreatedAt = parseTime(createdAt)
	f.UpdatedAt = parseTime(updatedAt)
	return &f, nil
}

func (r *SQLiteRepository) CreateLayout(ctx context.Context, l *Layout) error {
	slots, err := json.Marshal(l.Slots)
	if err != nil {
		return fmt.Errorf("encode slots: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO layouts (id, name, slots_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, l.ID, l.Name, string(slots), formatTime(l.CreatedAt), formatTime(l.UpdatedAt))
	return err
}

func (r *SQLiteRepository) GetLayout(ctx context.Context, id string) (*Layout, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, slots_json, created_at, updated_at FROM layouts WHERE id = ?
	`, id)
	l, err := scanLayout(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return l, err
}

func (r *SQLiteRepository) ListLayouts(ctx context.Context) ([]*Layout, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, slots_json, created_at, updated_at
		FROM layouts ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	layouts := []*Layout{}
	for rows.Next() {
		l, err := scanLayout(rows)
		if err != nil {
			return nil, err
		}
		layouts = append(layouts, l)
	}
	return layouts, rows.Err()
}

func (r *SQLiteRepository) UpdateLayout(ctx context.Context, l *Layout) error {
	slots, err := json.Marshal(l.Slots)
	if err != nil {
		return fmt.Errorf("encode slots: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		UPDATE layouts SET name = ?, slots_json = ?, updated_at = ? WHERE id = ?
	`, l.Name, string(slots), formatTime(l.UpdatedAt), l.ID)
	return err
}

func (r *SQLiteRepository) DeleteLayout(ctx context.Context, id string) (bool, error) {
	return r.deleteByID(ctx, "DELETE FROM layouts WHERE id = ?", id)
}

func scanLayout(s scanner) (*Layout, error) {
	var l Layout
	var slots, createdAt, updatedAt string
	if err := s.Scan(&l.ID, &l.Name, &slots, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(slots), &l.Slots); err != nil {
		return nil, fmt.Errorf("decode slots of layout %s: %w", l.ID, err)
	}
	l.CreatedAt = parseTime(createdAt)
	l.UpdatedAt = parseTime(updatedAt)
	return &l, nil
}

const projectColumns = `id, name, feed_ids_json, layout_id, master_feed_id, normalize,
	noise_reduction, format, clips_json, created_at, updated_at`

func (r *SQLiteRepository) CreateProject(ctx context.Context, p *Project) error {
	feedIDs, clips, err := encodeProjectLists(p)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO projects (`+projectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Name, feedIDs, p.LayoutID, nullString(p.Audio.MasterFeedID),
		boolToInt(p.Audio.Normalize), boolToInt(p.Audio.NoiseReduction), p.Format,
		clips, formatTime(p.CreatedAt), formatTime(p.UpdatedAt))
	return err
}

func (r *SQLiteRepository) GetProject(ctx context.Context, id string) (*Project, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (r *SQLiteRepository) ListProjects(ctx context.Context) ([]*Project, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	projects := []*Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (r *SQLiteRepository) UpdateProject(ctx context.Context, p *Project) error {
	feedIDs, clips, err := encodeProjectLists(p)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		UPDATE projects SET name = ?, feed_ids_json = ?, layout_id = ?, master_feed_id = ?,
			normalize = ?, noise_reduction = ?, format = ?, clips_json = ?, updated_at = ?
		WHERE id = ?
	`, p.Name, feedIDs, p.LayoutID, nullString(p.Audio.MasterFeedID),
		boolToInt(p.Audio.Normalize), boolToInt(p.Audio.NoiseReduction), p.Format,
		clips, formatTime(p.UpdatedAt), p.ID)
	return err
}

func encodeProjectLists(p *Project) (feedIDs, clips string, err error) {
	ids, err := json.Marshal(p.FeedIDs)
	if err != nil {
		return "", "", fmt.Errorf("encode feed ids: %w", err)
	}
	list := p.Clips
	if list == nil {
		list = []TimelineClip{}
	}
	cl, err := json.Marshal(list)
	if err != nil {
		return "", "", fmt.Errorf("encode clips: %w", err)
	}
	return string(ids), string(cl), nil
}

func (r *SQLiteRepository) DeleteProject(ctx context.Context, id string) (bool, error) {
	return r.deleteByID(ctx, "DELETE FROM projects WHERE id = ?", id)
}

func scanProject(s scanner) (*Project, error) {
	var p Project
	var feedIDs, clips, createdAt, updatedAt string
	var master sql.NullString
	var normalize, noiseReduction int

	err := s.Scan(&p.ID, &p.Name, &feedIDs, &p.LayoutID, &master, &normalize,
		&noiseReduction, &p.Format, &clips, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(feedIDs), &p.FeedIDs); err != nil {
		return nil, fmt.Errorf("decode feed ids of project %s: %w", p.ID, err)
	}
	if err := json.Unmarshal([]byte(clips), &p.Clips); err != nil {
		return nil, fmt.Errorf("decode clips of project %s: %w", p.ID, err)
	}
	if p.Clips == nil {
		p.Clips = []TimelineClip{}
	}
	p.Audio = AudioSettings{
		MasterFeedID:   master.String,
		Normalize:      normalize == 1,
		NoiseReduction: noiseReduction == 1,
	}
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

func (r *SQLiteRepository) deleteByID(ctx context.Context, query, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func timePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
