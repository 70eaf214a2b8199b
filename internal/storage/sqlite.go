package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

type SQLiteStorage struct {
	db *sql.DB
}

func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStorage{db: db}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *SQLiteStorage) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS videos (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		year INTEGER NOT NULL DEFAULT 0,
		rating TEXT NOT NULL DEFAULT '',
		duration INTEGER NOT NULL DEFAULT 0,
		src_uuid TEXT NOT NULL DEFAULT '',
		poster_uuid TEXT NOT NULL DEFAULT '',
		published BOOLEAN NOT NULL DEFAULT FALSE,
		categories TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_videos_published ON videos(published);
	CREATE INDEX IF NOT EXISTS idx_videos_title ON videos(title);

	CREATE TABLE IF NOT EXISTS watchlist (
		user_email TEXT NOT NULL,
		video_id INTEGER NOT NULL REFERENCES videos(id) ON DELETE CASCADE,
		added_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (user_email, video_id)
	);

	CREATE INDEX IF NOT EXISTS idx_watchlist_added ON watchlist(user_email, added_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func (s *SQLiteStorage) Ping() error {
	return s.db.Ping()
}

const videoColumns = `v.id, v.title, v.description, v.year, v.rating, v.duration,
	v.src_uuid, v.poster_uuid, v.published, v.categories, v.created_at, v.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVideo(row rowScanner) (*Video, error) {
	var v Video
	var categories string
	if err := row.Scan(
		&v.ID, &v.Title, &v.Description, &v.Year, &v.Rating, &v.Duration,
		&v.SrcUUID, &v.PosterUUID, &v.Published, &categories,
		&v.CreatedAt, &v.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(categories), &v.Categories); err != nil {
		return nil, err
	}
	if v.Categories == nil {
		v.Categories = []string{}
	}
	return &v, nil
}

func scanVideos(rows *sql.Rows) ([]Video, error) {
	defer rows.Close()

	var videos []Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, *v)
	}
	return videos, rows.Err()
}

func encodeCategories(c []string) (string, error) {
	if c == nil {
		c = []string{}
	}
	b, err := json.Marshal(c)
	return string(b), err
}

// Videos

func (s *SQLiteStorage) CreateVideo(v *Video) error {
	categories, err := encodeCategories(v.Categories)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	res, err := s.db.Exec(`
		INSERT INTO videos (
			title, description, year, rating, duration,
			src_uuid, poster_uuid, published, categories, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		v.Title, v.Description, v.Year, v.Rating, v.Duration,
		v.SrcUUID, v.PosterUUID, v.Published, categories, now, now,
	)
	if err != nil {
		return err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	v.ID = id
	v.CreatedAt = now
	v.UpdatedAt = now
	return nil
}

// UpdateVideo replaces every editable field of the video with v.ID.
func (s *SQLiteStorage) UpdateVideo(v *Video) error {
	categories, err := encodeCategories(v.Categories)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	res, err := s.db.Exec(`
		UPDATE videos SET
			title = ?,
			description = ?,
			year = ?,
			rating = ?,
			duration = ?,
			src_uuid = ?,
			poster_uuid = ?,
			published = ?,
			categories = ?,
			updated_at = ?
		WHERE id = ?
	`,
		v.Title, v.Description, v.Year, v.Rating, v.Duration,
		v.SrcUUID, v.PosterUUID, v.Published, categories, now, v.ID,
	)
	if err != nil {
		return err
	}
	if err := expectOneRow(res); err != nil {
		return err
	}
	v.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) GetVideo(id int64) (*Video, error) {
	row := s.db.QueryRow(`SELECT `+videoColumns+` FROM videos v WHERE v.id = ?`, id)
	v, err := scanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (s *SQLiteStorage) DeleteVideo(id int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM watchlist WHERE video_id = ?", id); err != nil {
		return err
	}
	res, err := tx.Exec("DELETE FROM videos WHERE id = ?", id)
	if err != nil {
		return err
	}
	if err := expectOneRow(res); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStorage) SetPublished(id int64, published bool) error {
	res, err := s.db.Exec(
		"UPDATE videos SET published = ?, updated_at = ? WHERE id = ?",
		published, time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

// SearchVideos returns one page ordered by id. Search matches title or
// description case-insensitively.
func (s *SQLiteStorage) SearchVideos(q VideoQuery) (Page[Video], error) {
	page, size := normalizePage(q.Page, q.Size)

	where, args := videoFilter(q.Search, q.PublishedOnly)

	var total int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM videos v`+where, args...).Scan(&total); err != nil {
		return Page[Video]{}, err
	}

	rows, err := s.db.Query(
		`SELECT `+videoColumns+` FROM videos v`+where+` ORDER BY v.id LIMIT ? OFFSET ?`,
		append(args, size, page*size)...,
	)
	if err != nil {
		return Page[Video]{}, err
	}
	videos, err := scanVideos(rows)
	if err != nil {
		return Page[Video]{}, err
	}

	return newPage(videos, page, size, total), nil
}

func videoFilter(search string, publishedOnly bool) (string, []any) {
	var conds []string
	var args []any

	if publishedOnly {
		conds = append(conds, "v.published = TRUE")
	}
	if search = strings.TrimSpace(search); search != "" {
		pattern := likePattern(search)
		conds = append(conds, `(lower(v.title) LIKE ? ESCAPE '\' OR lower(v.description) LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(s)) + "%"
}

func (s *SQLiteStorage) Stats() (*VideoStats, error) {
	var st VideoStats
	err := s.db.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN published THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(duration), 0)
		FROM videos
	`).Scan(&st.TotalVideos, &st.PublishedVideos, &st.TotalDuration)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// FeaturedVideos returns up to limit random published videos.
func (s *SQLiteStorage) FeaturedVideos(limit int) ([]Video, error) {
	rows, err := s.db.Query(
		`SELECT `+videoColumns+` FROM videos v WHERE v.published = TRUE ORDER BY RANDOM() LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	return scanVideos(rows)
}

// Watchlist

// AddToWatchlist is idempotent. Unknown videos return ErrNotFound.
func (s *SQLiteStorage) AddToWatchlist(email string, videoID int64) error {
	if _, err := s.GetVideo(videoID); err != nil {
		return err
	}
	_, err := s.db.Exec(`
		INSERT INTO watchlist (user_email, video_id, added_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_email, video_id) DO NOTHING
	`, email, videoID, time.Now().UTC())
	return err
}

func (s *SQLiteStorage) RemoveFromWatchlist(email string, videoID int64) error {
	if _, err := s.GetVideo(videoID); err != nil {
		return err
	}
	_, err := s.db.Exec("DELETE FROM watchlist WHERE user_email = ? AND video_id = ?", email, videoID)
	return err
}

// Watchlist returns the user's videos, most recently added first.
func (s *SQLiteStorage) Watchlist(email, search string, page, size int) (Page[Video], error) {
	page, size = normalizePage(page, size)

	where, args := videoFilter(search, false)
	if where == "" {
		where = " WHERE w.user_email = ?"
	} else {
		where += " AND w.user_email = ?"
	}
	args = append(args, email)

	const from = ` FROM watchlist w JOIN videos v ON v.id = w.video_id`

	var total int64
	if err := s.db.QueryRow(`SELECT COUNT(*)`+from+where, args...).Scan(&total); err != nil {
		return Page[Video]{}, err
	}

	rows, err := s.db.Query(
		`SELECT `+videoColumns+from+where+` ORDER BY w.added_at DESC, v.id DESC LIMIT ? OFFSET ?`,
		append(args, size, page*size)...,
	)
	if err != nil {
		return Page[Video]{}, err
	}
	videos, err := scanVideos(rows)
	if err != nil {
		return Page[Video]{}, err
	}
	for i := range videos {
		videos[i].IsInWatchlist = true
	}

	return newPage(videos, page, size, total), nil
}

// WatchlistIDs reports which of ids are on the user's watchlist.
func (s *SQLiteStorage) WatchlistIDs(email string, ids []int64) (map[int64]bool, error) {
	found := make(map[int64]bool)
	if len(ids) == 0 {
		return found, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+1)
	args = append(args, email)
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := s.db.Query(
		`SELECT video_id FROM watchlist WHERE user_email = ? AND video_id IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		found[id] = true
	}
	return found, rows.Err()
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
