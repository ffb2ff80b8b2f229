package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
	"unicode/utf8"

	"redditscheduler/internal/constants"
	"redditscheduler/internal/migrations"
	"redditscheduler/internal/models"
	"redditscheduler/internal/security"
	"redditscheduler/internal/timeutil"

	_ "github.com/mattn/go-sqlite3"
)

const createdAtLayout = "2006-01-02 15:04:05"

// Rows written before seconds were recorded use the storage layout
var createdAtLayouts = []string{createdAtLayout, timeutil.StorageLayout}

// Database is the durable store of scheduled posts. Reads run concurrently;
// writes are serialized through writeMu.
type Database struct {
	db        *sql.DB
	encryptor *encryptor
	writeMu   sync.Mutex
}

// PostCounts summarizes the store for health reporting
type PostCounts struct {
	Pending  int `json:"pending"`
	Posted   int `json:"posted"`
	Erroring int `json:"erroring"`
}

func New(dbPath string, cfg *models.DatabaseConfig) (*Database, error) {
	if len(dbPath) == 0 || dbPath[0] == '\x00' {
		return nil, fmt.Errorf("invalid database path")
	}

	if err := security.ValidateFilePath(dbPath); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}

	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	file, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to create database file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close database file: %w", err)
	}

	busyTimeout := constants.DefaultBusyTimeoutMs
	if cfg != nil && cfg.BusyTimeoutMs > 0 {
		busyTimeout = cfg.BusyTimeoutMs
	}
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=%d", dbPath, busyTimeout)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, closeOnError(db, "failed to ping database", err)
	}

	if err := migrations.RunMigrations(db); err != nil {
		return nil, closeOnError(db, "failed to apply migrations", err)
	}

	enc, err := NewEncryptor()
	if err != nil {
		return nil, closeOnError(db, "failed to initialize encryptor", err)
	}

	return &Database{db: db, encryptor: enc}, nil
}

// truncateUTF8 cuts s to at most n bytes on a rune boundary
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func closeOnError(db *sql.DB, msg string, err error) error {
	if closeErr := db.Close(); closeErr != nil {
		return fmt.Errorf("%s: %w (close error: %v)", msg, err, closeErr)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func (d *Database) Close() error {
	return d.db.Close()
}

// Ping checks that the database is reachable
func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// InsertPost stores a new pending post and returns its id. CreatedAt is set
// to now when zero.
func (d *Database) InsertPost(ctx context.Context, post *models.ScheduledPost) (int64, error) {
	content, err := d.encryptor.Encrypt(post.Content)
	if err != nil {
		return 0, fmt.Errorf("failed to encrypt content: %w", err)
	}

	createdAt := post.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	createdAt = createdAt.UTC()

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	id, err := retryableDBOperation(ctx, func() (int64, error) {
		res, err := d.db.ExecContext(ctx, InsertPostQuery,
			post.Destination,
			post.Title,
			post.Kind.String(),
			content,
			timeutil.FormatStorage(post.ScheduledAt),
			createdAt.Format(createdAtLayout),
			post.FlairID,
			post.FlairText,
			post.DestinationKind.String(),
		)
		if err != nil {
			return 0, err
		}
		return res.LastInsertId()
	}, "insert post")
	if err != nil {
		return 0, fmt.Errorf("failed to insert post: %w", err)
	}

	post.ID = id
	post.Status = models.StatusPending
	post.LastError = nil
	post.CreatedAt = createdAt.Truncate(time.Second)
	return id, nil
}

// ListPosts returns every post ordered by scheduled time
func (d *Database) ListPosts(ctx context.Context) ([]models.ScheduledPost, error) {
	return d.queryPosts(ctx, SelectAllPostsQuery)
}

// FindDuePosts returns pending posts scheduled at or before now
func (d *Database) FindDuePosts(ctx context.Context, now time.Time) ([]models.ScheduledPost, error) {
	return d.queryPosts(ctx, SelectDuePostsQuery, timeutil.FormatStorage(now))
}

// GetPost returns the post with id, or nil when it does not exist
func (d *Database) GetPost(ctx context.Context, id int64) (*models.ScheduledPost, error) {
	post, err := d.scanPost(d.db.QueryRowContext(ctx, SelectPostByIDQuery, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get post %d: %w", id, err)
	}
	return post, nil
}

// MarkPosted records a successful submission. Missing rows are ignored.
func (d *Database) MarkPosted(ctx context.Context, id int64) error {
	return d.exec(ctx, "mark posted", MarkPostedQuery, id)
}

// MarkFailed records the latest submission error and leaves the post pending.
// Missing rows are ignored.
func (d *Database) MarkFailed(ctx context.Context, id int64, message string) error {
	message = truncateUTF8(message, constants.DefaultMaxErrorTextLength)
	stored, err := d.encryptor.Encrypt(message)
	if err != nil {
		return fmt.Errorf("failed to encrypt error message: %w", err)
	}
	return d.exec(ctx, "mark failed", MarkFailedQuery, stored, id)
}

// DeletePost removes a post. Deleting a missing id is not an error.
func (d *Database) DeletePost(ctx context.Context, id int64) error {
	return d.exec(ctx, "delete post", DeletePostQuery, id)
}

// CountPosts returns pending, posted and erroring totals
func (d *Database) CountPosts(ctx context.Context) (PostCounts, error) {
	var counts PostCounts
	err := d.db.QueryRowContext(ctx, CountPostsByStatusQuery).Scan(&counts.Pending, &counts.Posted, &counts.Erroring)
	if err != nil {
		return counts, fmt.Errorf("failed to count posts: %w", err)
	}
	return counts, nil
}

func (d *Database) exec(ctx context.Context, name, query string, args ...interface{}) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	err := retryableDBOperationNoReturn(ctx, func() error {
		_, err := d.db.ExecContext(ctx, query, args...)
		return err
	}, name)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", name, err)
	}
	return nil
}

func (d *Database) queryPosts(ctx context.Context, query string, args ...interface{}) ([]models.ScheduledPost, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query posts: %w", err)
	}
	defer rows.Close()

	var posts []models.ScheduledPost
	for rows.Next() {
		post, err := d.scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, *post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate posts: %w", err)
	}
	return posts, nil
}

// parseCreatedAt returns the zero time for values in no known layout
func parseCreatedAt(s string) time.Time {
	for _, layout := range createdAtLayouts {
		if ts, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return ts
		}
	}
	return time.Time{}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (d *Database) scanPost(row rowScanner) (*models.ScheduledPost, error) {
	var (
		post            models.ScheduledPost
		postType        string
		postTime        string
		posted          sql.NullInt64
		lastError       sql.NullString
		createdAt       sql.NullString
		flairID         sql.NullString
		flairText       sql.NullString
		destinationType sql.NullString
	)

	err := row.Scan(
		&post.ID,
		&post.Destination,
		&post.Title,
		&postType,
		&post.Content,
		&postTime,
		&posted,
		&lastError,
		&createdAt,
		&flairID,
		&flairText,
		&destinationType,
	)
	if err != nil {
		return nil, err
	}

	if post.Kind, err = models.ParsePostKind(postType); err != nil {
		return nil, fmt.Errorf("post %d: %w", post.ID, err)
	}
	if post.DestinationKind, err = models.ParseDestinationKind(destinationType.String); err != nil {
		return nil, fmt.Errorf("post %d: %w", post.ID, err)
	}
	if post.ScheduledAt, err = timeutil.ParseStorage(postTime); err != nil {
		return nil, fmt.Errorf("post %d: %w", post.ID, err)
	}
	if createdAt.Valid && createdAt.String != "" {
		post.CreatedAt = parseCreatedAt(createdAt.String)
	}

	if posted.Valid && posted.Int64 != 0 {
		post.Status = models.StatusPosted
	}

	if post.Content, err = d.encryptor.Decrypt(post.Content); err != nil {
		return nil, fmt.Errorf("post %d content: %w", post.ID, err)
	}
	if lastError.Valid {
		msg, err := d.encryptor.Decrypt(lastError.String)
		if err != nil {
			return nil, fmt.Errorf("post %d last_error: %w", post.ID, err)
		}
		post.LastError = &msg
	}
	if flairID.Valid {
		post.FlairID = &flairID.String
	}
	if flairText.Valid {
		post.FlairText = &flairText.String
	}

	return &post, nil
}
