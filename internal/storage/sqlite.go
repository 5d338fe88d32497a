// Package storage persists users, forms and the submission ledger in SQLite.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "bugspot.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Single connection: pragmas below are per-connection and :memory: is per-connection too.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting %q: %w", pragma, err)
		}
	}

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the handle for components sharing the database (the SQL pending store).
func (s *Store) DB() *sql.DB {
	return s.db
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Users ---

// CreateUser inserts u and returns it with its assigned ID.
func (s *Store) CreateUser(ctx context.Context, u User) (User, error) {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (github_id, username, email, subscription_tier, report_amount, github_installation_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.GitHubID, u.Username, u.Email, u.SubscriptionTier, u.ReportAmount, nullInt(u.InstallationID), toMillis(u.CreatedAt),
	)
	if err != nil {
		return User{}, fmt.Errorf("creating user: %w", err)
	}
	if u.ID, err = res.LastInsertId(); err != nil {
		return User{}, err
	}
	return u, nil
}

// GetUser returns a user by ID.
func (s *Store) GetUser(ctx context.Context, id int64) (User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, github_id, username, email, subscription_tier, report_amount, github_installation_id, created_at
		FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var u User
	var installation sql.NullInt64
	var createdAt int64
	err := row.Scan(&u.ID, &u.GitHubID, &u.Username, &u.Email, &u.SubscriptionTier, &u.ReportAmount, &installation, &createdAt)
	if err == sql.ErrNoRows {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	u.InstallationID = installation.Int64
	u.CreatedAt = fromMillis(createdAt)
	return u, nil
}

// IncrementReportAmount consumes one monthly report for the user.
// The increment happens in SQL so concurrent submissions never lose updates.
func (s *Store) IncrementReportAmount(ctx context.Context, userID int64) error {
	res, err := s.db.ExecContext(ctx, "UPDATE users SET report_amount = report_amount + 1 WHERE id = ?", userID)
	if err != nil {
		return fmt.Errorf("incrementing report amount: %w", err)
	}
	return requireAffected(res)
}

// ResetReportAmounts starts a new billing cycle for every user.
func (s *Store) ResetReportAmounts(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "UPDATE users SET report_amount = 0 WHERE report_amount <> 0")
	if err != nil {
		return 0, fmt.Errorf("resetting report amounts: %w", err)
	}
	return res.RowsAffected()
}

// SetInstallation records the GitHub App installation of the user with githubID.
// It reports whether a user matched.
func (s *Store) SetInstallation(ctx context.Context, githubID string, installationID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, "UPDATE users SET github_installation_id = ? WHERE github_id = ?", installationID, githubID)
	if err != nil {
		return false, fmt.Errorf("setting installation: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ClearInstallation removes the GitHub App installation of the user with githubID.
func (s *Store) ClearInstallation(ctx context.Context, githubID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "UPDATE users SET github_installation_id = NULL WHERE github_id = ?", githubID)
	if err != nil {
		return false, fmt.Errorf("clearing installation: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// --- Forms ---

// CreateForm inserts f, assigning a UUID when ID is empty.
func (s *Store) CreateForm(ctx context.Context, f Form) (Form, error) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO forms (id, user_id, name, github_repo, discord_webhook, show_issue_link, custom_prompt, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.UserID, f.Name, nullString(f.GitHubRepo), nullString(f.DiscordWebhook), f.ShowIssueLink, nullString(f.CustomPrompt), toMillis(f.CreatedAt),
	)
	if err != nil {
		return Form{}, fmt.Errorf("creating form: %w", err)
	}
	return f, nil
}

// GetFormWithOwner returns a form and its owner, or ErrNotFound.
func (s *Store) GetFormWithOwner(ctx context.Context, formID string) (FormWithOwner, error) {
	var out FormWithOwner
	var repo, webhook, prompt sql.NullString
	var installation sql.NullInt64
	var formCreated, userCreated int64

	err := s.db.QueryRowContext(ctx, `
		SELECT f.id, f.user_id, f.name, f.github_repo, f.discord_webhook, f.show_issue_link, f.custom_prompt, f.created_at,
		       u.id, u.github_id, u.username, u.email, u.subscription_tier, u.report_amount, u.github_installation_id, u.created_at
		FROM forms f INNER JOIN users u ON f.user_id = u.id
		WHERE f.id = ?`, formID,
	).Scan(
		&out.Form.ID, &out.Form.UserID, &out.Form.Name, &repo, &webhook, &out.Form.ShowIssueLink, &prompt, &formCreated,
		&out.Owner.ID, &out.Owner.GitHubID, &out.Owner.Username, &out.Owner.Email, &out.Owner.SubscriptionTier, &out.Owner.ReportAmount, &installation, &userCreated,
	)
	if err == sql.ErrNoRows {
		return FormWithOwner{}, ErrNotFound
	}
	if err != nil {
		return FormWithOwner{}, fmt.Errorf("loading form %s: %w", formID, err)
	}

	out.Form.GitHubRepo = repo.String
	out.Form.DiscordWebhook = webhook.String
	out.Form.CustomPrompt = prompt.String
	out.Form.CreatedAt = fromMillis(formCreated)
	out.Owner.InstallationID = installation.Int64
	out.Owner.CreatedAt = fromMillis(userCreated)
	return out, nil
}

// RenameRepository repoints every form on oldFullName to newFullName.
func (s *Store) RenameRepository(ctx context.Context, oldFullName, newFullName string) (int64, error) {
	res, err := s.db.ExecContext(ctx, "UPDATE forms SET github_repo = ? WHERE github_repo = ?", newFullName, oldFullName)
	if err != nil {
		return 0, fmt.Errorf("renaming repository: %w", err)
	}
	return res.RowsAffected()
}

// --- Submission ledger ---

// RecordSubmission appends a ledger entry, assigning ID and CreatedAt when unset.
func (s *Store) RecordSubmission(ctx context.Context, sub Submission) (Submission, error) {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO submitted_reports (id, form_id, issue_number, email, screenshot_key, video_key, reporter_ip, is_closed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.FormID, sub.IssueNumber, nullString(sub.Email), nullString(sub.ScreenshotKey), nullString(sub.VideoKey),
		nullString(sub.ReporterIP), sub.IsClosed, toMillis(sub.CreatedAt),
	)
	if err != nil {
		return Submission{}, fmt.Errorf("recording submission: %w", err)
	}
	return sub, nil
}

// CountSubmissionsFromIP counts ledger entries from ip created at or after since.
func (s *Store) CountSubmissionsFromIP(ctx context.Context, ip string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM submitted_reports WHERE reporter_ip = ? AND created_at >= ?",
		ip, toMillis(since),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting submissions: %w", err)
	}
	return n, nil
}

// MarkSubmissionClosed flags a ledger entry as closed on the tracker.
func (s *Store) MarkSubmissionClosed(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE submitted_reports SET is_closed = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("closing submission: %w", err)
	}
	return requireAffected(res)
}

// DeleteSubmission removes a ledger entry.
func (s *Store) DeleteSubmission(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM submitted_reports WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting submission: %w", err)
	}
	return requireAffected(res)
}

// FindSubmissions returns ledger entries of forms on repo, optionally narrowed
// to one issue number.
func (s *Store) FindSubmissions(ctx context.Context, repo string, issueNumber *int) ([]SubmissionWithForm, error) {
	query := `
		SELECT r.id, r.form_id, r.issue_number, r.email, r.screenshot_key, r.video_key, r.reporter_ip, r.is_closed, r.created_at,
		       f.github_repo, f.show_issue_link
		FROM submitted_reports r INNER JOIN forms f ON r.form_id = f.id
		WHERE f.github_repo = ?`
	args := []any{repo}
	if issueNumber != nil {
		query += " AND r.issue_number = ?"
		args = append(args, *issueNumber)
	}
	query += " ORDER BY r.created_at ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("finding submissions: %w", err)
	}
	defer rows.Close()

	var out []SubmissionWithForm
	for rows.Next() {
		var r SubmissionWithForm
		var email, screenshot, video, ip sql.NullString
		var createdAt int64
		if err := rows.Scan(&r.ID, &r.FormID, &r.IssueNumber, &email, &screenshot, &video, &ip, &r.IsClosed, &createdAt,
			&r.Repo, &r.ShowIssueLink); err != nil {
			return nil, err
		}
		r.Email = email.String
		r.ScreenshotKey = screenshot.String
		r.VideoKey = video.String
		r.ReporterIP = ip.String
		r.CreatedAt = fromMillis(createdAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// SubmissionExistsForKey reports whether any ledger entry references the media key.
func (s *Store) SubmissionExistsForKey(ctx context.Context, key string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM submitted_reports WHERE screenshot_key = ? OR video_key = ?", key, key,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking media key: %w", err)
	}
	return n > 0, nil
}

// --- helpers ---

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n int64) sql.NullInt64 {
	return sql.NullInt64{Int64: n, Valid: n != 0}
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }
