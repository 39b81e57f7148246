// Package sqlite persists the user registry and login records.
//
// The repository owns two tables: users (the registry) and logins (one
// row per attendance span, open while logout_time is NULL). Timestamps
// are stored as unix seconds so the hour aggregation stays in SQL. The
// schema is migrated in place on startup.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"adsum/internal/domain"

	_ "modernc.org/sqlite"
)

// Repository implements the persistence gateway on SQLite.
type Repository struct {
	db *sql.DB
}

// New opens (creating if needed) the database at dbPath.
func New(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite has a single writer; one pooled connection avoids busy
	// errors and keeps :memory: databases visible across calls.
	db.SetMaxOpenConns(1)

	repo := &Repository{db: db}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return repo, nil
}

func (r *Repository) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		role TEXT NOT NULL,
		mac TEXT NOT NULL UNIQUE,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS logins (
		login_id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		login_time INTEGER NOT NULL,
		logout_time INTEGER,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_logins_user ON logins(user_id);
	CREATE INDEX IF NOT EXISTS idx_logins_open ON logins(user_id) WHERE logout_time IS NULL;
	`

	_, err := r.db.Exec(schema)
	return err
}

// Close releases the database handle.
func (r *Repository) Close() error {
	return r.db.Close()
}

// InsertUser registers a new user. A taken id or MAC reports
// domain.ErrDuplicateUser.
func (r *Repository) InsertUser(ctx context.Context, user *domain.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, name, role, mac, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, user.ID, user.Name, string(user.Role), user.MAC, timeToUnix(user.CreatedAt))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: %v", domain.ErrDuplicateUser, err)
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// AllUsers returns every registered user.
func (r *Repository) AllUsers(ctx context.Context) ([]*domain.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		var row userRow
		if err := rows.Scan(row.scanArgs()...); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, row.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}

// InsertLogin opens a new login record for the user. The open-record
// invariant is enforced here as well: a second open login for the same
// user reports domain.ErrAlreadyLoggedIn without inserting.
func (r *Repository) InsertLogin(ctx context.Context, userID string, at time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var open int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM logins WHERE user_id = ? AND logout_time IS NULL
	`, userID).Scan(&open)
	if err != nil {
		return fmt.Errorf("failed to check open logins: %w", err)
	}
	if open > 0 {
		return fmt.Errorf("%w: user %s has an open login record", domain.ErrAlreadyLoggedIn, userID)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO logins (user_id, login_time) VALUES (?, ?)
	`, userID, timeToUnix(at))
	if err != nil {
		return fmt.Errorf("failed to insert login: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit login: %w", err)
	}
	return nil
}

// CloseLogin stamps the logout time on the user's most recent open
// record. The MAX(login_id) target guards against accidental
// duplicate-open states: only the newest open row is closed. Returns
// the number of records closed (0 when none were open).
func (r *Repository) CloseLogin(ctx context.Context, userID string, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE logins SET logout_time = ?
		WHERE login_id = (
			SELECT MAX(login_id) FROM logins
			WHERE user_id = ? AND logout_time IS NULL
		)
	`, timeToUnix(at), userID)
	if err != nil {
		return 0, fmt.Errorf("failed to close login: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count closed logins: %w", err)
	}
	return n, nil
}

// CloseAllLogins stamps the logout time on every open record. Returns
// the number of records closed.
func (r *Repository) CloseAllLogins(ctx context.Context, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE logins SET logout_time = ? WHERE logout_time IS NULL
	`, timeToUnix(at))
	if err != nil {
		return 0, fmt.Errorf("failed to close logins: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count closed logins: %w", err)
	}
	return n, nil
}

// LatestOpenLogin returns the user's most recent open record, or nil
// when the user has no open session.
func (r *Repository) LatestOpenLogin(ctx context.Context, userID string) (*domain.LoginRecord, error) {
	var row loginRow
	err := r.db.QueryRowContext(ctx, `
		SELECT `+loginColumns+` FROM logins
		WHERE user_id = ? AND logout_time IS NULL
		ORDER BY login_id DESC LIMIT 1
	`, userID).Scan(row.scanArgs()...)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query open login: %w", err)
	}
	return row.toDomain(), nil
}

// AllOpenLogins returns every open record, newest first per user. Used
// by startup reconciliation to rebuild the session store.
func (r *Repository) AllOpenLogins(ctx context.Context) ([]*domain.LoginRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+loginColumns+` FROM logins
		WHERE logout_time IS NULL
		ORDER BY user_id, login_id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query open logins: %w", err)
	}
	defer rows.Close()

	var records []*domain.LoginRecord
	for rows.Next() {
		var row loginRow
		if err := rows.Scan(row.scanArgs()...); err != nil {
			return nil, fmt.Errorf("failed to scan login: %w", err)
		}
		records = append(records, row.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating logins: %w", err)
	}
	return records, nil
}

// LoginHistory returns all of a user's records, newest first.
func (r *Repository) LoginHistory(ctx context.Context, userID string) ([]*domain.LoginRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+loginColumns+` FROM logins
		WHERE user_id = ?
		ORDER BY login_id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query login history: %w", err)
	}
	defer rows.Close()

	var records []*domain.LoginRecord
	for rows.Next() {
		var row loginRow
		if err := rows.Scan(row.scanArgs()...); err != nil {
			return nil, fmt.Errorf("failed to scan login: %w", err)
		}
		records = append(records, row.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating logins: %w", err)
	}
	return records, nil
}

// AggregateHours totals each user's attendance in hours: closed records
// count in full, an open record counts up to now. Users with no records
// report zero.
func (r *Repository) AggregateHours(ctx context.Context, now time.Time) ([]domain.UserHours, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT u.name, u.role,
			IFNULL(ROUND(SUM(
				CASE WHEN l.logout_time IS NOT NULL
					THEN l.logout_time - l.login_time
					ELSE ? - l.login_time
				END
			) / 3600.0, 3), 0) AS hours
		FROM users u
		LEFT JOIN logins l ON l.user_id = u.id
		GROUP BY u.id
		ORDER BY u.name
	`, timeToUnix(now))
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate hours: %w", err)
	}
	defer rows.Close()

	var totals []domain.UserHours
	for rows.Next() {
		var (
			name, role string
			hours      float64
		)
		if err := rows.Scan(&name, &role, &hours); err != nil {
			return nil, fmt.Errorf("failed to scan hours: %w", err)
		}
		totals = append(totals, domain.UserHours{
			Name:  name,
			Role:  domain.Role(role),
			Hours: hours,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating hours: %w", err)
	}
	return totals, nil
}
