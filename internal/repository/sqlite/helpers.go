package sqlite

import (
	"database/sql"
	"time"

	"adsum/internal/domain"
)

// ============================================================================
// Unix Time Conversion Helpers
// ============================================================================

// timeToUnix converts a time.Time to stored unix seconds
func timeToUnix(t time.Time) int64 {
	return t.Unix()
}

// unixToTime converts stored unix seconds to a time.Time
func unixToTime(s int64) time.Time {
	return time.Unix(s, 0)
}

// nullToTimePtr converts a nullable unix-seconds column to *time.Time
func nullToTimePtr(ni sql.NullInt64) *time.Time {
	if ni.Valid {
		t := unixToTime(ni.Int64)
		return &t
	}
	return nil
}

// timePtrToNull converts *time.Time to a nullable unix-seconds value
func timePtrToNull(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: timeToUnix(*t), Valid: true}
}

// ============================================================================
// User Row Scanner
// ============================================================================

// userRow holds all columns from a user query for scanning
type userRow struct {
	ID        string
	Name      string
	Role      string
	MAC       string
	CreatedAt int64
}

// scanArgs returns pointers to all fields for sql.Scan()
// MUST match userColumns order exactly
func (r *userRow) scanArgs() []interface{} {
	return []interface{}{
		&r.ID,        // 1
		&r.Name,      // 2
		&r.Role,      // 3
		&r.MAC,       // 4
		&r.CreatedAt, // 5
	}
}

// toDomain converts the scanned row to a domain.User
func (r *userRow) toDomain() *domain.User {
	return &domain.User{
		ID:        r.ID,
		Name:      r.Name,
		Role:      domain.Role(r.Role),
		MAC:       r.MAC,
		CreatedAt: unixToTime(r.CreatedAt),
	}
}

// userColumns is the SELECT column list for user queries
const userColumns = `id, name, role, mac, created_at`

// ============================================================================
// Login Row Scanner
// ============================================================================

// loginRow holds all columns from a login query for scanning
type loginRow struct {
	LoginID    int64
	UserID     string
	LoginTime  int64
	LogoutTime sql.NullInt64
}

// scanArgs returns pointers to all fields for sql.Scan()
// MUST match loginColumns order exactly
func (r *loginRow) scanArgs() []interface{} {
	return []interface{}{
		&r.LoginID,    // 1
		&r.UserID,     // 2
		&r.LoginTime,  // 3
		&r.LogoutTime, // 4
	}
}

// toDomain converts the scanned row to a domain.LoginRecord
func (r *loginRow) toDomain() *domain.LoginRecord {
	return &domain.LoginRecord{
		LoginID:    r.LoginID,
		UserID:     r.UserID,
		LoginTime:  unixToTime(r.LoginTime),
		LogoutTime: nullToTimePtr(r.LogoutTime),
	}
}

// loginColumns is the SELECT column list for login queries
const loginColumns = `login_id, user_id, login_time, logout_time`
