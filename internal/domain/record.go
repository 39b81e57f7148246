package domain

import "time"

// LoginRecord is one durable attendance span. A nil LogoutTime marks an
// open session.
type LoginRecord struct {
	LoginID    int64      `json:"login_id"`
	UserID     string     `json:"user_id"`
	LoginTime  time.Time  `json:"login_time"`
	LogoutTime *time.Time `json:"logout_time,omitempty"`
}

// Open reports whether the record has no logout recorded yet.
func (r *LoginRecord) Open() bool {
	return r.LogoutTime == nil
}

// UserHours is one row of the attendance report: total hours for a user
// across closed records plus any in-progress session.
type UserHours struct {
	Name  string  `json:"name"`
	Role  Role    `json:"role"`
	Hours float64 `json:"hours"`
}
