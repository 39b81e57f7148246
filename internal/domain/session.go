package domain

import "time"

// Session is the live, in-memory state of one user's attendance. The
// timestamps are pointers so that "never seen" stays distinct from any
// real instant.
type Session struct {
	LoggedIn bool `json:"logged_in"`

	// FirstSeen marks the start of the current visit. Cleared on logout.
	FirstSeen *time.Time `json:"first_seen,omitempty"`

	// LastSeen is the most recent observation of the user's device.
	// Survives logout so the board can show when someone was last around.
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

// Presence pairs a registered user with a snapshot of their session.
// This is the value handed to readers; mutations go through the store.
type Presence struct {
	User
	Session
}
