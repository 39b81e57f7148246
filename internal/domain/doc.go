// Package domain defines the core domain types for the Adsum attendance system.
//
// This package contains the entities the rest of the system moves around:
// users keyed by the hardware address of their device, the live session
// view held for each user, and the durable login records that session
// boundaries are written to.
//
// # Core Types
//
// User is the persistent identity: a stable id, display name, role, and
// the canonical MAC address linking the person to a physical device.
//
// Session is the transient per-user state (logged_in flag plus optional
// visit timestamps). It is never persisted directly; it is rebuilt from
// open login records at startup.
//
// LoginRecord is one attendance span. A nil LogoutTime marks an open
// session; at most one record per user may be open at a time.
//
// # Validation
//
// MAC addresses are normalized to uppercase colon-separated form before
// they are used as keys anywhere. User ids and roles are pattern-checked
// at the edge, before any state is mutated.
//
// The package has no dependencies beyond the standard library.
package domain
