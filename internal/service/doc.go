// Package service implements the presence business logic for Adsum.
//
// PresenceService coordinates the session store and the persistence
// gateway: it owns the login/logout transition protocol, user
// registration, startup reconciliation and the hours report. Every
// mutation publishes an event on the EventBus so the web layer can push
// live updates.
//
// # Transition protocol
//
// A login flips the in-memory session first and then appends the durable
// login record; a logout flips first and then closes the newest open
// record. If the write fails the flip is reverted, so the store and the
// database never disagree for longer than one transition. A mutex keyed
// by MAC serializes transitions per user; transitions for different
// users run independently.
//
// # Error kinds
//
// Callers branch on the sentinel errors in the domain package
// (ErrAlreadyLoggedIn, ErrNotLoggedIn, ErrUnknownUser,
// ErrDuplicateUser). The first two are warnings by contract: the
// operation was a no-op and the system state is still consistent.
package service
