// Package handler exposes the attendance system over HTTP.
//
// The API is consumed by the embedded board pages and by curl-wielding
// admins: user registration, manual login/logout, the wildcard sweep,
// hour totals (JSON or CSV) and the scanner status. Errors are JSON
// {"error", "details"} bodies; the soft inconsistencies of the
// transition protocol (already logged in, not logged in) come back as
// 409s so the UI can show a warning rather than a failure.
package handler
