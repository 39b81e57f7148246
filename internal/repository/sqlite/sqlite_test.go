package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"testing"
	"time"

	"adsum/internal/domain"
)

// ============================================================================
// Test Helpers
// ============================================================================

// newTestRepo creates an in-memory SQLite repository for testing
func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test repository: %v", err)
	}
	t.Cleanup(func() {
		repo.Close()
	})
	return repo
}

// seedUser inserts a user directly, failing the test on error
func seedUser(t *testing.T, repo *Repository, id, name, mac string) *domain.User {
	t.Helper()
	user := &domain.User{
		ID:        id,
		Name:      name,
		Role:      domain.RoleStudent,
		MAC:       mac,
		CreatedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	assertNoError(t, repo.InsertUser(context.Background(), user))
	return user
}

// assertNoError fails the test if err is not nil
func assertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// assertEqual fails the test if expected != actual
func assertEqual(t *testing.T, expected, actual interface{}) {
	t.Helper()
	if !reflect.DeepEqual(expected, actual) {
		t.Fatalf("expected %v, got %v", expected, actual)
	}
}

// assertNotNil fails the test if value is nil
func assertNotNil(t *testing.T, value interface{}) {
	t.Helper()
	if value == nil || reflect.ValueOf(value).IsNil() {
		t.Fatalf("expected non-nil value")
	}
}

// assertNil fails the test if value is not nil
func assertNil(t *testing.T, value interface{}) {
	t.Helper()
	if value != nil && !reflect.ValueOf(value).IsNil() {
		t.Fatalf("expected nil value, got %v", value)
	}
}

// ============================================================================
// Helper Function Tests
// ============================================================================

func TestUnixTimeRoundTrip(t *testing.T) {
	at := time.Date(2025, 3, 1, 18, 30, 0, 0, time.UTC)
	back := unixToTime(timeToUnix(at))
	if !back.Equal(at) {
		t.Errorf("expected %v, got %v", at, back)
	}
}

func TestNullToTimePtr(t *testing.T) {
	t.Run("null is nil", func(t *testing.T) {
		assertNil(t, nullToTimePtr(sql.NullInt64{}))
	})

	t.Run("valid converts", func(t *testing.T) {
		at := time.Date(2025, 3, 1, 18, 30, 0, 0, time.UTC)
		got := nullToTimePtr(sql.NullInt64{Int64: at.Unix(), Valid: true})
		assertNotNil(t, got)
		if !got.Equal(at) {
			t.Errorf("expected %v, got %v", at, got)
		}
	})
}

func TestTimePtrToNull(t *testing.T) {
	t.Run("nil is null", func(t *testing.T) {
		assertEqual(t, sql.NullInt64{}, timePtrToNull(nil))
	})

	t.Run("value converts", func(t *testing.T) {
		at := time.Date(2025, 3, 1, 18, 30, 0, 0, time.UTC)
		assertEqual(t, sql.NullInt64{Int64: at.Unix(), Valid: true}, timePtrToNull(&at))
	})
}

// ============================================================================
// User Tests
// ============================================================================

func TestInsertUser(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	t.Run("registers and reads back", func(t *testing.T) {
		seedUser(t, repo, "u1", "Alice", "AA:BB:CC:DD:EE:01")

		users, err := repo.AllUsers(ctx)
		assertNoError(t, err)
		assertEqual(t, 1, len(users))
		assertEqual(t, "u1", users[0].ID)
		assertEqual(t, "Alice", users[0].Name)
		assertEqual(t, domain.RoleStudent, users[0].Role)
		assertEqual(t, "AA:BB:CC:DD:EE:01", users[0].MAC)
		if users[0].CreatedAt.Unix() != time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC).Unix() {
			t.Errorf("created_at did not round-trip: %v", users[0].CreatedAt)
		}
	})

	t.Run("rejects duplicate id", func(t *testing.T) {
		err := repo.InsertUser(ctx, &domain.User{
			ID: "u1", Name: "Imposter", Role: domain.RoleOther, MAC: "AA:BB:CC:DD:EE:99",
		})
		if !errors.Is(err, domain.ErrDuplicateUser) {
			t.Fatalf("expected ErrDuplicateUser, got %v", err)
		}
	})

	t.Run("rejects duplicate mac", func(t *testing.T) {
		err := repo.InsertUser(ctx, &domain.User{
			ID: "u2", Name: "Imposter", Role: domain.RoleOther, MAC: "AA:BB:CC:DD:EE:01",
		})
		if !errors.Is(err, domain.ErrDuplicateUser) {
			t.Fatalf("expected ErrDuplicateUser, got %v", err)
		}
	})
}

func TestAllUsersSorted(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	seedUser(t, repo, "u3", "Carol", "AA:BB:CC:DD:EE:03")
	seedUser(t, repo, "u1", "Alice", "AA:BB:CC:DD:EE:01")
	seedUser(t, repo, "u2", "Bob", "AA:BB:CC:DD:EE:02")

	users, err := repo.AllUsers(ctx)
	assertNoError(t, err)
	assertEqual(t, 3, len(users))
	assertEqual(t, "Alice", users[0].Name)
	assertEqual(t, "Bob", users[1].Name)
	assertEqual(t, "Carol", users[2].Name)
}

// ============================================================================
// Login Record Tests
// ============================================================================

func TestInsertLogin(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seedUser(t, repo, "u1", "Alice", "AA:BB:CC:DD:EE:01")

	at := time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC)

	t.Run("opens a record", func(t *testing.T) {
		assertNoError(t, repo.InsertLogin(ctx, "u1", at))

		rec, err := repo.LatestOpenLogin(ctx, "u1")
		assertNoError(t, err)
		assertNotNil(t, rec)
		assertEqual(t, "u1", rec.UserID)
		if !rec.LoginTime.Equal(at) {
			t.Errorf("expected login time %v, got %v", at, rec.LoginTime)
		}
		assertEqual(t, true, rec.Open())
	})

	t.Run("rejects a second open record", func(t *testing.T) {
		err := repo.InsertLogin(ctx, "u1", at.Add(time.Minute))
		if !errors.Is(err, domain.ErrAlreadyLoggedIn) {
			t.Fatalf("expected ErrAlreadyLoggedIn, got %v", err)
		}
	})

	t.Run("allows a new record after close", func(t *testing.T) {
		n, err := repo.CloseLogin(ctx, "u1", at.Add(2*time.Hour))
		assertNoError(t, err)
		assertEqual(t, int64(1), n)

		assertNoError(t, repo.InsertLogin(ctx, "u1", at.Add(3*time.Hour)))

		history, err := repo.LoginHistory(ctx, "u1")
		assertNoError(t, err)
		assertEqual(t, 2, len(history))
	})
}

func TestCloseLogin(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seedUser(t, repo, "u1", "Alice", "AA:BB:CC:DD:EE:01")

	at := time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC)

	t.Run("no open record closes nothing", func(t *testing.T) {
		n, err := repo.CloseLogin(ctx, "u1", at)
		assertNoError(t, err)
		assertEqual(t, int64(0), n)
	})

	t.Run("closes only the newest open record", func(t *testing.T) {
		// Force a duplicate-open state behind the gateway's back to
		// exercise the MAX(login_id) guard.
		_, err := repo.db.ExecContext(ctx, `
			INSERT INTO logins (user_id, login_time) VALUES (?, ?), (?, ?)
		`, "u1", at.Unix(), "u1", at.Add(time.Hour).Unix())
		assertNoError(t, err)

		n, err := repo.CloseLogin(ctx, "u1", at.Add(2*time.Hour))
		assertNoError(t, err)
		assertEqual(t, int64(1), n)

		rec, err := repo.LatestOpenLogin(ctx, "u1")
		assertNoError(t, err)
		assertNotNil(t, rec)
		if !rec.LoginTime.Equal(at) {
			t.Errorf("expected the older record to stay open, got login time %v", rec.LoginTime)
		}
	})
}

func TestCloseAllLogins(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	seedUser(t, repo, "u1", "Alice", "AA:BB:CC:DD:EE:01")
	seedUser(t, repo, "u2", "Bob", "AA:BB:CC:DD:EE:02")
	seedUser(t, repo, "u3", "Carol", "AA:BB:CC:DD:EE:03")

	at := time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC)
	end := at.Add(4 * time.Hour)

	assertNoError(t, repo.InsertLogin(ctx, "u1", at))
	assertNoError(t, repo.InsertLogin(ctx, "u2", at))
	assertNoError(t, repo.InsertLogin(ctx, "u3", at))
	_, err := repo.CloseLogin(ctx, "u3", at.Add(time.Hour))
	assertNoError(t, err)

	n, err := repo.CloseAllLogins(ctx, end)
	assertNoError(t, err)
	assertEqual(t, int64(2), n)

	open, err := repo.AllOpenLogins(ctx)
	assertNoError(t, err)
	assertEqual(t, 0, len(open))

	for _, id := range []string{"u1", "u2"} {
		history, err := repo.LoginHistory(ctx, id)
		assertNoError(t, err)
		assertEqual(t, 1, len(history))
		assertNotNil(t, history[0].LogoutTime)
		if !history[0].LogoutTime.Equal(end) {
			t.Errorf("expected logout time %v for %s, got %v", end, id, history[0].LogoutTime)
		}
	}
}

func TestLatestOpenLoginMissing(t *testing.T) {
	repo := newTestRepo(t)
	seedUser(t, repo, "u1", "Alice", "AA:BB:CC:DD:EE:01")

	rec, err := repo.LatestOpenLogin(context.Background(), "u1")
	assertNoError(t, err)
	assertNil(t, rec)
}

func TestAllOpenLogins(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	seedUser(t, repo, "u1", "Alice", "AA:BB:CC:DD:EE:01")
	seedUser(t, repo, "u2", "Bob", "AA:BB:CC:DD:EE:02")

	at := time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC)
	assertNoError(t, repo.InsertLogin(ctx, "u1", at))
	assertNoError(t, repo.InsertLogin(ctx, "u2", at))
	_, err := repo.CloseLogin(ctx, "u2", at.Add(time.Hour))
	assertNoError(t, err)

	open, err := repo.AllOpenLogins(ctx)
	assertNoError(t, err)
	assertEqual(t, 1, len(open))
	assertEqual(t, "u1", open[0].UserID)
	assertEqual(t, true, open[0].Open())
}

func TestLoginHistoryNewestFirst(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seedUser(t, repo, "u1", "Alice", "AA:BB:CC:DD:EE:01")

	at := time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC)
	assertNoError(t, repo.InsertLogin(ctx, "u1", at))
	_, err := repo.CloseLogin(ctx, "u1", at.Add(time.Hour))
	assertNoError(t, err)
	assertNoError(t, repo.InsertLogin(ctx, "u1", at.Add(2*time.Hour)))

	history, err := repo.LoginHistory(ctx, "u1")
	assertNoError(t, err)
	assertEqual(t, 2, len(history))
	assertEqual(t, true, history[0].Open())
	if !history[0].LoginTime.After(history[1].LoginTime) {
		t.Error("expected newest record first")
	}
}

// ============================================================================
// Aggregate Hours Tests
// ============================================================================

func TestAggregateHours(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	seedUser(t, repo, "u1", "Alice", "AA:BB:CC:DD:EE:01")
	seedUser(t, repo, "u2", "Bob", "AA:BB:CC:DD:EE:02")
	seedUser(t, repo, "u3", "Carol", "AA:BB:CC:DD:EE:03")

	base := time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC)
	now := base.Add(6 * time.Hour)

	// Alice: two closed sessions, 2h + 30m.
	assertNoError(t, repo.InsertLogin(ctx, "u1", base))
	_, err := repo.CloseLogin(ctx, "u1", base.Add(2*time.Hour))
	assertNoError(t, err)
	assertNoError(t, repo.InsertLogin(ctx, "u1", base.Add(3*time.Hour)))
	_, err = repo.CloseLogin(ctx, "u1", base.Add(3*time.Hour+30*time.Minute))
	assertNoError(t, err)

	// Bob: one open session, 1h old at query time.
	assertNoError(t, repo.InsertLogin(ctx, "u2", now.Add(-time.Hour)))

	totals, err := repo.AggregateHours(ctx, now)
	assertNoError(t, err)
	assertEqual(t, 3, len(totals))

	assertEqual(t, domain.UserHours{Name: "Alice", Role: domain.RoleStudent, Hours: 2.5}, totals[0])
	assertEqual(t, domain.UserHours{Name: "Bob", Role: domain.RoleStudent, Hours: 1.0}, totals[1])
	assertEqual(t, domain.UserHours{Name: "Carol", Role: domain.RoleStudent, Hours: 0}, totals[2])
}
