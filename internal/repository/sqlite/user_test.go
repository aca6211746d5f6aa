package sqlite

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/sakif/idevgames/internal/apperror"
	"github.com/sakif/idevgames/internal/model"
)

// =========================================================================
// USER TESTS
// =========================================================================

func TestCreateUser(t *testing.T) {
	db := newTestDB(t)

	u, err := db.CreateUser(context.Background())
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	if u.ID == 0 {
		t.Error("CreateUser() did not assign an id")
	}
	if u.PreferredName != DefaultPreferredName {
		t.Errorf("PreferredName = %q, want %q", u.PreferredName, DefaultPreferredName)
	}

	found, err := db.FindUserByID(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("FindUserByID() error = %v", err)
	}
	if found == nil || found.ID != u.ID {
		t.Errorf("FindUserByID(%d) = %+v, want the created user", u.ID, found)
	}
}

func TestFindUserByID_Absent(t *testing.T) {
	db := newTestDB(t)

	u, err := db.FindUserByID(context.Background(), 404)
	if err != nil {
		t.Fatalf("FindUserByID() error = %v, absence must not be an error", err)
	}
	if u != nil {
		t.Errorf("FindUserByID() = %+v, want nil", u)
	}
}

func TestCreateUser_ConcurrentIDsAreDistinct(t *testing.T) {
	db := newTestDB(t)

	const n = 16
	ids := make(chan int64, n)
	errs := make(chan error, n)

	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u, err := db.CreateUser(context.Background())
			if err != nil {
				errs <- err
				return
			}
			ids <- u.ID
		}()
	}
	wg.Wait()
	close(ids)
	close(errs)

	for err := range errs {
		t.Fatalf("concurrent CreateUser() error = %v", err)
	}

	seen := make(map[int64]bool)
	for id := range ids {
		if seen[id] {
			t.Errorf("id %d returned twice", id)
		}
		seen[id] = true
	}
	if len(seen) != n {
		t.Errorf("got %d distinct ids, want %d", len(seen), n)
	}
}

func TestStoreErrorOnClosedDB(t *testing.T) {
	db := newTestDB(t)
	db.Close()

	_, err := db.FindUserByID(context.Background(), 1)
	if !errors.Is(err, apperror.ErrStore) {
		t.Errorf("FindUserByID() on closed db error = %v, want ErrStore", err)
	}
}

// =========================================================================
// PROVISION TESTS
// =========================================================================

func TestProvisionUser(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	user, ext, err := db.ProvisionUser(ctx, model.ExternalIdentity{
		ExternalID: 42,
		UserID:     999, // ignored
		Login:      "ed",
	})
	if err != nil {
		t.Fatalf("ProvisionUser() error = %v", err)
	}
	if ext.UserID != user.ID {
		t.Errorf("identity linked to user %d, want %d", ext.UserID, user.ID)
	}

	linked, err := db.FindExternalIdentityByUserID(ctx, user.ID)
	if err != nil {
		t.Fatalf("FindExternalIdentityByUserID() error = %v", err)
	}
	if linked == nil || linked.ExternalID != 42 {
		t.Errorf("FindExternalIdentityByUserID() = %+v, want external id 42", linked)
	}
}

func TestProvisionUser_ExistingIdentityReusesUser(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first, _ := createTestUser(t, db, 42, "ed")

	second, ext, err := db.ProvisionUser(ctx, model.ExternalIdentity{ExternalID: 42, Login: "edward"})
	if err != nil {
		t.Fatalf("ProvisionUser() error = %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("ProvisionUser() created user %d, want existing user %d", second.ID, first.ID)
	}
	if ext.Login != "edward" {
		t.Errorf("Login = %q, want refreshed %q", ext.Login, "edward")
	}

	var users int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&users); err != nil {
		t.Fatalf("counting users: %v", err)
	}
	if users != 1 {
		t.Errorf("users = %d, want 1", users)
	}
}
