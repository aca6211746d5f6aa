package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/idevgames/internal/apperror"
	"github.com/sakif/idevgames/internal/model"
	"github.com/sakif/idevgames/internal/repository"
)

// compile-time check that *DB implements the full Identity Store
var _ repository.IdentityStore = (*DB)(nil)

// DefaultPreferredName is given to every new user until they choose one.
const DefaultPreferredName = "Bob"

// FindUserByID returns the user, or (nil, nil) if no row has that id.
func (db *DB) FindUserByID(ctx context.Context, id int64) (*model.User, error) {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	u, err := findUserByID(ctx, db.conn, id)
	if err != nil {
		return nil, apperror.Store(fmt.Sprintf("finding user %d", id), err)
	}
	return u, nil
}

func findUserByID(ctx context.Context, q querier, id int64) (*model.User, error) {
	var u model.User
	err := q.QueryRowContext(ctx,
		`SELECT id, preferred_name FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.PreferredName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts a user with the placeholder name and returns it with its
// freshly assigned id.
//
// The insert and the read of the generated id share one transaction (and so
// one connection), so two concurrent creates can never see each other's id.
func (db *DB) CreateUser(ctx context.Context) (*model.User, error) {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	var u *model.User
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		u, err = createUser(ctx, tx)
		return err
	})
	if err != nil {
		return nil, apperror.Store("creating user", err)
	}
	return u, nil
}

func createUser(ctx context.Context, tx *sql.Tx) (*model.User, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO users (preferred_name) VALUES (?)`, DefaultPreferredName)
	if err != nil {
		return nil, fmt.Errorf("inserting user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading generated user id: %w", err)
	}
	u, err := findUserByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("user %d vanished inside its own transaction", id)
	}
	return u, nil
}

// ProvisionUser creates a User and links ext to it in one transaction.
//
// If an identity with ext.ExternalID already exists (the person renamed
// themselves on GitHub since we last saw them), no new user is created: the
// existing identity is refreshed and its user returned.
func (db *DB) ProvisionUser(ctx context.Context, ext model.ExternalIdentity) (*model.User, *model.ExternalIdentity, error) {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	var (
		user   *model.User
		linked *model.ExternalIdentity
	)
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		existing, err := findExternalIdentity(ctx, tx, `external_id = ?`, ext.ExternalID)
		if err != nil {
			return err
		}

		if existing != nil {
			ext.UserID = existing.UserID
			user, err = findUserByID(ctx, tx, existing.UserID)
			if err != nil {
				return err
			}
			if user == nil {
				return fmt.Errorf("external identity %d points at missing user %d", existing.ExternalID, existing.UserID)
			}
		} else {
			user, err = createUser(ctx, tx)
			if err != nil {
				return err
			}
			ext.UserID = user.ID
		}

		linked, err = upsertExternalIdentity(ctx, tx, existing, ext)
		return err
	})
	if err != nil {
		return nil, nil, apperror.Store(fmt.Sprintf("provisioning user for external id %d", ext.ExternalID), err)
	}
	return user, linked, nil
}

func now() time.Time {
	return time.Now().UTC()
}
