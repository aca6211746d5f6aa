package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sakif/idevgames/internal/apperror"
	"github.com/sakif/idevgames/internal/model"
)

// FindPermissionsByUserID returns every grant held by the user, ordered by name.
func (db *DB) FindPermissionsByUserID(ctx context.Context, userID int64) ([]model.PermissionGrant, error) {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	grants, err := db.listPermissions(ctx,
		`SELECT id, user_id, name FROM permissions WHERE user_id = ? ORDER BY name, id`, userID)
	if err != nil {
		return nil, apperror.Store(fmt.Sprintf("listing permissions of user %d", userID), err)
	}
	return grants, nil
}

// FindPermissionsByName returns every grant of the named permission, i.e.
// every user holding it.
func (db *DB) FindPermissionsByName(ctx context.Context, name string) ([]model.PermissionGrant, error) {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	grants, err := db.listPermissions(ctx,
		`SELECT id, user_id, name FROM permissions WHERE name = ? ORDER BY user_id, id`, name)
	if err != nil {
		return nil, apperror.Store(fmt.Sprintf("listing grants of permission %q", name), err)
	}
	return grants, nil
}

func (db *DB) listPermissions(ctx context.Context, query string, arg any) ([]model.PermissionGrant, error) {
	rows, err := db.conn.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	grants := []model.PermissionGrant{}
	for rows.Next() {
		var g model.PermissionGrant
		if err := rows.Scan(&g.ID, &g.UserID, &g.Name); err != nil {
			return nil, fmt.Errorf("scanning permission row: %w", err)
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating permissions: %w", err)
	}
	return grants, nil
}

// GrantPermission gives name to the user. Granting a pair that already exists
// does nothing. The existence check and the insert run in one transaction.
func (db *DB) GrantPermission(ctx context.Context, userID int64, name string) error {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	err := db.inTx(ctx, func(tx *sql.Tx) error {
		var one int
		err := tx.QueryRowContext(ctx,
			`SELECT 1 FROM permissions WHERE user_id = ? AND name = ? LIMIT 1`,
			userID, name,
		).Scan(&one)
		if err == nil {
			return nil // already granted
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO permissions (user_id, name) VALUES (?, ?)`, userID, name)
		return err
	})
	if err != nil {
		return apperror.Store(fmt.Sprintf("granting %q to user %d", name, userID), err)
	}
	return nil
}

// RevokePermission removes the grant and reports how many rows went away.
// Revoking something never granted returns 0 and no error.
func (db *DB) RevokePermission(ctx context.Context, userID int64, name string) (int64, error) {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM permissions WHERE user_id = ? AND name = ?`, userID, name)
	if err != nil {
		return 0, apperror.Store(fmt.Sprintf("revoking %q from user %d", name, userID), err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperror.Store("checking rows affected", err)
	}
	return n, nil
}
