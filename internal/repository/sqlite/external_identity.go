package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sakif/idevgames/internal/apperror"
	"github.com/sakif/idevgames/internal/model"
)

const externalIdentityColumns = `external_id, user_id, login, avatar_url, profile_url`

// FindExternalIdentityByExternalID looks an identity up by GitHub's durable id.
func (db *DB) FindExternalIdentityByExternalID(ctx context.Context, externalID int64) (*model.ExternalIdentity, error) {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	ext, err := findExternalIdentity(ctx, db.conn, `external_id = ?`, externalID)
	if err != nil {
		return nil, apperror.Store(fmt.Sprintf("finding external identity %d", externalID), err)
	}
	return ext, nil
}

// FindExternalIdentityByUserID returns the identity linked to a local user.
// Should several rows exist, the oldest link wins.
func (db *DB) FindExternalIdentityByUserID(ctx context.Context, userID int64) (*model.ExternalIdentity, error) {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	ext, err := findExternalIdentity(ctx, db.conn, `user_id = ?`, userID)
	if err != nil {
		return nil, apperror.Store(fmt.Sprintf("finding external identity for user %d", userID), err)
	}
	return ext, nil
}

// FindExternalIdentityByLogin matches the GitHub handle exactly.
func (db *DB) FindExternalIdentityByLogin(ctx context.Context, login string) (*model.ExternalIdentity, error) {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	ext, err := findExternalIdentity(ctx, db.conn, `login = ?`, login)
	if err != nil {
		return nil, apperror.Store(fmt.Sprintf("finding external identity by login %q", login), err)
	}
	return ext, nil
}

// findExternalIdentity runs a single-row lookup. where is a fixed clause from
// this file, never user input.
func findExternalIdentity(ctx context.Context, q querier, where string, arg any) (*model.ExternalIdentity, error) {
	var ext model.ExternalIdentity
	err := q.QueryRowContext(ctx,
		`SELECT `+externalIdentityColumns+`
		 FROM external_identities
		 WHERE `+where+`
		 ORDER BY created_at, external_id
		 LIMIT 1`,
		arg,
	).Scan(&ext.ExternalID, &ext.UserID, &ext.Login, &ext.AvatarURL, &ext.ProfileURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ext, nil
}

// UpsertExternalIdentity refreshes or creates the cached identity for
// ext.ExternalID.
//
// CONSERVATIVE WRITES:
// An existing row is only updated when login, avatar or profile URL actually
// differ, so repeated logins with an unchanged GitHub profile write nothing.
// user_id of an existing row is never changed here; ext.UserID is only used
// when inserting.
func (db *DB) UpsertExternalIdentity(ctx context.Context, ext model.ExternalIdentity) (*model.ExternalIdentity, error) {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	var out *model.ExternalIdentity
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		existing, err := findExternalIdentity(ctx, tx, `external_id = ?`, ext.ExternalID)
		if err != nil {
			return err
		}
		out, err = upsertExternalIdentity(ctx, tx, existing, ext)
		return err
	})
	if err != nil {
		return nil, apperror.Store(fmt.Sprintf("upserting external identity %d", ext.ExternalID), err)
	}
	return out, nil
}

// upsertExternalIdentity writes ext given the row already read for its
// external id (nil if none), then re-reads the row.
func upsertExternalIdentity(ctx context.Context, tx *sql.Tx, existing *model.ExternalIdentity, ext model.ExternalIdentity) (*model.ExternalIdentity, error) {
	switch {
	case existing == nil:
		ts := now()
		_, err := tx.ExecContext(ctx,
			`INSERT INTO external_identities
			   (external_id, user_id, login, avatar_url, profile_url, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			ext.ExternalID, ext.UserID, ext.Login, ext.AvatarURL, ext.ProfileURL, ts, ts,
		)
		if err != nil {
			return nil, fmt.Errorf("inserting external identity: %w", err)
		}

	case existing.Login != ext.Login ||
		existing.AvatarURL != ext.AvatarURL ||
		existing.ProfileURL != ext.ProfileURL:
		_, err := tx.ExecContext(ctx,
			`UPDATE external_identities
			 SET login = ?, avatar_url = ?, profile_url = ?, updated_at = ?
			 WHERE external_id = ?`,
			ext.Login, ext.AvatarURL, ext.ProfileURL, now(), ext.ExternalID,
		)
		if err != nil {
			return nil, fmt.Errorf("updating external identity: %w", err)
		}
	}

	// Re-read so the caller sees what is actually stored.
	out, err := findExternalIdentity(ctx, tx, `external_id = ?`, ext.ExternalID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("external identity %d missing after upsert", ext.ExternalID)
	}
	return out, nil
}
