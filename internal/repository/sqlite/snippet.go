package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sakif/idevgames/internal/apperror"
	"github.com/sakif/idevgames/internal/model"
	"github.com/sakif/idevgames/internal/repository"
)

var _ repository.SnippetRepository = (*DB)(nil)

const (
	defaultPageSize = 20
	maxPageSize     = 100

	snippetColumns = `id, creator_id, taxonomy, hidden, title, icon, shared_by,
		shared_on, summary, description, href, created_at, updated_at`
)

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnippet(r rowScanner, s *model.Snippet) error {
	return r.Scan(
		&s.ID, &s.CreatorID, &s.Taxonomy, &s.Hidden, &s.Title, &s.Icon, &s.SharedBy,
		&s.SharedOn, &s.Summary, &s.Description, &s.Href, &s.CreatedAt, &s.UpdatedAt,
	)
}

// Create inserts the snippet and fills in its ID and timestamps.
// A zero SharedOn defaults to the creation time.
func (db *DB) Create(ctx context.Context, snippet *model.Snippet) error {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	ts := now()
	snippet.CreatedAt = ts
	snippet.UpdatedAt = ts
	if snippet.SharedOn.IsZero() {
		snippet.SharedOn = ts
	}

	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO snippets
		   (creator_id, taxonomy, hidden, title, icon, shared_by, shared_on,
		    summary, description, href, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snippet.CreatorID, snippet.Taxonomy, snippet.Hidden, snippet.Title, snippet.Icon,
		snippet.SharedBy, snippet.SharedOn.UTC(), snippet.Summary, snippet.Description,
		snippet.Href, snippet.CreatedAt, snippet.UpdatedAt,
	)
	if err != nil {
		return apperror.Store("creating snippet", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return apperror.Store("reading generated snippet id", err)
	}
	snippet.ID = id
	return nil
}

// GetByID returns the snippet or an apperror.NotFound.
//
// Unlike the identity lookups, a missing snippet is an error here: the only
// callers are handlers that answer 404 for it.
func (db *DB) GetByID(ctx context.Context, id int64) (*model.Snippet, error) {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	var s model.Snippet
	err := scanSnippet(db.conn.QueryRowContext(ctx,
		`SELECT `+snippetColumns+` FROM snippets WHERE id = ?`, id,
	), &s)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("snippet", strconv.FormatInt(id, 10))
	}
	if err != nil {
		return nil, apperror.Store(fmt.Sprintf("getting snippet %d", id), err)
	}
	return &s, nil
}

// listFilter turns ListOptions into a WHERE clause and its arguments.
func listFilter(opts repository.ListOptions) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if opts.Taxonomy != "" {
		conds = append(conds, "taxonomy = ?")
		args = append(args, opts.Taxonomy)
	}
	if opts.VisibleOnly {
		conds = append(conds, "hidden = 0")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// List returns a page of snippets, most recently shared first.
func (db *DB) List(ctx context.Context, opts repository.ListOptions) ([]model.Snippet, error) {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset := max(opts.Offset, 0)

	where, args := listFilter(opts)
	args = append(args, limit, offset)

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+snippetColumns+` FROM snippets`+where+`
		 ORDER BY shared_on DESC, id DESC
		 LIMIT ? OFFSET ?`,
		args...,
	)
	if err != nil {
		return nil, apperror.Store("listing snippets", err)
	}
	defer rows.Close()

	snippets := make([]model.Snippet, 0, limit)
	for rows.Next() {
		var s model.Snippet
		if err := scanSnippet(rows, &s); err != nil {
			return nil, apperror.Store("scanning snippet row", err)
		}
		snippets = append(snippets, s)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.Store("iterating snippets", err)
	}
	return snippets, nil
}

// Count returns how many snippets match opts, ignoring Limit and Offset.
func (db *DB) Count(ctx context.Context, opts repository.ListOptions) (int64, error) {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	where, args := listFilter(opts)
	var n int64
	if err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM snippets`+where, args...,
	).Scan(&n); err != nil {
		return 0, apperror.Store("counting snippets", err)
	}
	return n, nil
}

// Update overwrites the editable fields. creator_id and created_at never change.
func (db *DB) Update(ctx context.Context, snippet *model.Snippet) error {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	snippet.UpdatedAt = now()

	res, err := db.conn.ExecContext(ctx,
		`UPDATE snippets
		 SET taxonomy = ?, hidden = ?, title = ?, icon = ?, shared_by = ?, shared_on = ?,
		     summary = ?, description = ?, href = ?, updated_at = ?
		 WHERE id = ?`,
		snippet.Taxonomy, snippet.Hidden, snippet.Title, snippet.Icon, snippet.SharedBy,
		snippet.SharedOn.UTC(), snippet.Summary, snippet.Description, snippet.Href,
		snippet.UpdatedAt, snippet.ID,
	)
	if err != nil {
		return apperror.Store(fmt.Sprintf("updating snippet %d", snippet.ID), err)
	}
	return requireOneRow(res, snippet.ID)
}

// Delete removes a snippet by id.
func (db *DB) Delete(ctx context.Context, id int64) error {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	res, err := db.conn.ExecContext(ctx, `DELETE FROM snippets WHERE id = ?`, id)
	if err != nil {
		return apperror.Store(fmt.Sprintf("deleting snippet %d", id), err)
	}
	return requireOneRow(res, id)
}

func requireOneRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return apperror.Store("checking rows affected", err)
	}
	if n == 0 {
		return apperror.NotFound("snippet", strconv.FormatInt(id, 10))
	}
	return nil
}
