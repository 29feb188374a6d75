package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/arbor/internal/item"
)

// GetItem resolves one live item by identity. Returns (nil, nil) when the
// identity does not exist in the partition.
//
// Reads are served from the per-identity cache when possible; every
// mutation invalidates the touched identity.
func (s *Store) GetItem(ctx context.Context, partition string, id item.ID) (*Item, error) {
	if cached := s.cached(partition, id); cached != nil {
		snapshot := *cached
		return &snapshot, nil
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, partition, parent_id, name, template_id, branch_id
		FROM items
		WHERE partition = ? AND id = ?
	`, partition, id.String())

	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item %s: %w", id, err)
	}

	s.remember(it)
	snapshot := *it
	return &snapshot, nil
}

// Children returns the live children of an item, ordered by name then id
// for deterministic walks. A missing or leaf parent yields an empty slice.
func (s *Store) Children(ctx context.Context, partition string, parentID item.ID) ([]*Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, partition, parent_id, name, template_id, branch_id
		FROM items
		WHERE partition = ? AND parent_id = ?
		ORDER BY name ASC, id COLLATE BINARY ASC
	`, partition, parentID.String())
	if err != nil {
		return nil, fmt.Errorf("query children of %s: %w", parentID, err)
	}
	defer rows.Close()

	var children []*Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan child of %s: %w", parentID, err)
		}
		children = append(children, it)
	}
	return children, rows.Err()
}

// Versions returns the version keys present on an item, ordered by
// language then number.
func (s *Store) Versions(ctx context.Context, partition string, id item.ID) ([]item.VersionKey, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT language, number
		FROM versions
		WHERE partition = ? AND item_id = ?
		ORDER BY language ASC, number ASC
	`, partition, id.String())
	if err != nil {
		return nil, fmt.Errorf("query versions of %s: %w", id, err)
	}
	defer rows.Close()

	var keys []item.VersionKey
	for rows.Next() {
		var k item.VersionKey
		if err := rows.Scan(&k.Language, &k.Number); err != nil {
			return nil, fmt.Errorf("scan version of %s: %w", id, err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// SharedFields returns the shared field values of an item.
func (s *Store) SharedFields(ctx context.Context, partition string, id item.ID) (map[item.ID][]byte, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT field_id, value
		FROM shared_fields
		WHERE partition = ? AND item_id = ?
	`, partition, id.String())
	if err != nil {
		return nil, fmt.Errorf("query shared fields of %s: %w", id, err)
	}
	defer rows.Close()

	return scanFieldValues(rows)
}

// VersionFields returns the field values of one version of an item.
func (s *Store) VersionFields(ctx context.Context, partition string, id item.ID, key item.VersionKey) (map[item.ID][]byte, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT field_id, value
		FROM versioned_fields
		WHERE partition = ? AND item_id = ? AND language = ? AND number = ?
	`, partition, id.String(), key.Language, key.Number)
	if err != nil {
		return nil, fmt.Errorf("query version %s fields of %s: %w", key, id, err)
	}
	defer rows.Close()

	return scanFieldValues(rows)
}

func scanFieldValues(rows *sql.Rows) (map[item.ID][]byte, error) {
	values := make(map[item.ID][]byte)
	for rows.Next() {
		var rawID string
		var value []byte
		if err := rows.Scan(&rawID, &value); err != nil {
			return nil, fmt.Errorf("scan field value: %w", err)
		}
		fid, err := uuid.Parse(rawID)
		if err != nil {
			return nil, fmt.Errorf("scan field value: invalid field id %q: %w", rawID, err)
		}
		values[fid] = value
	}
	return values, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*Item, error) {
	var (
		rawID, rawTemplate   string
		rawParent, rawBranch sql.NullString
		it                   Item
	)
	if err := row.Scan(&rawID, &it.Partition, &rawParent, &it.Name, &rawTemplate, &rawBranch); err != nil {
		return nil, err
	}

	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("invalid item id %q: %w", rawID, err)
	}
	it.ID = id

	if it.TemplateID, err = uuid.Parse(rawTemplate); err != nil {
		return nil, fmt.Errorf("invalid template id %q: %w", rawTemplate, err)
	}
	if it.ParentID, err = scanID(rawParent); err != nil {
		return nil, fmt.Errorf("invalid parent id: %w", err)
	}
	if it.BranchID, err = scanID(rawBranch); err != nil {
		return nil, fmt.Errorf("invalid branch id: %w", err)
	}

	return &it, nil
}
