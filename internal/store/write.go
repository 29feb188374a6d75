package store

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/arbor/internal/item"
)

// InitialVersion is the version a freshly created item is given. Creation
// defaults one version in; callers that want a bare item strip it.
var InitialVersion = item.VersionKey{Language: "en", Number: 1}

// CreateItem inserts a new item under parentID with one default version.
//
// The template must be resolvable in the partition (ErrUnknownTemplate
// otherwise). Creating an identity that already exists is an error.
func (s *Store) CreateItem(ctx context.Context, partition string, id, parentID item.ID, name string, templateID, branchID item.ID) (*Item, error) {
	ok, err := s.templateExists(ctx, partition, templateID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("create item %s: template %s: %w", id, templateID, ErrUnknownTemplate)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("create item %s: begin tx: %w", id, err)
	}
	defer tx.Rollback() // No-op if committed

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO items (partition, id, parent_id, name, template_id, branch_id)
		VALUES (?, ?, ?, ?, ?, ?)
	`, partition, id.String(), nullableID(parentID), name, templateID.String(), nullableID(branchID)); err != nil {
		return nil, fmt.Errorf("create item %s: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO versions (partition, item_id, language, number) VALUES (?, ?, ?, ?)
	`, partition, id.String(), InitialVersion.Language, InitialVersion.Number); err != nil {
		return nil, fmt.Errorf("create item %s: initial version: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("create item %s: commit: %w", id, err)
	}

	s.invalidate(partition, id)
	s.record(Change{Op: OpItemCreated, Partition: partition, ItemID: id, Detail: name})
	s.record(Change{Op: OpVersionAdded, Partition: partition, ItemID: id, Version: InitialVersion})

	return s.GetItem(ctx, partition, id)
}

// DeleteItem removes an item and its entire live subtree, fields and
// versions included. A template definition registered under the identity
// is dropped with it. Deleting a missing identity is a no-op.
func (s *Store) DeleteItem(ctx context.Context, partition string, id item.ID) error {
	children, err := s.Children(ctx, partition, id)
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := s.DeleteItem(ctx, partition, child.ID); err != nil {
			return err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete item %s: begin tx: %w", id, err)
	}
	defer tx.Rollback() // No-op if committed

	// A template-definition item carries registry rows under its own id;
	// deleting the item deletes the definition.
	for _, stmt := range []string{
		`DELETE FROM versioned_fields WHERE partition = ? AND item_id = ?`,
		`DELETE FROM versions WHERE partition = ? AND item_id = ?`,
		`DELETE FROM shared_fields WHERE partition = ? AND item_id = ?`,
		`DELETE FROM template_fields WHERE partition = ? AND template_id = ?`,
		`DELETE FROM templates WHERE partition = ? AND id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, partition, id.String()); err != nil {
			return fmt.Errorf("delete item %s: %w", id, err)
		}
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM items WHERE partition = ? AND id = ?`, partition, id.String())
	if err != nil {
		return fmt.Errorf("delete item %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete item %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("delete item %s: commit: %w", id, err)
	}

	s.invalidate(partition, id)
	if affected > 0 {
		s.record(Change{Op: OpItemDeleted, Partition: partition, ItemID: id})
	}
	return nil
}

// MoveItem reparents an item. Moving to the current parent is a no-op.
func (s *Store) MoveItem(ctx context.Context, partition string, id, newParentID item.ID) error {
	current, err := s.GetItem(ctx, partition, id)
	if err != nil {
		return err
	}
	if current == nil {
		return fmt.Errorf("move item %s: not found", id)
	}
	if current.ParentID == newParentID {
		return nil
	}

	if _, err := s.db.ExecContext(ctx, `
		UPDATE items SET parent_id = ? WHERE partition = ? AND id = ?
	`, nullableID(newParentID), partition, id.String()); err != nil {
		return fmt.Errorf("move item %s: %w", id, err)
	}

	s.invalidate(partition, id)
	s.record(Change{Op: OpItemMoved, Partition: partition, ItemID: id, Detail: newParentID.String()})
	return nil
}

// SetName renames an item. Setting the current name is a no-op.
func (s *Store) SetName(ctx context.Context, partition string, id item.ID, name string) error {
	return s.setItemColumn(ctx, partition, id, "name", name, Change{
		Op: OpItemRenamed, Partition: partition, ItemID: id, Detail: name,
	}, func(it *Item) bool { return it.Name == name })
}

// SetBranch changes an item's structural variant. Setting the current
// branch is a no-op.
func (s *Store) SetBranch(ctx context.Context, partition string, id, branchID item.ID) error {
	return s.setItemColumn(ctx, partition, id, "branch_id", nullableID(branchID), Change{
		Op: OpBranchChanged, Partition: partition, ItemID: id, Detail: branchID.String(),
	}, func(it *Item) bool { return it.BranchID == branchID })
}

func (s *Store) setItemColumn(ctx context.Context, partition string, id item.ID, column string, value any, change Change, unchanged func(*Item) bool) error {
	current, err := s.GetItem(ctx, partition, id)
	if err != nil {
		return err
	}
	if current == nil {
		return fmt.Errorf("update item %s: not found", id)
	}
	if unchanged(current) {
		return nil
	}

	query := fmt.Sprintf(`UPDATE items SET %s = ? WHERE partition = ? AND id = ?`, column)
	if _, err := s.db.ExecContext(ctx, query, value, partition, id.String()); err != nil {
		return fmt.Errorf("update item %s: %w", id, err)
	}

	s.invalidate(partition, id)
	s.record(change)
	return nil
}

// SetItemTemplate changes an item's structural type and migrates its field
// values.
//
// Migration rule: a value survives if the new template defines its field
// identity; otherwise, if base defines the field and the new template has a
// field of the same name, the value is re-keyed to the new identity; any
// other value is dropped. base is normally the item's old template - when
// the old definition is no longer resolvable, callers pass the new template
// as its own baseline, which degrades migration to identity matching.
func (s *Store) SetItemTemplate(ctx context.Context, partition string, id, newTemplateID item.ID, base *item.Template) error {
	current, err := s.GetItem(ctx, partition, id)
	if err != nil {
		return err
	}
	if current == nil {
		return fmt.Errorf("retemplate item %s: not found", id)
	}
	if current.TemplateID == newTemplateID {
		return nil
	}

	newTpl, err := s.Template(ctx, partition, newTemplateID)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("retemplate item %s: begin tx: %w", id, err)
	}
	defer tx.Rollback() // No-op if committed

	if err := migrateFieldTable(ctx, tx, "shared_fields", partition, id, newTpl, base); err != nil {
		return fmt.Errorf("retemplate item %s: %w", id, err)
	}
	if err := migrateFieldTable(ctx, tx, "versioned_fields", partition, id, newTpl, base); err != nil {
		return fmt.Errorf("retemplate item %s: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE items SET template_id = ? WHERE partition = ? AND id = ?
	`, newTemplateID.String(), partition, id.String()); err != nil {
		return fmt.Errorf("retemplate item %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("retemplate item %s: commit: %w", id, err)
	}

	s.invalidate(partition, id)
	s.record(Change{Op: OpRetemplated, Partition: partition, ItemID: id, Detail: newTemplateID.String()})
	return nil
}

// migrateFieldTable applies the retemplate migration rule to one of the two
// field value tables.
func migrateFieldTable(ctx context.Context, tx *sql.Tx, table, partition string, id item.ID, newTpl, base *item.Template) error {
	rows, err := tx.QueryContext(ctx,
		fmt.Sprintf(`SELECT DISTINCT field_id FROM %s WHERE partition = ? AND item_id = ?`, table),
		partition, id.String())
	if err != nil {
		return fmt.Errorf("scan %s: %w", table, err)
	}

	var fieldIDs []string
	for rows.Next() {
		var fid string
		if err := rows.Scan(&fid); err != nil {
			rows.Close()
			return fmt.Errorf("scan %s: %w", table, err)
		}
		fieldIDs = append(fieldIDs, fid)
	}
	if err := rows.Close(); err != nil {
		return err
	}

	for _, raw := range fieldIDs {
		fid, err := item.ParseID(raw)
		if err != nil {
			return fmt.Errorf("%s: invalid field id %q: %w", table, raw, err)
		}

		if newTpl.Field(fid) != nil {
			continue
		}

		var target *item.FieldDef
		if base != nil {
			if oldDef := base.Field(fid); oldDef != nil {
				target = newTpl.FieldByName(oldDef.Name)
			}
		}

		if target == nil {
			if _, err := tx.ExecContext(ctx,
				fmt.Sprintf(`DELETE FROM %s WHERE partition = ? AND item_id = ? AND field_id = ?`, table),
				partition, id.String(), raw); err != nil {
				return fmt.Errorf("%s: drop field %s: %w", table, fid, err)
			}
			continue
		}

		// Re-key to the name-matched field of the new template. Any value
		// already present under the target identity wins.
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`UPDATE OR IGNORE %s SET field_id = ? WHERE partition = ? AND item_id = ? AND field_id = ?`, table),
			target.ID.String(), partition, id.String(), raw); err != nil {
			return fmt.Errorf("%s: rekey field %s: %w", table, fid, err)
		}
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE partition = ? AND item_id = ? AND field_id = ?`, table),
			partition, id.String(), raw); err != nil {
			return fmt.Errorf("%s: drop rekeyed field %s: %w", table, fid, err)
		}
	}
	return nil
}

// AddVersion creates one version on an item. Adding an existing version is
// a no-op.
func (s *Store) AddVersion(ctx context.Context, partition string, id item.ID, key item.VersionKey) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO versions (partition, item_id, language, number) VALUES (?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, partition, id.String(), key.Language, key.Number)
	if err != nil {
		return fmt.Errorf("add version %s to %s: %w", key, id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("add version %s to %s: %w", key, id, err)
	}

	if affected > 0 {
		s.invalidate(partition, id)
		s.record(Change{Op: OpVersionAdded, Partition: partition, ItemID: id, Version: key})
	}
	return nil
}

// RemoveVersion deletes one version and its field values. Removing a
// missing version is a no-op.
func (s *Store) RemoveVersion(ctx context.Context, partition string, id item.ID, key item.VersionKey) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("remove version %s of %s: begin tx: %w", key, id, err)
	}
	defer tx.Rollback() // No-op if committed

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM versioned_fields WHERE partition = ? AND item_id = ? AND language = ? AND number = ?
	`, partition, id.String(), key.Language, key.Number); err != nil {
		return fmt.Errorf("remove version %s of %s: %w", key, id, err)
	}

	result, err := tx.ExecContext(ctx, `
		DELETE FROM versions WHERE partition = ? AND item_id = ? AND language = ? AND number = ?
	`, partition, id.String(), key.Language, key.Number)
	if err != nil {
		return fmt.Errorf("remove version %s of %s: %w", key, id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove version %s of %s: %w", key, id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("remove version %s of %s: commit: %w", key, id, err)
	}

	if affected > 0 {
		s.invalidate(partition, id)
		s.record(Change{Op: OpVersionRemoved, Partition: partition, ItemID: id, Version: key})
	}
	return nil
}

// SetSharedField writes a shared field value.
//
// Without force, a write that matches the current bytes is skipped
// entirely. With force (binary content), the write always executes, but a
// change is still only recorded when the bytes actually differ - so forced
// rewrites of identical content stay invisible to handlers and the journal.
func (s *Store) SetSharedField(ctx context.Context, partition string, id, fieldID item.ID, value []byte, force bool) (changed bool, err error) {
	return s.setFieldValue(ctx, fieldValueRef{
		table: "shared_fields", partition: partition, itemID: id, fieldID: fieldID,
	}, value, force)
}

// SetVersionedField writes a field value scoped to one version. Same
// force/no-op semantics as SetSharedField.
func (s *Store) SetVersionedField(ctx context.Context, partition string, id item.ID, key item.VersionKey, fieldID item.ID, value []byte, force bool) (changed bool, err error) {
	return s.setFieldValue(ctx, fieldValueRef{
		table: "versioned_fields", partition: partition, itemID: id, fieldID: fieldID,
		version: &key,
	}, value, force)
}

// ResetSharedField returns a shared field to its template default: deleted
// when the default is empty, otherwise set to the default text.
func (s *Store) ResetSharedField(ctx context.Context, partition string, id, fieldID item.ID, defaultValue string) (changed bool, err error) {
	return s.resetFieldValue(ctx, fieldValueRef{
		table: "shared_fields", partition: partition, itemID: id, fieldID: fieldID,
	}, defaultValue)
}

// ResetVersionedField returns a versioned field to its template default.
func (s *Store) ResetVersionedField(ctx context.Context, partition string, id item.ID, key item.VersionKey, fieldID item.ID, defaultValue string) (changed bool, err error) {
	return s.resetFieldValue(ctx, fieldValueRef{
		table: "versioned_fields", partition: partition, itemID: id, fieldID: fieldID,
		version: &key,
	}, defaultValue)
}

// fieldValueRef addresses one field value row in either table.
type fieldValueRef struct {
	table     string
	partition string
	itemID    item.ID
	fieldID   item.ID
	version   *item.VersionKey
}

func (r fieldValueRef) where() (string, []any) {
	clause := `partition = ? AND item_id = ? AND field_id = ?`
	args := []any{r.partition, r.itemID.String(), r.fieldID.String()}
	if r.version != nil {
		clause += ` AND language = ? AND number = ?`
		args = append(args, r.version.Language, r.version.Number)
	}
	return clause, args
}

func (r fieldValueRef) change(op Op) Change {
	c := Change{Op: op, Partition: r.partition, ItemID: r.itemID, FieldID: r.fieldID}
	if r.version != nil {
		c.Version = *r.version
	}
	return c
}

func (s *Store) currentFieldValue(ctx context.Context, ref fieldValueRef) (value []byte, exists bool, err error) {
	clause, args := ref.where()
	err = s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT value FROM %s WHERE %s`, ref.table, clause), args...,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read field %s of %s: %w", ref.fieldID, ref.itemID, err)
	}
	return value, true, nil
}

func (s *Store) setFieldValue(ctx context.Context, ref fieldValueRef, value []byte, force bool) (bool, error) {
	current, exists, err := s.currentFieldValue(ctx, ref)
	if err != nil {
		return false, err
	}

	same := exists && bytes.Equal(current, value)
	if same && !force {
		return false, nil
	}

	if err := s.upsertFieldValue(ctx, ref, value); err != nil {
		return false, err
	}

	if same {
		// Forced rewrite of identical bytes: executed, but not a change.
		return false, nil
	}

	s.invalidate(ref.partition, ref.itemID)
	s.record(ref.change(OpFieldWritten))
	return true, nil
}

func (s *Store) resetFieldValue(ctx context.Context, ref fieldValueRef, defaultValue string) (bool, error) {
	current, exists, err := s.currentFieldValue(ctx, ref)
	if err != nil {
		return false, err
	}

	if defaultValue == "" {
		if !exists {
			return false, nil
		}
		clause, args := ref.where()
		if _, err := s.db.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE %s`, ref.table, clause), args...); err != nil {
			return false, fmt.Errorf("reset field %s of %s: %w", ref.fieldID, ref.itemID, err)
		}
	} else {
		if exists && bytes.Equal(current, []byte(defaultValue)) {
			return false, nil
		}
		if err := s.upsertFieldValue(ctx, ref, []byte(defaultValue)); err != nil {
			return false, err
		}
	}

	s.invalidate(ref.partition, ref.itemID)
	s.record(ref.change(OpFieldReset))
	return true, nil
}

func (s *Store) upsertFieldValue(ctx context.Context, ref fieldValueRef, value []byte) error {
	var query string
	var args []any
	if ref.version != nil {
		query = fmt.Sprintf(`
			INSERT INTO %s (partition, item_id, language, number, field_id, value)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT DO UPDATE SET value = excluded.value
		`, ref.table)
		args = []any{ref.partition, ref.itemID.String(), ref.version.Language, ref.version.Number, ref.fieldID.String(), value}
	} else {
		query = fmt.Sprintf(`
			INSERT INTO %s (partition, item_id, field_id, value)
			VALUES (?, ?, ?, ?)
			ON CONFLICT DO UPDATE SET value = excluded.value
		`, ref.table)
		args = []any{ref.partition, ref.itemID.String(), ref.fieldID.String(), value}
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("write field %s of %s: %w", ref.fieldID, ref.itemID, err)
	}
	return nil
}
