package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"sort"

	"github.com/google/uuid"

	"github.com/roach88/arbor/internal/item"
)

// ErrUnknownTemplate is returned when a template identity has no registry
// entry in the partition. Match with errors.Is.
var ErrUnknownTemplate = errors.New("unknown template")

// Template loads a template definition from the registry.
//
// item.TemplateMetaID is always resolvable: template-definition items use
// it as their own type before any registry entry exists.
func (s *Store) Template(ctx context.Context, partition string, id item.ID) (*item.Template, error) {
	if id == item.TemplateMetaID {
		return &item.Template{ID: item.TemplateMetaID, Name: "template"}, nil
	}

	var name string
	err := s.db.QueryRowContext(ctx, `
		SELECT name FROM templates WHERE partition = ? AND id = ?
	`, partition, id.String()).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("template %s in partition %s: %w", id, partition, ErrUnknownTemplate)
	}
	if err != nil {
		return nil, fmt.Errorf("get template %s: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT field_id, name, shared, dflt
		FROM template_fields
		WHERE partition = ? AND template_id = ?
		ORDER BY field_id ASC
	`, partition, id.String())
	if err != nil {
		return nil, fmt.Errorf("get template %s fields: %w", id, err)
	}
	defer rows.Close()

	tpl := &item.Template{ID: id, Name: name}
	for rows.Next() {
		var (
			rawID, fname, dflt string
			shared             bool
		)
		if err := rows.Scan(&rawID, &fname, &shared, &dflt); err != nil {
			return nil, fmt.Errorf("scan template %s field: %w", id, err)
		}
		fid, err := uuid.Parse(rawID)
		if err != nil {
			return nil, fmt.Errorf("template %s: invalid field id %q: %w", id, rawID, err)
		}
		tpl.Fields = append(tpl.Fields, item.FieldDef{ID: fid, Name: fname, Shared: shared, Default: dflt})
	}
	return tpl, rows.Err()
}

// PutTemplate registers or replaces a template definition. A put that
// matches the stored definition is a no-op and records no change.
func (s *Store) PutTemplate(ctx context.Context, partition string, tpl item.Template) error {
	existing, err := s.Template(ctx, partition, tpl.ID)
	if err != nil && !errors.Is(err, ErrUnknownTemplate) {
		return err
	}
	if existing != nil && sameTemplate(existing, &tpl) {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("put template %s: begin tx: %w", tpl.ID, err)
	}
	defer tx.Rollback() // No-op if committed

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO templates (partition, id, name) VALUES (?, ?, ?)
		ON CONFLICT(partition, id) DO UPDATE SET name = excluded.name
	`, partition, tpl.ID.String(), tpl.Name); err != nil {
		return fmt.Errorf("put template %s: %w", tpl.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM template_fields WHERE partition = ? AND template_id = ?
	`, partition, tpl.ID.String()); err != nil {
		return fmt.Errorf("put template %s: clear fields: %w", tpl.ID, err)
	}

	for _, def := range tpl.Fields {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO template_fields (partition, template_id, field_id, name, shared, dflt)
			VALUES (?, ?, ?, ?, ?, ?)
		`, partition, tpl.ID.String(), def.ID.String(), def.Name, def.Shared, def.Default); err != nil {
			return fmt.Errorf("put template %s: field %s: %w", tpl.ID, def.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("put template %s: commit: %w", tpl.ID, err)
	}

	s.record(Change{Op: OpTemplateStored, Partition: partition, ItemID: tpl.ID, Detail: tpl.Name})
	return nil
}

// templateExists reports whether a template identity is resolvable,
// including the reserved meta template.
func (s *Store) templateExists(ctx context.Context, partition string, id item.ID) (bool, error) {
	if id == item.TemplateMetaID {
		return true, nil
	}
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM templates WHERE partition = ? AND id = ?
	`, partition, id.String()).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check template %s: %w", id, err)
	}
	return true, nil
}

func sameTemplate(a, b *item.Template) bool {
	if a.Name != b.Name || len(a.Fields) != len(b.Fields) {
		return false
	}
	as := append([]item.FieldDef(nil), a.Fields...)
	bs := append([]item.FieldDef(nil), b.Fields...)
	sortDefs(as)
	sortDefs(bs)
	return reflect.DeepEqual(as, bs)
}

func sortDefs(defs []item.FieldDef) {
	sort.Slice(defs, func(i, j int) bool {
		return defs[i].ID.String() < defs[j].ID.String()
	})
}
