package formatter

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/roach88/arbor/internal/item"
	"github.com/roach88/arbor/internal/predicate"
	"github.com/roach88/arbor/internal/store"
)

// Formatter reconciles serialized item descriptions into live items.
type Formatter struct {
	store  *store.Store
	fields predicate.FieldOracle
	log    *slog.Logger
}

// New creates a Formatter. A nil logger falls back to slog.Default.
func New(s *store.Store, fields predicate.FieldOracle, log *slog.Logger) *Formatter {
	if log == nil {
		log = slog.Default()
	}
	return &Formatter{store: s, fields: fields, log: log}
}

// Reconcile drives one serialized item into the live store: structural
// changes first (create, move, retemplate, rename), then field and version
// patching on a freshly re-read item.
//
// allowMissingFields tolerates serialized fields the target template does
// not define; without it such fields fail the item with
// ErrCodeMissingTemplateField.
func (f *Formatter) Reconcile(ctx context.Context, it *item.Item, allowMissingFields bool) (*store.Item, error) {
	if it.IsTemplateDefinition() {
		tpl := item.Template{ID: it.ID, Name: it.Name, Fields: it.Schema}
		if err := f.store.PutTemplate(ctx, it.Partition, tpl); err != nil {
			return nil, wrapFailure(it, err)
		}
		f.log.Debug("template schema registered",
			"partition", it.Partition,
			"template", it.ID,
			"name", it.Name,
			"fields", len(it.Schema),
		)
	}

	parent, err := f.resolveParent(ctx, it)
	if err != nil {
		return nil, wrapFailure(it, err)
	}

	existing, err := f.store.GetItem(ctx, it.Partition, it.ID)
	if err != nil {
		return nil, wrapFailure(it, err)
	}

	if existing == nil {
		return f.createItem(ctx, it, parent, allowMissingFields)
	}
	return f.updateItem(ctx, it, parent, existing, allowMissingFields)
}

func (f *Formatter) resolveParent(ctx context.Context, it *item.Item) (*store.Item, error) {
	if it.Parent == uuid.Nil {
		return nil, nil
	}
	return f.store.GetItem(ctx, it.Partition, it.Parent)
}

// createItem builds a brand new live item. Any failure after the create
// removes the partial item before surfacing.
func (f *Formatter) createItem(ctx context.Context, it *item.Item, parent *store.Item, allowMissingFields bool) (*store.Item, error) {
	if it.Parent != uuid.Nil && parent == nil {
		return nil, newMergeError(ErrCodeParentNotFound, it,
			fmt.Sprintf("parent %s does not resolve to a live item", it.Parent), nil)
	}

	if _, err := f.store.CreateItem(ctx, it.Partition, it.ID, it.Parent, it.Name, it.Template, it.Branch); err != nil {
		if errors.Is(err, store.ErrUnknownTemplate) {
			return nil, newMergeError(ErrCodeTemplateNotFound, it,
				fmt.Sprintf("template %s does not resolve", it.Template), err)
		}
		return nil, wrapFailure(it, err)
	}

	f.log.Info("item created",
		"partition", it.Partition,
		"item", it.ID,
		"path", it.Path,
		"template", it.Template,
	)

	if err := f.finishCreate(ctx, it, allowMissingFields); err != nil {
		// Never leave an uncommitted create in a failed state.
		if delErr := f.store.DeleteItem(ctx, it.Partition, it.ID); delErr != nil {
			f.log.Error("failed to remove partial item after failed create",
				"partition", it.Partition,
				"item", it.ID,
				"path", it.Path,
				"error", delErr,
			)
		} else {
			f.log.Warn("partial item removed after failed create",
				"partition", it.Partition,
				"item", it.ID,
				"path", it.Path,
			)
		}
		return nil, wrapFailure(it, err)
	}

	return f.store.GetItem(ctx, it.Partition, it.ID)
}

func (f *Formatter) finishCreate(ctx context.Context, it *item.Item, allowMissingFields bool) error {
	// Creation defaults a version in; strip whatever the serialized item
	// does not claim so the version set converges in one pass.
	claimed := make(map[item.VersionKey]bool, len(it.Versions))
	for _, v := range it.Versions {
		claimed[v.Key()] = true
	}
	defaulted, err := f.store.Versions(ctx, it.Partition, it.ID)
	if err != nil {
		return err
	}
	for _, key := range defaulted {
		if claimed[key] {
			continue
		}
		if err := f.store.RemoveVersion(ctx, it.Partition, it.ID, key); err != nil {
			return err
		}
	}

	live, err := f.store.GetItem(ctx, it.Partition, it.ID)
	if err != nil {
		return err
	}
	return f.patchFields(ctx, it, live, allowMissingFields)
}

func (f *Formatter) updateItem(ctx context.Context, it *item.Item, parent, existing *store.Item, allowMissingFields bool) (*store.Item, error) {
	if it.Parent != uuid.Nil && parent == nil {
		return nil, newMergeError(ErrCodeMovedParentNotFound, it,
			fmt.Sprintf("moved item's new parent %s does not resolve to a live item", it.Parent), nil)
	}

	if existing.ParentID != it.Parent {
		if err := f.store.MoveItem(ctx, it.Partition, it.ID, it.Parent); err != nil {
			return nil, wrapFailure(it, err)
		}
		f.log.Info("item moved",
			"partition", it.Partition,
			"item", it.ID,
			"path", it.Path,
			"from", existing.ParentID,
			"to", it.Parent,
		)
	}

	if existing.TemplateID != it.Template {
		if err := f.retemplate(ctx, it, existing); err != nil {
			return nil, err
		}
	}

	// Name and branch changes are logged independently - only what
	// actually changed.
	if existing.Name != it.Name {
		if err := f.store.SetName(ctx, it.Partition, it.ID, it.Name); err != nil {
			return nil, wrapFailure(it, err)
		}
		f.log.Info("item renamed",
			"partition", it.Partition,
			"item", it.ID,
			"from", existing.Name,
			"to", it.Name,
		)
	}
	if existing.BranchID != it.Branch {
		if err := f.store.SetBranch(ctx, it.Partition, it.ID, it.Branch); err != nil {
			return nil, wrapFailure(it, err)
		}
		f.log.Info("item branch changed",
			"partition", it.Partition,
			"item", it.ID,
			"from", existing.BranchID,
			"to", it.Branch,
		)
	}

	// Structural operations can stale cached in-memory state; re-read
	// before patching fields.
	live, err := f.store.GetItem(ctx, it.Partition, it.ID)
	if err != nil {
		return nil, wrapFailure(it, err)
	}
	if live == nil {
		return nil, newMergeError(ErrCodeReconcileFailed, it, "item vanished during reconciliation", nil)
	}

	if err := f.patchFields(ctx, it, live, allowMissingFields); err != nil {
		return nil, wrapFailure(it, err)
	}
	return f.store.GetItem(ctx, it.Partition, it.ID)
}

// retemplate changes the item's structural type, migrating field values by
// comparing the old and new definitions. When the old definition was
// already deleted earlier in the same run, the new type doubles as the
// comparison baseline - best effort rather than failing the whole item.
func (f *Formatter) retemplate(ctx context.Context, it *item.Item, existing *store.Item) error {
	if _, err := f.store.Template(ctx, it.Partition, it.Template); err != nil {
		if errors.Is(err, store.ErrUnknownTemplate) {
			return newMergeError(ErrCodeTemplateNotFound, it,
				fmt.Sprintf("new template %s does not resolve", it.Template), err)
		}
		return wrapFailure(it, err)
	}

	base, err := f.store.Template(ctx, it.Partition, existing.TemplateID)
	if errors.Is(err, store.ErrUnknownTemplate) {
		f.log.Warn("old template no longer resolves, using new template as migration baseline",
			"partition", it.Partition,
			"item", it.ID,
			"old_template", existing.TemplateID,
			"new_template", it.Template,
		)
		base, err = f.store.Template(ctx, it.Partition, it.Template)
	}
	if err != nil {
		return wrapFailure(it, err)
	}

	if err := f.store.SetItemTemplate(ctx, it.Partition, it.ID, it.Template, base); err != nil {
		return wrapFailure(it, err)
	}

	f.log.Info("item retemplated",
		"partition", it.Partition,
		"item", it.ID,
		"path", it.Path,
		"from", existing.TemplateID,
		"to", it.Template,
	)
	return nil
}

// patchFields applies shared fields, then serialized versions, then prunes
// live versions absent from the desired state.
func (f *Formatter) patchFields(ctx context.Context, it *item.Item, live *store.Item, allowMissingFields bool) error {
	tpl, err := f.store.Template(ctx, it.Partition, live.TemplateID)
	if err != nil {
		return err
	}

	if err := f.patchSharedFields(ctx, it, tpl, allowMissingFields); err != nil {
		return err
	}
	return f.patchVersions(ctx, it, tpl, allowMissingFields)
}

func (f *Formatter) patchSharedFields(ctx context.Context, it *item.Item, tpl *item.Template, allowMissingFields bool) error {
	current, err := f.store.SharedFields(ctx, it.Partition, it.ID)
	if err != nil {
		return err
	}

	// Shared fields on the live item with no serialized descriptor go back
	// to their template default.
	for _, fid := range sortedIDs(current) {
		if it.SharedField(fid) != nil {
			continue
		}
		changed, err := f.store.ResetSharedField(ctx, it.Partition, it.ID, fid, templateDefault(tpl, fid))
		if err != nil {
			return err
		}
		if changed {
			f.log.Info("shared field reset to default",
				"partition", it.Partition,
				"item", it.ID,
				"field", fid,
			)
		}
	}

	for i := range it.Shared {
		if err := f.applyField(ctx, it, tpl, &it.Shared[i], nil, allowMissingFields); err != nil {
			return err
		}
	}
	return nil
}

func (f *Formatter) patchVersions(ctx context.Context, it *item.Item, tpl *item.Template, allowMissingFields bool) error {
	liveVersions, err := f.store.Versions(ctx, it.Partition, it.ID)
	if err != nil {
		return err
	}

	// Track what existed before; whatever the serialized item does not
	// claim gets pruned afterward.
	remaining := make(map[item.VersionKey]bool, len(liveVersions))
	for _, key := range liveVersions {
		remaining[key] = true
	}

	for _, v := range it.Versions {
		key := v.Key()
		if !remaining[key] {
			if err := f.store.AddVersion(ctx, it.Partition, it.ID, key); err != nil {
				return err
			}
			f.log.Info("version added",
				"partition", it.Partition,
				"item", it.ID,
				"version", key.String(),
			)
		}
		delete(remaining, key)

		if err := f.patchVersionFields(ctx, it, tpl, v, allowMissingFields); err != nil {
			return err
		}
	}

	for _, key := range sortedVersionKeys(remaining) {
		if err := f.store.RemoveVersion(ctx, it.Partition, it.ID, key); err != nil {
			return err
		}
		f.log.Info("orphaned version removed",
			"partition", it.Partition,
			"item", it.ID,
			"version", key.String(),
		)
	}
	return nil
}

func (f *Formatter) patchVersionFields(ctx context.Context, it *item.Item, tpl *item.Template, v item.Version, allowMissingFields bool) error {
	key := v.Key()
	current, err := f.store.VersionFields(ctx, it.Partition, it.ID, key)
	if err != nil {
		return err
	}

	for _, fid := range sortedIDs(current) {
		if fid == item.OwnerFieldID {
			continue
		}
		if v.Field(fid) != nil {
			continue
		}
		changed, err := f.store.ResetVersionedField(ctx, it.Partition, it.ID, key, fid, templateDefault(tpl, fid))
		if err != nil {
			return err
		}
		if changed {
			f.log.Info("versioned field reset to default",
				"partition", it.Partition,
				"item", it.ID,
				"version", key.String(),
				"field", fid,
			)
		}
	}

	// Authorship is cleared on its own path, and only when the serialized
	// version explicitly omits it.
	if _, hasOwner := current[item.OwnerFieldID]; hasOwner && v.Field(item.OwnerFieldID) == nil {
		changed, err := f.store.ResetVersionedField(ctx, it.Partition, it.ID, key, item.OwnerFieldID, templateDefault(tpl, item.OwnerFieldID))
		if err != nil {
			return err
		}
		if changed {
			f.log.Info("authorship field reset",
				"partition", it.Partition,
				"item", it.ID,
				"version", key.String(),
			)
		}
	}

	for i := range v.Fields {
		if err := f.applyField(ctx, it, tpl, &v.Fields[i], &key, allowMissingFields); err != nil {
			return err
		}
	}
	return nil
}

// applyField writes one field descriptor. The field oracle is consulted
// once per descriptor, shared and versioned alike.
func (f *Formatter) applyField(ctx context.Context, it *item.Item, tpl *item.Template, desc *item.FieldDescriptor, version *item.VersionKey, allowMissingFields bool) error {
	if d := f.fields.IncludesField(desc.ID); !d.Included {
		f.log.Info("field skipped",
			"partition", it.Partition,
			"item", it.ID,
			"field", desc.ID,
			"reason", d.Reason,
		)
		return nil
	}

	if tpl.Field(desc.ID) == nil {
		if !allowMissingFields {
			return newMergeError(ErrCodeMissingTemplateField, it,
				fmt.Sprintf("template %s does not define field %s", tpl.ID, desc.ID), nil)
		}
		f.log.Info("field not defined by template, skipped",
			"partition", it.Partition,
			"item", it.ID,
			"field", desc.ID,
			"template", tpl.ID,
		)
		return nil
	}

	value := []byte(desc.Value)
	force := false
	if desc.Blob {
		decoded, err := base64.StdEncoding.DecodeString(desc.Value)
		if err != nil {
			return newMergeError(ErrCodeReconcileFailed, it,
				fmt.Sprintf("field %s: invalid binary payload", desc.ID), err)
		}
		// Binary content bypasses equality checks and is always rewritten.
		value = decoded
		force = true
	}

	var changed bool
	var err error
	if version == nil {
		changed, err = f.store.SetSharedField(ctx, it.Partition, it.ID, desc.ID, value, force)
	} else {
		changed, err = f.store.SetVersionedField(ctx, it.Partition, it.ID, *version, desc.ID, value, force)
	}
	if err != nil {
		return err
	}

	if changed {
		args := []any{
			"partition", it.Partition,
			"item", it.ID,
			"field", desc.ID,
		}
		if version != nil {
			args = append(args, "version", version.String())
		}
		f.log.Info("field written", args...)
	}
	return nil
}

func templateDefault(tpl *item.Template, fid item.ID) string {
	if def := tpl.Field(fid); def != nil {
		return def.Default
	}
	return ""
}

func sortedIDs(values map[item.ID][]byte) []item.ID {
	ids := make([]item.ID, 0, len(values))
	for fid := range values {
		ids = append(ids, fid)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

func sortedVersionKeys(keys map[item.VersionKey]bool) []item.VersionKey {
	out := make([]item.VersionKey, 0, len(keys))
	for key := range keys {
		out = append(out, key)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Language != out[j].Language {
			return out[i].Language < out[j].Language
		}
		return out[i].Number < out[j].Number
	})
	return out
}
