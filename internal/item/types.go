package item

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID identifies an item, field, or template. IDs are stable across runs and
// unique within a partition.
type ID = uuid.UUID

// ParseID parses the canonical string form of an ID.
func ParseID(s string) (ID, error) {
	return uuid.Parse(s)
}

// TemplatesSegment is the distinguished final path segment that marks a
// subtree as structural/type-definition content. Subtrees whose path ends in
// this segment (case-insensitive) are loaded before their siblings.
const TemplatesSegment = "templates"

// DefaultsRecordName is the reserved name of a template's default-values
// record. Defaults records depend on their owning template being fully
// loaded, so the loader defers them instead of merging them in file order,
// and never treats them as deletion candidates.
const DefaultsRecordName = "__defaults"

// OwnerFieldID is the well-known authorship field. It is reset on its own
// path during version patching: cleared only when the serialized version
// explicitly omits it, never as part of the generic absent-field sweep.
var OwnerFieldID = uuid.MustParse("52807595-0f8f-4b20-8d2a-cb71d28c6103")

// TemplateMetaID is the reserved template identity of template-definition
// items themselves. The live store accepts it without a registry entry,
// which breaks the bootstrap cycle when a tree introduces its first types.
var TemplateMetaID = uuid.MustParse("ab86861a-6030-46c5-b394-e8f99e8b87db")

// FieldDescriptor carries one serialized field value.
//
// Value holds the raw text, or base64 when Blob is set. Blob fields are
// always rewritten on apply; text fields only when the live value differs.
type FieldDescriptor struct {
	ID     ID
	Value  string
	Blob   bool
	Shared bool
}

// VersionKey identifies one version of an item: a language variant plus a
// revision number within that language.
type VersionKey struct {
	Language string
	Number   int
}

// String renders the key as "language#number".
func (k VersionKey) String() string {
	return fmt.Sprintf("%s#%d", k.Language, k.Number)
}

// Version is one serialized language/revision variant with its field values.
type Version struct {
	Language string
	Number   int
	Fields   []FieldDescriptor
}

// Key returns the version's identity.
func (v Version) Key() VersionKey {
	return VersionKey{Language: v.Language, Number: v.Number}
}

// Field returns the descriptor for id, or nil if the version omits it.
func (v Version) Field(id ID) *FieldDescriptor {
	for i := range v.Fields {
		if v.Fields[i].ID == id {
			return &v.Fields[i]
		}
	}
	return nil
}

// FieldDef is one field definition inside a template schema.
type FieldDef struct {
	ID      ID
	Name    string
	Shared  bool
	Default string
}

// Template is a structural type: the set of fields its items may carry.
type Template struct {
	ID     ID
	Name   string
	Fields []FieldDef
}

// Field returns the definition for id, or nil if the template does not
// define it.
func (t *Template) Field(id ID) *FieldDef {
	for i := range t.Fields {
		if t.Fields[i].ID == id {
			return &t.Fields[i]
		}
	}
	return nil
}

// FieldByName returns the definition whose name matches, or nil. Used for
// value migration between templates whose field identities differ.
func (t *Template) FieldByName(name string) *FieldDef {
	for i := range t.Fields {
		if t.Fields[i].Name == name {
			return &t.Fields[i]
		}
	}
	return nil
}

// Item is one fully materialized serialized item.
//
// Parent is uuid.Nil for partition roots. Branch is uuid.Nil when the item
// has no structural variant. A non-empty Schema marks the item as a template
// definition; reconciling it registers the schema in the live store.
type Item struct {
	ID        ID
	Partition string
	Path      string
	Name      string
	Parent    ID
	Template  ID
	Branch    ID
	Schema    []FieldDef
	Shared    []FieldDescriptor
	Versions  []Version
}

// IsTemplateDefinition reports whether the item carries a template schema.
func (i *Item) IsTemplateDefinition() bool {
	return len(i.Schema) > 0
}

// SharedField returns the shared descriptor for id, or nil.
func (i *Item) SharedField(id ID) *FieldDescriptor {
	for n := range i.Shared {
		if i.Shared[n].ID == id {
			return &i.Shared[n]
		}
	}
	return nil
}

// IsDefaultsRecord reports whether name denotes a template's default-values
// record. The comparison is case-insensitive to match path handling.
func IsDefaultsRecord(name string) bool {
	return strings.EqualFold(name, DefaultsRecordName)
}

// IsTemplatesSegment reports whether the final segment of path is the
// distinguished templates segment.
func IsTemplatesSegment(path string) bool {
	trimmed := strings.TrimRight(path, "/")
	idx := strings.LastIndex(trimmed, "/")
	return strings.EqualFold(trimmed[idx+1:], TemplatesSegment)
}

// ChildPath joins a parent path and a child name.
func ChildPath(parent, name string) string {
	if parent == "" || parent == "/" {
		return "/" + name
	}
	return strings.TrimRight(parent, "/") + "/" + name
}
