package serial

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/roach88/arbor/internal/item"
)

// Ext is the file extension of serialized items.
const Ext = ".yaml"

// Ref is a reference to one serialized item: identity and location are
// known, fields and versions are not materialized until Item is called.
type Ref struct {
	File      string
	ID        item.ID
	Partition string
	Path      string
	Name      string
}

// yamlHeader is the cheap subset parsed for references.
type yamlHeader struct {
	ID        string `yaml:"id"`
	Partition string `yaml:"partition"`
	Path      string `yaml:"path"`
	Name      string `yaml:"name"`
}

// yamlItem is the full on-disk shape of one item.
type yamlItem struct {
	ID        string        `yaml:"id"`
	Partition string        `yaml:"partition"`
	Path      string        `yaml:"path"`
	Name      string        `yaml:"name"`
	Parent    string        `yaml:"parent,omitempty"`
	Template  string        `yaml:"template"`
	Branch    string        `yaml:"branch,omitempty"`
	Schema    []yamlDef     `yaml:"schema,omitempty"`
	Shared    []yamlField   `yaml:"shared,omitempty"`
	Versions  []yamlVersion `yaml:"versions,omitempty"`
}

type yamlDef struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	Shared  bool   `yaml:"shared,omitempty"`
	Default string `yaml:"default,omitempty"`
}

type yamlField struct {
	ID    string `yaml:"id"`
	Value string `yaml:"value"`
	Blob  bool   `yaml:"blob,omitempty"`
}

type yamlVersion struct {
	Language string      `yaml:"language"`
	Number   int         `yaml:"number"`
	Fields   []yamlField `yaml:"fields,omitempty"`
}

// ReadRef parses the header of a serialized item file into a reference.
func ReadRef(file string) (*Ref, error) {
	raw, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read reference %s: %w", file, err)
	}

	var h yamlHeader
	if err := yaml.Unmarshal(raw, &h); err != nil {
		return nil, fmt.Errorf("parse reference %s: %w", file, err)
	}

	id, err := uuid.Parse(h.ID)
	if err != nil {
		return nil, fmt.Errorf("parse reference %s: invalid id %q: %w", file, h.ID, err)
	}
	if h.Partition == "" {
		return nil, fmt.Errorf("parse reference %s: partition is required", file)
	}
	if h.Path == "" {
		return nil, fmt.Errorf("parse reference %s: path is required", file)
	}

	return &Ref{
		File:      file,
		ID:        id,
		Partition: h.Partition,
		Path:      h.Path,
		Name:      h.Name,
	}, nil
}

// Item materializes the referenced item by re-reading its file.
//
// Returns (nil, nil) when the file no longer exists: a reference obtained
// from an earlier directory scan may describe an item deleted since, and the
// loader logs that case instead of failing.
func (r *Ref) Item() (*item.Item, error) {
	raw, err := os.ReadFile(r.File)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read item %s: %w", r.File, err)
	}
	return parseItem(r.File, raw)
}

// ChildDir returns the directory holding the reference's children.
func (r *Ref) ChildDir() string {
	return strings.TrimSuffix(r.File, Ext)
}

// HasChildren reports whether any serialized children exist on disk.
func (r *Ref) HasChildren() bool {
	entries, err := os.ReadDir(r.ChildDir())
	if err != nil {
		return false
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), Ext) {
			return true
		}
	}
	return false
}

// Children enumerates the reference's serialized children, ordered by file
// name. With recursive set, descendants of each child are appended after it
// (depth-first).
//
// A missing child directory yields an empty list, not an error.
func (r *Ref) Children(recursive bool) ([]*Ref, error) {
	dir := r.ChildDir()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan children of %s: %w", r.Path, err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), Ext) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var refs []*Ref
	for _, name := range names {
		child, err := ReadRef(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		refs = append(refs, child)
		if recursive {
			grandchildren, err := child.Children(true)
			if err != nil {
				return nil, err
			}
			refs = append(refs, grandchildren...)
		}
	}
	return refs, nil
}

// parseItem decodes and validates a full serialized item.
func parseItem(file string, raw []byte) (*item.Item, error) {
	var y yamlItem
	if err := yaml.Unmarshal(raw, &y); err != nil {
		return nil, fmt.Errorf("parse item %s: %w", file, err)
	}

	id, err := uuid.Parse(y.ID)
	if err != nil {
		return nil, fmt.Errorf("parse item %s: invalid id %q: %w", file, y.ID, err)
	}
	if y.Partition == "" {
		return nil, fmt.Errorf("parse item %s: partition is required", file)
	}
	if y.Path == "" {
		return nil, fmt.Errorf("parse item %s: path is required", file)
	}
	if y.Name == "" {
		return nil, fmt.Errorf("parse item %s: name is required", file)
	}

	tpl, err := uuid.Parse(y.Template)
	if err != nil {
		return nil, fmt.Errorf("parse item %s: invalid template %q: %w", file, y.Template, err)
	}

	it := &item.Item{
		ID:        id,
		Partition: y.Partition,
		Path:      y.Path,
		Name:      y.Name,
		Template:  tpl,
	}

	if y.Parent != "" {
		parent, err := uuid.Parse(y.Parent)
		if err != nil {
			return nil, fmt.Errorf("parse item %s: invalid parent %q: %w", file, y.Parent, err)
		}
		it.Parent = parent
	}
	if y.Branch != "" {
		branch, err := uuid.Parse(y.Branch)
		if err != nil {
			return nil, fmt.Errorf("parse item %s: invalid branch %q: %w", file, y.Branch, err)
		}
		it.Branch = branch
	}

	for _, d := range y.Schema {
		fid, err := uuid.Parse(d.ID)
		if err != nil {
			return nil, fmt.Errorf("parse item %s: schema field %q: invalid id: %w", file, d.Name, err)
		}
		if d.Name == "" {
			return nil, fmt.Errorf("parse item %s: schema field %s: name is required", file, fid)
		}
		it.Schema = append(it.Schema, item.FieldDef{
			ID:      fid,
			Name:    d.Name,
			Shared:  d.Shared,
			Default: d.Default,
		})
	}

	seenShared := make(map[item.ID]bool, len(y.Shared))
	for _, f := range y.Shared {
		desc, err := parseField(file, f, true)
		if err != nil {
			return nil, err
		}
		if seenShared[desc.ID] {
			return nil, fmt.Errorf("parse item %s: duplicate shared field %s", file, desc.ID)
		}
		seenShared[desc.ID] = true
		it.Shared = append(it.Shared, desc)
	}

	seenVersions := make(map[item.VersionKey]bool, len(y.Versions))
	for _, v := range y.Versions {
		if _, err := language.Parse(v.Language); err != nil {
			return nil, fmt.Errorf("parse item %s: invalid language %q: %w", file, v.Language, err)
		}
		if v.Number < 1 {
			return nil, fmt.Errorf("parse item %s: version number %d must be >= 1", file, v.Number)
		}
		key := item.VersionKey{Language: v.Language, Number: v.Number}
		if seenVersions[key] {
			return nil, fmt.Errorf("parse item %s: duplicate version %s", file, key)
		}
		seenVersions[key] = true

		ver := item.Version{Language: v.Language, Number: v.Number}
		seenFields := make(map[item.ID]bool, len(v.Fields))
		for _, f := range v.Fields {
			desc, err := parseField(file, f, false)
			if err != nil {
				return nil, err
			}
			if seenFields[desc.ID] {
				return nil, fmt.Errorf("parse item %s: version %s: duplicate field %s", file, key, desc.ID)
			}
			seenFields[desc.ID] = true
			ver.Fields = append(ver.Fields, desc)
		}
		it.Versions = append(it.Versions, ver)
	}

	return it, nil
}

func parseField(file string, f yamlField, shared bool) (item.FieldDescriptor, error) {
	fid, err := uuid.Parse(f.ID)
	if err != nil {
		return item.FieldDescriptor{}, fmt.Errorf("parse item %s: invalid field id %q: %w", file, f.ID, err)
	}
	return item.FieldDescriptor{
		ID:     fid,
		Value:  f.Value,
		Blob:   f.Blob,
		Shared: shared,
	}, nil
}
