package serial

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Source is an opened serialized tree root directory.
type Source struct {
	root string
}

// Open verifies the root directory exists and returns a Source over it.
func Open(root string) (*Source, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("open serialized source: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("open serialized source: not a directory: %s", root)
	}
	return &Source{root: root}, nil
}

// Root returns the source directory.
func (s *Source) Root() string {
	return s.root
}

// Roots enumerates the top-level serialized references, ordered by file
// name. Each one is the root of an independently loadable tree.
func (s *Source) Roots() ([]*Ref, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("scan source roots: %w", err)
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
		ref, err := ReadRef(filepath.Join(s.root, name))
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// RefFor resolves the reference for a logical item path, or nil if no file
// describes that path. This is the reverse lookup used to find the desired
// state for a live node.
func (s *Source) RefFor(path string) (*Ref, error) {
	rel := strings.Trim(path, "/")
	if rel == "" {
		return nil, fmt.Errorf("resolve reference: empty path")
	}

	file := filepath.Join(s.root, filepath.FromSlash(rel)+Ext)
	if _, err := os.Stat(file); os.IsNotExist(err) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("resolve reference %s: %w", path, err)
	}
	return ReadRef(file)
}
