package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/roach88/arbor/internal/item"
)

// Fixed identities reused across store tests.
var (
	tplPage   = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	tplPost   = uuid.MustParse("22222222-2222-2222-2222-222222222222")
	fieldA    = uuid.MustParse("aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa")
	fieldB    = uuid.MustParse("bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb")
	fieldC    = uuid.MustParse("cccccccc-cccc-cccc-cccc-cccccccccccc")
	fieldD    = uuid.MustParse("dddddddd-dddd-dddd-dddd-dddddddddddd")
	rootID    = uuid.MustParse("99999999-0000-0000-0000-000000000001")
	childID   = uuid.MustParse("99999999-0000-0000-0000-000000000002")
	grandID   = uuid.MustParse("99999999-0000-0000-0000-000000000003")
)

const testPartition = "master"

// createTestStore creates a store backed by a temp database.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// putPageTemplate registers the standard two-field page template.
func putPageTemplate(t *testing.T, s *Store) {
	t.Helper()
	err := s.PutTemplate(context.Background(), testPartition, item.Template{
		ID:   tplPage,
		Name: "page",
		Fields: []item.FieldDef{
			{ID: fieldA, Name: "title"},
			{ID: fieldB, Name: "body"},
		},
	})
	if err != nil {
		t.Fatalf("PutTemplate() failed: %v", err)
	}
}

// createPageItem creates a root-level page item.
func createPageItem(t *testing.T, s *Store, id item.ID, name string) *Item {
	t.Helper()
	it, err := s.CreateItem(context.Background(), testPartition, id, uuid.Nil, name, tplPage, uuid.Nil)
	if err != nil {
		t.Fatalf("CreateItem(%s) failed: %v", name, err)
	}
	return it
}

// countOps counts journal entries with the given op.
func countOps(s *Store, op Op) int {
	n := 0
	for _, c := range s.Changes() {
		if c.Op == op {
			n++
		}
	}
	return n
}
