package serial

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/roach88/arbor/internal/item"
)

func writeFixture(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll() failed: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
}

const homeYAML = `id: 99999999-0000-0000-0000-000000000001
partition: master
path: /content/home
name: home
template: 11111111-1111-1111-1111-111111111111
shared:
  - id: aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa
    value: Home
versions:
  - language: en
    number: 1
    fields:
      - id: bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb
        value: welcome
  - language: de
    number: 1
    fields:
      - id: bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb
        value: willkommen
`

func TestReadRef(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "home.yaml")
	writeFixture(t, file, homeYAML)

	ref, err := ReadRef(file)
	if err != nil {
		t.Fatalf("ReadRef() failed: %v", err)
	}
	if ref.ID != uuid.MustParse("99999999-0000-0000-0000-000000000001") {
		t.Errorf("id = %s", ref.ID)
	}
	if ref.Partition != "master" {
		t.Errorf("partition = %q", ref.Partition)
	}
	if ref.Path != "/content/home" {
		t.Errorf("path = %q", ref.Path)
	}
	if ref.Name != "home" {
		t.Errorf("name = %q", ref.Name)
	}
}

func TestRefItem_FullParse(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "home.yaml")
	writeFixture(t, file, homeYAML)

	ref, err := ReadRef(file)
	if err != nil {
		t.Fatalf("ReadRef() failed: %v", err)
	}
	it, err := ref.Item()
	if err != nil {
		t.Fatalf("Item() failed: %v", err)
	}

	if len(it.Shared) != 1 || it.Shared[0].Value != "Home" || !it.Shared[0].Shared {
		t.Errorf("shared = %+v", it.Shared)
	}
	if len(it.Versions) != 2 {
		t.Fatalf("versions = %d, want 2", len(it.Versions))
	}
	if key := it.Versions[1].Key(); key != (item.VersionKey{Language: "de", Number: 1}) {
		t.Errorf("second version = %s", key)
	}
	if it.Versions[0].Fields[0].Value != "welcome" {
		t.Errorf("en field = %q", it.Versions[0].Fields[0].Value)
	}
}

func TestRefItem_VanishedFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "home.yaml")
	writeFixture(t, file, homeYAML)

	ref, err := ReadRef(file)
	if err != nil {
		t.Fatalf("ReadRef() failed: %v", err)
	}
	if err := os.Remove(file); err != nil {
		t.Fatalf("Remove() failed: %v", err)
	}

	it, err := ref.Item()
	if err != nil {
		t.Fatalf("Item() on vanished file failed: %v", err)
	}
	if it != nil {
		t.Error("vanished file yielded an item")
	}
}

func TestParseItem_Rejections(t *testing.T) {
	base := map[string]string{
		"id":        "99999999-0000-0000-0000-000000000001",
		"partition": "master",
		"path":      "/content/home",
		"name":      "home",
		"template":  "11111111-1111-1111-1111-111111111111",
	}

	render := func(overrides map[string]string, extra string) string {
		var b strings.Builder
		for _, k := range []string{"id", "partition", "path", "name", "template"} {
			v := base[k]
			if o, ok := overrides[k]; ok {
				v = o
			}
			if v != "" {
				b.WriteString(k + ": " + v + "\n")
			}
		}
		b.WriteString(extra)
		return b.String()
	}

	tests := []struct {
		name      string
		overrides map[string]string
		extra     string
		wantErr   string
	}{
		{"bad id", map[string]string{"id": "not-a-uuid"}, "", "invalid id"},
		{"missing partition", map[string]string{"partition": ""}, "", "partition is required"},
		{"missing name", map[string]string{"name": ""}, "", "name is required"},
		{"bad template", map[string]string{"template": "nope"}, "", "invalid template"},
		{"bad language", nil, "versions:\n  - language: abcdefghijklm\n    number: 1\n", "invalid language"},
		{"zero version number", nil, "versions:\n  - language: en\n    number: 0\n", "must be >= 1"},
		{"duplicate version", nil, "versions:\n  - language: en\n    number: 1\n  - language: en\n    number: 1\n", "duplicate version"},
		{
			"duplicate shared field", nil,
			"shared:\n  - id: aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa\n    value: x\n  - id: aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa\n    value: y\n",
			"duplicate shared field",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseItem("test.yaml", []byte(render(tt.overrides, tt.extra)))
			if err == nil {
				t.Fatal("parseItem() succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestChildren_OrderAndRecursion(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, filepath.Join(dir, "content.yaml"), `id: 99999999-0000-0000-0000-000000000001
partition: master
path: /content
name: content
template: 11111111-1111-1111-1111-111111111111
`)
	writeFixture(t, filepath.Join(dir, "content", "b.yaml"), `id: 99999999-0000-0000-0000-000000000002
partition: master
path: /content/b
name: b
template: 11111111-1111-1111-1111-111111111111
`)
	writeFixture(t, filepath.Join(dir, "content", "a.yaml"), `id: 99999999-0000-0000-0000-000000000003
partition: master
path: /content/a
name: a
template: 11111111-1111-1111-1111-111111111111
`)
	writeFixture(t, filepath.Join(dir, "content", "a", "deep.yaml"), `id: 99999999-0000-0000-0000-000000000004
partition: master
path: /content/a/deep
name: deep
template: 11111111-1111-1111-1111-111111111111
`)

	root, err := ReadRef(filepath.Join(dir, "content.yaml"))
	if err != nil {
		t.Fatalf("ReadRef() failed: %v", err)
	}
	if !root.HasChildren() {
		t.Error("HasChildren() = false")
	}

	flat, err := root.Children(false)
	if err != nil {
		t.Fatalf("Children(false) failed: %v", err)
	}
	if len(flat) != 2 || flat[0].Name != "a" || flat[1].Name != "b" {
		t.Errorf("flat children = %v", names(flat))
	}

	deep, err := root.Children(true)
	if err != nil {
		t.Fatalf("Children(true) failed: %v", err)
	}
	if len(deep) != 3 || deep[0].Name != "a" || deep[1].Name != "deep" || deep[2].Name != "b" {
		t.Errorf("recursive children = %v", names(deep))
	}
}

func TestChildren_MissingDirIsEmpty(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "home.yaml")
	writeFixture(t, file, homeYAML)

	ref, err := ReadRef(file)
	if err != nil {
		t.Fatalf("ReadRef() failed: %v", err)
	}
	if ref.HasChildren() {
		t.Error("HasChildren() = true for leaf")
	}
	children, err := ref.Children(true)
	if err != nil {
		t.Fatalf("Children() failed: %v", err)
	}
	if len(children) != 0 {
		t.Errorf("children = %v, want none", names(children))
	}
}

func names(refs []*Ref) []string {
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = r.Name
	}
	return out
}
