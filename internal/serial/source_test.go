package serial

import (
	"path/filepath"
	"testing"
)

func TestOpen_NotADirectory(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "home.yaml")
	writeFixture(t, file, homeYAML)

	if _, err := Open(file); err == nil {
		t.Error("Open() on a file succeeded, want error")
	}
	if _, err := Open(filepath.Join(dir, "missing")); err == nil {
		t.Error("Open() on missing dir succeeded, want error")
	}
}

func TestRoots_SortedTopLevel(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, filepath.Join(dir, "media.yaml"), `id: 99999999-0000-0000-0000-000000000005
partition: master
path: /media
name: media
template: 11111111-1111-1111-1111-111111111111
`)
	writeFixture(t, filepath.Join(dir, "content.yaml"), `id: 99999999-0000-0000-0000-000000000001
partition: master
path: /content
name: content
template: 11111111-1111-1111-1111-111111111111
`)
	// Child directories are not roots.
	writeFixture(t, filepath.Join(dir, "content", "home.yaml"), homeYAML)

	src, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	roots, err := src.Roots()
	if err != nil {
		t.Fatalf("Roots() failed: %v", err)
	}
	if len(roots) != 2 || roots[0].Name != "content" || roots[1].Name != "media" {
		t.Errorf("roots = %v", names(roots))
	}
}

func TestRefFor(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, filepath.Join(dir, "content.yaml"), `id: 99999999-0000-0000-0000-000000000001
partition: master
path: /content
name: content
template: 11111111-1111-1111-1111-111111111111
`)
	writeFixture(t, filepath.Join(dir, "content", "home.yaml"), homeYAML)

	src, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}

	ref, err := src.RefFor("/content/home")
	if err != nil {
		t.Fatalf("RefFor() failed: %v", err)
	}
	if ref == nil || ref.Path != "/content/home" {
		t.Errorf("ref = %+v", ref)
	}

	ref, err = src.RefFor("/content/missing")
	if err != nil {
		t.Fatalf("RefFor(missing) failed: %v", err)
	}
	if ref != nil {
		t.Errorf("missing path resolved to %+v", ref)
	}

	if _, err := src.RefFor(""); err == nil {
		t.Error("RefFor(empty) succeeded, want error")
	}
}
