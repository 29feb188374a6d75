package item

import (
	"testing"

	"github.com/google/uuid"
)

func TestIsDefaultsRecord(t *testing.T) {
	cases := []struct {
		name string
		want bool
	}{
		{"__defaults", true},
		{"__Defaults", true},
		{"__DEFAULTS", true},
		{"defaults", false},
		{"Home", false},
		{"", false},
	}

	for _, c := range cases {
		if got := IsDefaultsRecord(c.name); got != c.want {
			t.Errorf("IsDefaultsRecord(%q) = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestIsTemplatesSegment(t *testing.T) {
	cases := []struct {
		path string
		want bool
	}{
		{"/templates", true},
		{"/content/Templates", true},
		{"/content/templates/", true},
		{"/content/templates/page", false},
		{"/content", false},
		{"/mytemplates", false},
	}

	for _, c := range cases {
		if got := IsTemplatesSegment(c.path); got != c.want {
			t.Errorf("IsTemplatesSegment(%q) = %v, want %v", c.path, got, c.want)
		}
	}
}

func TestChildPath(t *testing.T) {
	cases := []struct {
		parent, name, want string
	}{
		{"/", "content", "/content"},
		{"", "content", "/content"},
		{"/content", "home", "/content/home"},
		{"/content/", "home", "/content/home"},
	}

	for _, c := range cases {
		if got := ChildPath(c.parent, c.name); got != c.want {
			t.Errorf("ChildPath(%q, %q) = %q, want %q", c.parent, c.name, got, c.want)
		}
	}
}

func TestVersionKeyString(t *testing.T) {
	k := VersionKey{Language: "en", Number: 3}
	if k.String() != "en#3" {
		t.Errorf("String() = %q, want %q", k.String(), "en#3")
	}
}

func TestTemplateFieldLookup(t *testing.T) {
	title := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	body := uuid.MustParse("22222222-2222-2222-2222-222222222222")
	tpl := &Template{
		ID:   uuid.New(),
		Name: "Page",
		Fields: []FieldDef{
			{ID: title, Name: "Title"},
			{ID: body, Name: "Body", Shared: true},
		},
	}

	if def := tpl.Field(title); def == nil || def.Name != "Title" {
		t.Errorf("Field(title) = %v, want Title def", def)
	}
	if def := tpl.Field(uuid.New()); def != nil {
		t.Errorf("Field(random) = %v, want nil", def)
	}
	if def := tpl.FieldByName("Body"); def == nil || def.ID != body {
		t.Errorf("FieldByName(Body) = %v, want body def", def)
	}
	if def := tpl.FieldByName("Missing"); def != nil {
		t.Errorf("FieldByName(Missing) = %v, want nil", def)
	}
}

func TestItemHelpers(t *testing.T) {
	fld := uuid.MustParse("33333333-3333-3333-3333-333333333333")
	it := &Item{
		Name:   "Page",
		Shared: []FieldDescriptor{{ID: fld, Value: "x", Shared: true}},
	}

	if it.IsTemplateDefinition() {
		t.Error("item without schema reported as template definition")
	}
	it.Schema = []FieldDef{{ID: uuid.New(), Name: "Title"}}
	if !it.IsTemplateDefinition() {
		t.Error("item with schema not reported as template definition")
	}

	if d := it.SharedField(fld); d == nil || d.Value != "x" {
		t.Errorf("SharedField = %v, want value x", d)
	}
	if d := it.SharedField(uuid.New()); d != nil {
		t.Errorf("SharedField(random) = %v, want nil", d)
	}
}
