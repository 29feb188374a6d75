package store

import (
	"context"
	"errors"
	"testing"

	"github.com/roach88/arbor/internal/item"
)

func TestTemplate_MetaAlwaysResolves(t *testing.T) {
	s := createTestStore(t)

	tpl, err := s.Template(context.Background(), testPartition, item.TemplateMetaID)
	if err != nil {
		t.Fatalf("Template(meta) failed: %v", err)
	}
	if tpl.ID != item.TemplateMetaID {
		t.Errorf("id = %s, want meta", tpl.ID)
	}
	if len(tpl.Fields) != 0 {
		t.Errorf("meta template has %d fields, want 0", len(tpl.Fields))
	}
}

func TestTemplate_Unknown(t *testing.T) {
	s := createTestStore(t)

	_, err := s.Template(context.Background(), testPartition, tplPage)
	if !errors.Is(err, ErrUnknownTemplate) {
		t.Fatalf("err = %v, want ErrUnknownTemplate", err)
	}
}

func TestPutTemplate_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	putPageTemplate(t, s)

	tpl, err := s.Template(context.Background(), testPartition, tplPage)
	if err != nil {
		t.Fatalf("Template() failed: %v", err)
	}
	if tpl.Name != "page" {
		t.Errorf("name = %q, want %q", tpl.Name, "page")
	}
	if len(tpl.Fields) != 2 {
		t.Fatalf("fields = %d, want 2", len(tpl.Fields))
	}
	if def := tpl.Field(fieldA); def == nil || def.Name != "title" {
		t.Errorf("field A = %+v, want title", def)
	}
	if def := tpl.FieldByName("body"); def == nil || def.ID != fieldB {
		t.Errorf("FieldByName(body) = %+v, want field B", def)
	}
}

func TestPutTemplate_IdenticalIsNoOp(t *testing.T) {
	s := createTestStore(t)
	putPageTemplate(t, s)

	before := countOps(s, OpTemplateStored)
	putPageTemplate(t, s)
	if got := countOps(s, OpTemplateStored); got != before {
		t.Errorf("identical put recorded %d change(s)", got-before)
	}
}

func TestPutTemplate_Replace(t *testing.T) {
	s := createTestStore(t)
	putPageTemplate(t, s)

	ctx := context.Background()
	err := s.PutTemplate(ctx, testPartition, item.Template{
		ID:   tplPage,
		Name: "page",
		Fields: []item.FieldDef{
			{ID: fieldA, Name: "title", Default: "Untitled"},
		},
	})
	if err != nil {
		t.Fatalf("PutTemplate() failed: %v", err)
	}

	tpl, err := s.Template(ctx, testPartition, tplPage)
	if err != nil {
		t.Fatalf("Template() failed: %v", err)
	}
	if len(tpl.Fields) != 1 {
		t.Fatalf("fields = %d, want 1", len(tpl.Fields))
	}
	if tpl.Fields[0].Default != "Untitled" {
		t.Errorf("default = %q, want %q", tpl.Fields[0].Default, "Untitled")
	}
	if got := countOps(s, OpTemplateStored); got != 2 {
		t.Errorf("template-stored entries = %d, want 2", got)
	}
}
