package store

import (
	"context"
	"testing"
)

func TestQuiet_SuppressesHandlersNotJournal(t *testing.T) {
	s := createTestStore(t)
	putPageTemplate(t, s)

	var notified []Change
	s.OnChange(func(c Change) { notified = append(notified, c) })

	restore := s.Quiet()
	createPageItem(t, s, rootID, "home")

	if len(notified) != 0 {
		t.Errorf("handlers saw %d change(s) while quiet", len(notified))
	}
	if got := len(s.Changes()); got == 0 {
		t.Error("journal empty despite mutations")
	}

	restore()
	createPageItem(t, s, childID, "about")
	if len(notified) == 0 {
		t.Error("handlers saw nothing after restore")
	}
}

func TestQuiet_NestedScopesCompose(t *testing.T) {
	s := createTestStore(t)
	putPageTemplate(t, s)

	var notified int
	s.OnChange(func(Change) { notified++ })

	outer := s.Quiet()
	inner := s.Quiet()
	inner()

	// Still quiet: the outer scope has not been restored.
	createPageItem(t, s, rootID, "home")
	if notified != 0 {
		t.Errorf("handlers fired %d time(s) inside outer quiet scope", notified)
	}

	outer()
	createPageItem(t, s, childID, "about")
	if notified == 0 {
		t.Error("handlers still quiet after outer restore")
	}
}

func TestDeserializationComplete_FiresWhileQuiet(t *testing.T) {
	s := createTestStore(t)

	var batch []Change
	s.OnChange(func(c Change) {
		if c.Op == OpBatchComplete {
			batch = append(batch, c)
		}
	})

	restore := s.Quiet()
	defer restore()

	s.DeserializationComplete(context.Background(), testPartition)

	if len(batch) != 1 {
		t.Fatalf("batch-complete notifications = %d, want 1", len(batch))
	}
	if batch[0].Partition != testPartition {
		t.Errorf("partition = %q, want %q", batch[0].Partition, testPartition)
	}
}

func TestChangeString_Canonical(t *testing.T) {
	c := Change{
		Op:        OpFieldWritten,
		Partition: testPartition,
		ItemID:    rootID,
		FieldID:   fieldA,
	}
	want := "field-written partition=master item=99999999-0000-0000-0000-000000000001 field=aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa"
	if got := c.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}

	c = Change{Op: OpItemCreated, Partition: testPartition, ItemID: rootID, Detail: "home"}
	want = `item-created partition=master item=99999999-0000-0000-0000-000000000001 detail="home"`
	if got := c.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestResetJournal(t *testing.T) {
	s := createTestStore(t)
	putPageTemplate(t, s)
	createPageItem(t, s, rootID, "home")

	if len(s.Changes()) == 0 {
		t.Fatal("journal empty after mutations")
	}
	s.ResetJournal()
	if got := len(s.Changes()); got != 0 {
		t.Errorf("journal has %d entries after reset", got)
	}
}
