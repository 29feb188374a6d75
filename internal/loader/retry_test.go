package loader

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/arbor/internal/item"
	"github.com/roach88/arbor/internal/serial"
)

func refAt(path string) *serial.Ref {
	return &serial.Ref{Path: path, Partition: "master"}
}

func TestRetryQueue_TakeLevel(t *testing.T) {
	q := &RetryQueue{}
	errBoom := errors.New("boom")

	q.Add(refAt("/content/a"), RetryPrerequisite, "/content", errBoom)
	q.Add(refAt("/content/b/c"), RetryPrerequisite, "/content/b", errBoom)
	q.Add(refAt("/content/d"), RetryItem, "", errBoom)
	q.Add(refAt("/content/e"), RetryPrerequisite, "/content", errBoom)

	taken := q.TakeLevel("/content")
	assert.Len(t, taken, 2)
	assert.Equal(t, "/content/a", taken[0].Ref.Path)
	assert.Equal(t, "/content/e", taken[1].Ref.Path)
	assert.Equal(t, 2, q.Len())

	// Non-prerequisite entries stay even when levels match.
	taken = q.TakeLevel("")
	assert.Empty(t, taken)
	assert.Equal(t, 2, q.Len())
}

func TestRetryQueue_Drain(t *testing.T) {
	q := &RetryQueue{}
	q.Add(refAt("/a"), RetryTree, "", errors.New("x"))
	q.Add(refAt("/b"), RetryItem, "", errors.New("y"))

	drained := q.Drain()
	assert.Len(t, drained, 2)
	assert.Zero(t, q.Len())
	assert.Empty(t, q.Drain())
}

func TestDuplicateIDChecker(t *testing.T) {
	c := NewDuplicateIDChecker()
	a := &item.Item{ID: homeID, Path: "/content/home"}
	b := &item.Item{ID: homeID, Path: "/content/copy"}

	ok, _ := c.IsConsistent(a)
	assert.True(t, ok)

	c.AddProcessedItem(a)

	ok, reason := c.IsConsistent(b)
	assert.False(t, ok)
	assert.Contains(t, reason, "/content/home")

	// A different identity is unaffected.
	ok, _ = c.IsConsistent(&item.Item{ID: aboutID, Path: "/content/about"})
	assert.True(t, ok)
}
