package dropnotify

import (
	"testing"
	"time"
)

func fired(done <-chan struct{}) bool {
	select {
	case <-done:
		return true
	case <-time.After(20 * time.Millisecond):
		return false
	}
}

func TestFiresWhenLastClonedReleased(t *testing.T) {
	h, done := New()
	c1 := h.Clone()
	c2 := c1.Clone()

	h.Release()
	if fired(done) {
		t.Fatal("fired before all clones released")
	}
	c1.Release()
	if fired(done) {
		t.Fatal("fired before all clones released")
	}
	c2.Release()
	if !fired(done) {
		t.Fatal("did not fire after last clone released")
	}
}

func TestFiresImmediatelyWithNoClones(t *testing.T) {
	h, done := New()
	h.Release()
	if !fired(done) {
		t.Fatal("did not fire after sole holder released")
	}
}

func TestRecursiveTreeDrain(t *testing.T) {
	h, done := New()
	const n = 50
	children := make([]*Holder, n)
	for i := range children {
		children[i] = h.Clone()
	}
	h.Release()

	for _, c := range children[:n-1] {
		c.Release()
	}
	if fired(done) {
		t.Fatal("fired before last child released")
	}
	children[n-1].Release()
	if !fired(done) {
		t.Fatal("did not fire after last child released")
	}
}
