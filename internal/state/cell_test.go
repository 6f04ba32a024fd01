package state_test

import (
	"testing"

	"surveydesk/internal/state"
)

func TestCellSubscribe(t *testing.T) {
	c := state.NewCell(1)
	var seen []int
	cancel := c.Subscribe(func(v int) { seen = append(seen, v) })
	c.Set(2)
	c.Update(func(v int) int { return v * 10 })
	cancel()
	c.Set(3)
	if len(seen) != 3 || seen[0] != 1 || seen[1] != 2 || seen[2] != 20 {
		t.Fatalf("unexpected notifications %v", seen)
	}
	if c.Get() != 3 {
		t.Fatalf("get: %d", c.Get())
	}
}

func TestCallbackMayReadCell(t *testing.T) {
	c := state.NewCell("a")
	var inner string
	c.Subscribe(func(string) { inner = c.Get() })
	c.Set("b")
	if inner != "b" {
		t.Fatalf("callback read %q", inner)
	}
}
