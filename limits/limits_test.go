package limits

import "testing"

func TestTake(t *testing.T) {
	l := MkSysLimit()
	l.Pipes = 2
	if !l.Pipes.Take() || !l.Pipes.Take() {
		t.Fatalf("take failed under limit")
	}
	if l.Pipes.Take() {
		t.Fatalf("take past limit")
	}
	if l.Pipes.Get() != 0 {
		t.Fatalf("failed take changed count: %v", l.Pipes.Get())
	}
	l.Pipes.Give()
	if !l.Pipes.Take() {
		t.Fatalf("take after give")
	}
}
