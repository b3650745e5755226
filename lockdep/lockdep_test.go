package lockdep

import "bytes"
import "strings"
import "testing"

func TestNoCycle(t *testing.T) {
	l := MkLockdep()
	l.Acquire(nil, "a")
	l.Acquire([]string{"a"}, "b")
	l.Acquire([]string{"a", "b"}, "c")
	l.Acquire([]string{"proc"}, "proc")
	if c := l.Cycles(); len(c) != 0 {
		t.Fatalf("cycles %v", c)
	}
}

func TestCycle(t *testing.T) {
	l := MkLockdep()
	l.Acquire([]string{"bcache"}, "buffer")
	l.Acquire([]string{"buffer"}, "disk")
	l.Acquire([]string{"disk"}, "bcache")
	l.Acquire([]string{"tickslock"}, "proc")
	c := l.Cycles()
	if len(c) != 1 || strings.Join(c[0], ",") != "bcache,buffer,disk" {
		t.Fatalf("cycles %v", c)
	}
	var b bytes.Buffer
	l.Report(&b)
	if !strings.Contains(b.String(), "lock cycle") ||
		!strings.Contains(b.String(), "tickslock -> proc") {
		t.Fatalf("report %q", b.String())
	}
}
