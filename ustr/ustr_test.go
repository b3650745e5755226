package ustr

import "testing"

func TestDireq(t *testing.T) {
	name := make([]uint8, DIRSIZ)
	copy(name, "abcdefghijklmn")
	if !Ustr("abcdefghijklmnopq").Direq(name) {
		t.Fatalf("long names compare on DIRSIZ bytes")
	}
	short := make([]uint8, DIRSIZ)
	copy(short, "ab")
	if !Ustr("ab").Direq(short) || Ustr("abc").Direq(short) {
		t.Fatalf("short names")
	}
}

func TestSlice(t *testing.T) {
	us := MkUstrSlice([]uint8{'h', 'i', 0, 'x'})
	if us.String() != "hi" {
		t.Fatalf("got %q", us)
	}
	if !MkUstrDot().Isdot() || !DotDot.Isdotdot() {
		t.Fatalf("dots")
	}
}
