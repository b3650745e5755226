package uprog

import "testing"

import "rv6/defs"

func TestTokenize(t *testing.T) {
	toks := tokenize("cat<in |wc>out&;ls  -l ")
	want := []string{"cat", "<", "in", "|", "wc", ">", "out", "&", ";", "ls", "-l"}
	if len(toks) != len(want) {
		t.Fatalf("got %q", toks)
	}
	for i := range want {
		if toks[i] != want[i] {
			t.Fatalf("tok %d: got %q want %q", i, toks[i], want[i])
		}
	}
}

func TestParse(t *testing.T) {
	c, ok := parsecmd("echo hi > f ; cat < f | wc")
	if !ok {
		t.Fatalf("parse failed")
	}
	l, ok := c.(*listcmd_t)
	if !ok {
		t.Fatalf("not a list: %T", c)
	}
	r, ok := l.left.(*redircmd_t)
	if !ok || r.file != "f" || r.fd != 1 || r.mode&defs.O_CREATE == 0 {
		t.Fatalf("bad redirection %+v", l.left)
	}
	if e := r.cmd.(*execcmd_t); len(e.argv) != 2 || e.argv[1] != "hi" {
		t.Fatalf("bad argv %q", e.argv)
	}
	p, ok := l.right.(*pipecmd_t)
	if !ok {
		t.Fatalf("not a pipe: %T", l.right)
	}
	if in := p.left.(*redircmd_t); in.fd != 0 || in.mode != defs.O_RDONLY {
		t.Fatalf("bad input redirection %+v", in)
	}
}

func TestParseErrors(t *testing.T) {
	for _, s := range []string{"cat >", "(ls", "ls )", "a < |"} {
		if _, ok := parsecmd(s); ok {
			t.Errorf("%q parsed", s)
		}
	}
	c, ok := parsecmd("sleep 10 &")
	if !ok {
		t.Fatalf("background parse failed")
	}
	if _, ok := c.(*backcmd_t); !ok {
		t.Fatalf("not background: %T", c)
	}
}
