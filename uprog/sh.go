package uprog

import "strings"

import "rv6/defs"
import "rv6/umode"

// parsed shell commands
type cmd_i interface{}

type execcmd_t struct {
	argv []string
}

type redircmd_t struct {
	cmd  cmd_i
	file string
	mode defs.Fdopt_t
	fd   int
}

type pipecmd_t struct {
	left  cmd_i
	right cmd_i
}

type listcmd_t struct {
	left  cmd_i
	right cmd_i
}

type backcmd_t struct {
	cmd cmd_i
}

const symbols = "<|>&;()"

type parser_t struct {
	toks []string
}

func tokenize(s string) []string {
	var toks []string
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case isspace(c):
			i++
		case strings.IndexByte(symbols, c) >= 0:
			toks = append(toks, string(c))
			i++
		default:
			j := i
			for j < len(s) && !isspace(s[j]) && strings.IndexByte(symbols, s[j]) < 0 {
				j++
			}
			toks = append(toks, s[i:j])
			i = j
		}
	}
	return toks
}

func (ps *parser_t) peek(any string) bool {
	return len(ps.toks) > 0 && strings.Contains(any, ps.toks[0]) &&
		len(ps.toks[0]) == 1
}

func (ps *parser_t) next() string {
	t := ps.toks[0]
	ps.toks = ps.toks[1:]
	return t
}

func (ps *parser_t) line() (cmd_i, bool) {
	c, ok := ps.pipe()
	if !ok {
		return nil, false
	}
	for ps.peek("&") {
		ps.next()
		c = &backcmd_t{cmd: c}
	}
	if ps.peek(";") {
		ps.next()
		if len(ps.toks) == 0 {
			return c, true
		}
		r, ok := ps.line()
		if !ok {
			return nil, false
		}
		c = &listcmd_t{left: c, right: r}
	}
	return c, true
}

func (ps *parser_t) pipe() (cmd_i, bool) {
	c, ok := ps.exec()
	if !ok {
		return nil, false
	}
	if ps.peek("|") {
		ps.next()
		r, ok := ps.pipe()
		if !ok {
			return nil, false
		}
		c = &pipecmd_t{left: c, right: r}
	}
	return c, true
}

func (ps *parser_t) redirs(c cmd_i) (cmd_i, bool) {
	for ps.peek("<>") {
		t := ps.next()
		if len(ps.toks) == 0 || ps.peek(symbols) {
			return nil, false
		}
		f := ps.next()
		if t == "<" {
			c = &redircmd_t{cmd: c, file: f, mode: defs.O_RDONLY, fd: 0}
		} else {
			c = &redircmd_t{cmd: c, file: f,
				mode: defs.O_WRONLY | defs.O_CREATE | defs.O_TRUNC, fd: 1}
		}
	}
	return c, true
}

func (ps *parser_t) exec() (cmd_i, bool) {
	if ps.peek("(") {
		ps.next()
		c, ok := ps.line()
		if !ok || !ps.peek(")") {
			return nil, false
		}
		ps.next()
		return ps.redirs(c)
	}
	ec := &execcmd_t{}
	var c cmd_i = ec
	for len(ps.toks) > 0 && !ps.peek("|)&;") {
		if ps.peek("<>") {
			var ok bool
			if c, ok = ps.redirs(c); !ok {
				return nil, false
			}
			continue
		}
		ec.argv = append(ec.argv, ps.next())
		if len(ec.argv) >= defs.MAXARG {
			return nil, false
		}
	}
	return c, true
}

func parsecmd(s string) (cmd_i, bool) {
	ps := &parser_t{toks: tokenize(s)}
	c, ok := ps.line()
	if !ok || len(ps.toks) != 0 {
		return nil, false
	}
	return c, true
}

// runs c in the calling process, which exits with the result.
func runcmd(u *umode.Uctx_t, c cmd_i) int {
	switch c := c.(type) {
	case *execcmd_t:
		if len(c.argv) == 0 {
			return 0
		}
		u.Exec(c.argv[0], c.argv)
		u.Fprintf(2, "exec %s failed\n", c.argv[0])
		return 1
	case *redircmd_t:
		u.Close(c.fd)
		if u.Open(c.file, c.mode) < 0 {
			u.Fprintf(2, "open %s failed\n", c.file)
			return 1
		}
		return runcmd(u, c.cmd)
	case *listcmd_t:
		if forkrun(u, c.left) > 0 {
			u.Wait(nil)
		}
		return runcmd(u, c.right)
	case *pipecmd_t:
		var p [2]int
		if u.Pipe(&p) < 0 {
			u.Fprintf(2, "pipe failed\n")
			return 1
		}
		lp := u.Fork(func(u *umode.Uctx_t) int {
			u.Close(1)
			u.Dup(p[1])
			u.Close(p[0])
			u.Close(p[1])
			return runcmd(u, c.left)
		})
		rp := u.Fork(func(u *umode.Uctx_t) int {
			u.Close(0)
			u.Dup(p[0])
			u.Close(p[0])
			u.Close(p[1])
			return runcmd(u, c.right)
		})
		u.Close(p[0])
		u.Close(p[1])
		if lp > 0 {
			u.Wait(nil)
		}
		if rp > 0 {
			u.Wait(nil)
		}
		return 0
	case *backcmd_t:
		forkrun(u, c.cmd)
		return 0
	}
	panic("runcmd")
}

func forkrun(u *umode.Uctx_t, c cmd_i) int {
	pid := u.Fork(func(u *umode.Uctx_t) int {
		return runcmd(u, c)
	})
	if pid < 0 {
		u.Fprintf(2, "fork failed\n")
	}
	return pid
}

// reads a line from fd 0. ok is false at end of input.
func getcmd(u *umode.Uctx_t) (string, bool) {
	u.Fprintf(2, "$ ")
	var line []uint8
	var c [1]uint8
	for len(line) < 100 {
		if u.Read(0, c[:]) < 1 {
			break
		}
		line = append(line, c[0])
		if c[0] == '\n' || c[0] == '\r' {
			break
		}
	}
	if len(line) == 0 {
		return "", false
	}
	return string(line), true
}

func shmain(u *umode.Uctx_t, argv []string) int {
	// ensure that three file descriptors are open.
	for {
		fd := u.Open("console", defs.O_RDWR)
		if fd < 0 {
			break
		}
		if fd >= 3 {
			u.Close(fd)
			break
		}
	}
	// read and run input commands.
	for {
		s, ok := getcmd(u)
		if !ok {
			return 0
		}
		s = strings.TrimRight(s, "\r\n")
		if f := strings.Fields(s); len(f) == 2 && f[0] == "cd" {
			// chdir must be called by the parent, not the child.
			if u.Chdir(f[1]) < 0 {
				u.Fprintf(2, "cannot cd %s\n", f[1])
			}
			continue
		}
		c, ok := parsecmd(s)
		if !ok {
			u.Fprintf(2, "syntax error\n")
			continue
		}
		if forkrun(u, c) > 0 {
			u.Wait(nil)
		}
	}
}
