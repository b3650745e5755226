// Package uprog holds the user programs installed on file system images:
// init, the shell and the small utilities. Importing it registers them.
package uprog

import "bytes"
import "strconv"
import "strings"

import "rv6/defs"
import "rv6/fs"
import "rv6/stat"
import "rv6/umode"
import "rv6/ustr"
import "rv6/util"

func init() {
	umode.Register("init", initmain)
	umode.Register("sh", shmain)
	umode.Register("echo", echo)
	umode.Register("cat", cat)
	umode.Register("ls", ls)
	umode.Register("mkdir", mkdir)
	umode.Register("rm", rm)
	umode.Register("ln", ln)
	umode.Register("wc", wc)
	umode.Register("kill", kill)
	umode.Register("stressfs", stressfs)
}

// the programs mkfs installs.
var Installed = []string{"init", "sh", "echo", "cat", "ls", "mkdir", "rm",
	"ln", "wc", "kill", "stressfs"}

// opens the console as fds 0, 1 and 2, then keeps a shell running on it
// and reaps orphans.
func initmain(u *umode.Uctx_t, argv []string) int {
	if u.Open("console", defs.O_RDWR) < 0 {
		u.Mknod("console", defs.D_CONSOLE, 0)
		u.Open("console", defs.O_RDWR)
	}
	// stdout
	u.Dup(0)
	// stderr
	u.Dup(0)
	for {
		u.Printf("init: starting sh\n")
		pid := u.Fork(func(u *umode.Uctx_t) int {
			u.Exec("sh", []string{"sh"})
			u.Printf("init: exec sh failed\n")
			return 1
		})
		if pid < 0 {
			u.Printf("init: fork failed\n")
			return 1
		}
		for {
			// this call to wait() returns if the shell exits, or if a
			// parentless process exits.
			wpid := u.Wait(nil)
			if wpid == pid {
				// the shell exited; restart it.
				break
			} else if wpid < 0 {
				u.Printf("init: wait returned an error\n")
				return 1
			}
			// it was a parentless process; do nothing.
		}
	}
}

func echo(u *umode.Uctx_t, argv []string) int {
	for i := 1; i < len(argv); i++ {
		sep := " "
		if i+1 == len(argv) {
			sep = "\n"
		}
		u.Write(1, []uint8(argv[i]+sep))
	}
	if len(argv) <= 1 {
		u.Write(1, []uint8("\n"))
	}
	return 0
}

func catfd(u *umode.Uctx_t, fd int) bool {
	buf := make([]uint8, 512)
	for {
		n := u.Read(fd, buf)
		if n == 0 {
			return true
		}
		if n < 0 {
			u.Fprintf(2, "cat: read error\n")
			return false
		}
		if u.Write(1, buf[:n]) != n {
			u.Fprintf(2, "cat: write error\n")
			return false
		}
	}
}

func cat(u *umode.Uctx_t, argv []string) int {
	if len(argv) <= 1 {
		if !catfd(u, 0) {
			return 1
		}
		return 0
	}
	for _, f := range argv[1:] {
		fd := u.Open(f, defs.O_RDONLY)
		if fd < 0 {
			u.Fprintf(2, "cat: cannot open %s\n", f)
			return 1
		}
		ok := catfd(u, fd)
		u.Close(fd)
		if !ok {
			return 1
		}
	}
	return 0
}

func lsline(u *umode.Uctx_t, name string, st *stat.Stat_t) {
	if len(name) < fs.DIRSIZ {
		name += strings.Repeat(" ", fs.DIRSIZ-len(name))
	}
	u.Printf("%s %d %d %d\n", name, st.Type(), st.Rino(), st.Size())
}

func ls1(u *umode.Uctx_t, path string) bool {
	fd := u.Open(path, defs.O_RDONLY)
	if fd < 0 {
		u.Fprintf(2, "ls: cannot open %s\n", path)
		return false
	}
	var st stat.Stat_t
	if u.Fstat(fd, &st) < 0 {
		u.Fprintf(2, "ls: cannot stat %s\n", path)
		u.Close(fd)
		return false
	}
	if int16(st.Type()) != defs.T_DIR {
		lsline(u, path, &st)
		u.Close(fd)
		return true
	}
	de := make([]uint8, fs.DIRENTSZ)
	for u.Read(fd, de) == len(de) {
		if util.Readn(de, 2, 0) == 0 {
			continue
		}
		name := string(ustr.MkUstrSlice(de[2:]))
		var est stat.Stat_t
		efd := u.Open(path+"/"+name, defs.O_RDONLY)
		if efd < 0 || u.Fstat(efd, &est) < 0 {
			u.Fprintf(2, "ls: cannot stat %s\n", name)
		} else {
			lsline(u, name, &est)
		}
		if efd >= 0 {
			u.Close(efd)
		}
	}
	u.Close(fd)
	return true
}

func ls(u *umode.Uctx_t, argv []string) int {
	if len(argv) < 2 {
		argv = append(argv, ".")
	}
	ret := 0
	for _, p := range argv[1:] {
		if !ls1(u, p) {
			ret = 1
		}
	}
	return ret
}

func mkdir(u *umode.Uctx_t, argv []string) int {
	if len(argv) < 2 {
		u.Fprintf(2, "Usage: mkdir files...\n")
		return 1
	}
	for _, p := range argv[1:] {
		if u.Mkdir(p) < 0 {
			u.Fprintf(2, "mkdir: %s failed to create\n", p)
			return 1
		}
	}
	return 0
}

func rm(u *umode.Uctx_t, argv []string) int {
	if len(argv) < 2 {
		u.Fprintf(2, "Usage: rm files...\n")
		return 1
	}
	for _, p := range argv[1:] {
		if u.Unlink(p) < 0 {
			u.Fprintf(2, "rm: %s failed to delete\n", p)
			return 1
		}
	}
	return 0
}

func ln(u *umode.Uctx_t, argv []string) int {
	if len(argv) != 3 {
		u.Fprintf(2, "Usage: ln old new\n")
		return 1
	}
	if u.Link(argv[1], argv[2]) < 0 {
		u.Fprintf(2, "link %s %s: failed\n", argv[1], argv[2])
		return 1
	}
	return 0
}

func isspace(c uint8) bool {
	return c == ' ' || c == '\r' || c == '\t' || c == '\n' || c == '\v'
}

func wcfd(u *umode.Uctx_t, fd int, name string) bool {
	l, w, c := 0, 0, 0
	inword := false
	buf := make([]uint8, 512)
	for {
		n := u.Read(fd, buf)
		if n == 0 {
			break
		}
		if n < 0 {
			u.Fprintf(2, "wc: read error\n")
			return false
		}
		for _, b := range buf[:n] {
			c++
			if b == '\n' {
				l++
			}
			if isspace(b) {
				inword = false
			} else if !inword {
				w++
				inword = true
			}
		}
	}
	u.Printf("%d %d %d %s\n", l, w, c, name)
	return true
}

func wc(u *umode.Uctx_t, argv []string) int {
	if len(argv) <= 1 {
		if !wcfd(u, 0, "") {
			return 1
		}
		return 0
	}
	for _, f := range argv[1:] {
		fd := u.Open(f, defs.O_RDONLY)
		if fd < 0 {
			u.Fprintf(2, "wc: cannot open %s\n", f)
			return 1
		}
		ok := wcfd(u, fd, f)
		u.Close(fd)
		if !ok {
			return 1
		}
	}
	return 0
}

func kill(u *umode.Uctx_t, argv []string) int {
	if len(argv) < 2 {
		u.Fprintf(2, "usage: kill pid...\n")
		return 1
	}
	for _, a := range argv[1:] {
		pid, err := strconv.Atoi(a)
		if err != nil {
			u.Fprintf(2, "kill: bad pid %s\n", a)
			return 1
		}
		u.Kill(pid)
	}
	return 0
}

// four children each write and read back their own file concurrently.
func stressfs(u *umode.Uctx_t, argv []string) int {
	const nchild = 4
	const nblk = 20
	u.Printf("stressfs starting\n")
	for i := 0; i < nchild; i++ {
		id := i
		pid := u.Fork(func(u *umode.Uctx_t) int {
			path := "stressfs" + strconv.Itoa(id)
			data := bytes.Repeat([]uint8{'a' + uint8(id)}, 512)
			u.Printf("write %d\n", id)
			fd := u.Open(path, defs.O_CREATE|defs.O_RDWR)
			if fd < 0 {
				return 1
			}
			for j := 0; j < nblk; j++ {
				if u.Write(fd, data) != len(data) {
					return 1
				}
			}
			u.Close(fd)
			u.Printf("read\n")
			fd = u.Open(path, defs.O_RDONLY)
			if fd < 0 {
				return 1
			}
			buf := make([]uint8, len(data))
			for j := 0; j < nblk; j++ {
				if u.Read(fd, buf) != len(buf) || string(buf) != string(data) {
					return 1
				}
			}
			u.Close(fd)
			return 0
		})
		if pid < 0 {
			u.Fprintf(2, "stressfs: fork failed\n")
			return 1
		}
	}
	ret := 0
	for i := 0; i < nchild; i++ {
		var st int
		if u.Wait(&st) < 0 || st != 0 {
			ret = 1
		}
	}
	return ret
}
