package kernel

import "strings"
import "testing"
import "time"

import "rv6/cpu"
import "rv6/defs"
import "rv6/proc"
import "rv6/riscv"
import "rv6/stat"
import "rv6/umode"

var fstypes = []string{UFS, LFS}

var testprogs = []string{"forktest", "filetest", "killtest", "argtest",
	"faulttest"}

func init() {
	umode.Register("forktest", forktest)
	umode.Register("filetest", filetest)
	umode.Register("killtest", killtest)
	umode.Register("argtest", argtest)
	umode.Register("faulttest", faulttest)
}

// the child sees the memory the parent had at fork, not later writes.
func forktest(u *umode.Uctx_t, argv []string) int {
	va := u.Sbrk(riscv.PGSIZE)
	if va < 0 {
		return 1
	}
	u.Store8(uint64(va), 'a')
	me := u.Getpid()
	pid := u.Fork(func(u *umode.Uctx_t) int {
		if u.Tf().A0 != 0 {
			return 2
		}
		if u.Getpid() == me {
			return 3
		}
		u.Sleep(3)
		if u.Load8(uint64(va)) != 'a' {
			return 4
		}
		u.Store8(uint64(va), 'c')
		return 0
	})
	if pid <= 0 || pid == me {
		return 5
	}
	u.Store8(uint64(va), 'b')
	var st int
	if u.Wait(&st) != pid {
		return 6
	}
	if st != 0 {
		return 10 + st
	}
	if u.Load8(uint64(va)) != 'b' {
		return 7
	}
	return 0
}

func filetest(u *umode.Uctx_t, argv []string) int {
	fd := u.Open("/f", defs.O_CREATE|defs.O_WRONLY)
	if fd < 0 {
		return 1
	}
	for i := 0; i < 3; i++ {
		if u.Write(fd, []uint8("hello")) != 5 {
			return 2
		}
	}
	u.Close(fd)
	fd = u.Open("/f", defs.O_RDONLY)
	if fd < 0 {
		return 3
	}
	buf := make([]uint8, 15)
	if n := u.Read(fd, buf); n != 15 || string(buf) != "hellohellohello" {
		return 4
	}
	var st stat.Stat_t
	if u.Fstat(fd, &st) < 0 || st.Size() != 15 {
		return 5
	}
	if u.Read(fd, buf) != 0 {
		return 6
	}
	u.Close(fd)
	return 0
}

// a child killed while sleeping exits with the killed status.
func killtest(u *umode.Uctx_t, argv []string) int {
	pid := u.Fork(func(u *umode.Uctx_t) int {
		u.Sleep(1 << 20)
		return 0
	})
	if pid < 0 {
		return 1
	}
	u.Sleep(5)
	if u.Kill(pid) < 0 {
		return 2
	}
	var st int
	if u.Wait(&st) != pid {
		return 3
	}
	if st != defs.KILLED_STATUS {
		return 4
	}
	if u.Kill(pid) != -1 {
		return 5
	}
	return 0
}

func argtest(u *umode.Uctx_t, argv []string) int {
	if strings.Join(argv, ",") != "argtest,one,two" {
		return 1
	}
	return 0
}

// loads from an unmapped address, which kills the process.
func faulttest(u *umode.Uctx_t, argv []string) int {
	u.Load8(1 << 30)
	return 0
}

func mktest(t *testing.T, fstype string, ncpu int) *Test_t {
	k, err := Mktest(fstype, ncpu, testprogs...)
	if err != nil {
		t.Fatalf("boot: %v", err)
	}
	return k
}

func shutdown(t *testing.T, k *Test_t) {
	if err := k.Shutdown(); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if k.Panicked() {
		t.Fatalf("kernel panic:\n%s", k.Out.String())
	}
}

func runprog(t *testing.T, k *Test_t, want int, path string, argv ...string) {
	st, err := k.Runprog(path, argv...)
	if err != 0 {
		t.Fatalf("%s: %v", path, err)
	}
	if st != want {
		t.Fatalf("%s: status %v, want %v\n%s", path, st, want, k.Out.String())
	}
}

func TestBoot(t *testing.T) {
	for _, fstype := range fstypes {
		k := mktest(t, fstype, 2)
		r, err := k.Run("hello", func(p *proc.Proc_t) int {
			return p.Pid()
		})
		if err != 0 || r <= 0 {
			t.Fatalf("run: %v %v", r, err)
		}
		shutdown(t, k)
		if !strings.Contains(k.Out.String(), "booting") {
			t.Fatalf("no banner: %q", k.Out.String())
		}
	}
}

func TestFork(t *testing.T) {
	k := mktest(t, UFS, 2)
	runprog(t, k, 0, "/forktest", "forktest")
	shutdown(t, k)
}

func TestFileWriteRead(t *testing.T) {
	for _, fstype := range fstypes {
		k := mktest(t, fstype, 2)
		runprog(t, k, 0, "/filetest", "filetest")
		shutdown(t, k)
	}
}

// the file written before a clean shutdown is there after a reboot.
func TestReboot(t *testing.T) {
	for _, fstype := range fstypes {
		k := mktest(t, fstype, 1)
		runprog(t, k, 0, "/filetest", "filetest")
		disk := k.Store
		shutdown(t, k)
		k2, err := Boottest(fstype, 1, disk)
		if err != nil {
			t.Fatalf("reboot: %v", err)
		}
		runprog(t, k2, 0, "/cat", "cat", "/f")
		shutdown(t, k2)
		if !strings.Contains(k2.Out.String(), "hellohellohello") {
			t.Fatalf("%s: lost /f: %q", fstype, k2.Out.String())
		}
	}
}

func TestKillSleep(t *testing.T) {
	k := mktest(t, UFS, 2)
	runprog(t, k, 0, "/killtest", "killtest")

	// the same from kernel tasks
	res := make(chan defs.Err_t, 1)
	var sleeper *proc.Proc_t
	_, err := k.Run("spawner", func(p *proc.Proc_t) int {
		sp, err := k.Procs.Spawn(p, "sleeper", func(p *proc.Proc_t) {
			res <- k.Trap.Sleepticks(p, 1<<20)
		})
		if err != 0 {
			return 1
		}
		sleeper = sp
		return 0
	})
	if err != 0 || sleeper == nil {
		t.Fatalf("spawn: %v", err)
	}
	pid := sleeper.Pid()
	for asleep := false; !asleep; {
		k.Host(func(h cpu.Hartctx_i) {
			asleep = sleeper.State(h) == proc.SLEEPING
		})
		time.Sleep(time.Millisecond)
	}
	k.Host(func(h cpu.Hartctx_i) {
		err = k.Procs.Kill(h, pid)
	})
	if err != 0 {
		t.Fatalf("kill: %v", err)
	}
	select {
	case e := <-res:
		if e != -defs.EINTR {
			t.Fatalf("sleep returned %v", e)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("sleeper never woke")
	}
	shutdown(t, k)
}

func TestExec(t *testing.T) {
	k := mktest(t, UFS, 2)
	runprog(t, k, 0, "/argtest", "argtest", "one", "two")
	runprog(t, k, 1, "/argtest", "argtest", "one")
	// a failed exec
	runprog(t, k, -1, "/nonexistent", "nonexistent")
	runprog(t, k, 0, "/echo", "echo", "hi", "there")
	shutdown(t, k)
	if !strings.Contains(k.Out.String(), "hi there\n") {
		t.Fatalf("echo: %q", k.Out.String())
	}
}

func TestFault(t *testing.T) {
	k := mktest(t, UFS, 1)
	runprog(t, k, defs.KILLED_STATUS, "/faulttest", "faulttest")
	shutdown(t, k)
}

func TestStressfs(t *testing.T) {
	for _, fstype := range fstypes {
		k := mktest(t, fstype, 4)
		runprog(t, k, 0, "/stressfs", "stressfs")
		shutdown(t, k)
	}
}

func TestShell(t *testing.T) {
	k := mktest(t, UFS, 2)
	k.M.Uart.Input([]uint8("echo hello | wc\nmkdir d; ls d\n\x04"))
	runprog(t, k, 0, "/sh", "sh")
	shutdown(t, k)
	out := k.Out.String()
	if !strings.Contains(out, "1 1 6") {
		t.Fatalf("pipe: %q", out)
	}
	if !strings.Contains(out, "..") {
		t.Fatalf("ls d: %q", out)
	}
}

func TestPanic(t *testing.T) {
	k := mktest(t, UFS, 1)
	var err defs.Err_t
	k.Host(func(h cpu.Hartctx_i) {
		_, err = k.Procs.Spawn(h, "oops", func(p *proc.Proc_t) {
			panic("boom")
		})
	})
	if err != 0 {
		t.Fatalf("spawn: %v", err)
	}
	for !k.Panicked() {
		time.Sleep(time.Millisecond)
	}
	if err := k.Shutdown(); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !strings.Contains(k.Out.String(), "panic: boom") {
		t.Fatalf("no panic message: %q", k.Out.String())
	}
}

func TestMkimage(t *testing.T) {
	if _, err := Mkimage("ext4", 2000, 200, nil); err == nil {
		t.Fatalf("bad fstype accepted")
	}
	k := mktest(t, LFS, 2)
	runprog(t, k, 0, "/ls", "ls", "/")
	shutdown(t, k)
	out := k.Out.String()
	for _, p := range []string{"console", "stressfs", "forktest"} {
		if !strings.Contains(out, p) {
			t.Fatalf("ls: no %s in %q", p, out)
		}
	}
}

// Run returns once the machine halts on a panic in its task.
func TestRunPanic(t *testing.T) {
	k := mktest(t, UFS, 1)
	done := make(chan defs.Err_t, 1)
	go func() {
		_, err := k.Run("oops", func(p *proc.Proc_t) int {
			panic("run boom")
		})
		done <- err
	}()
	select {
	case err := <-done:
		if err != -defs.EIO {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("run never returned")
	}
	if !k.Panicked() {
		t.Fatalf("no panic")
	}
	k.Shutdown()
	if !strings.Contains(k.Out.String(), "panic: run boom") {
		t.Fatalf("no panic message: %q", k.Out.String())
	}
}
