package file

import "bytes"
import "sync"
import "testing"

import "rv6/defs"
import "rv6/fdops"
import "rv6/hostfs"
import "rv6/hw"
import "rv6/lock"
import "rv6/stat"
import "rv6/ufs"
import "rv6/ustr"
import "rv6/vm"

func boot(t *testing.T, ncpu int) (*hostfs.Host_t, *Ftable_t) {
	img, err := ufs.Mkimage(2000, 200, nil)
	if err != nil {
		t.Fatalf("mkimage: %v", err)
	}
	h, err := hostfs.Boot(hw.MkMemdiskFrom(img), hostfs.Config_t{Ncpu: ncpu})
	if err != nil {
		t.Fatalf("boot: %v", err)
	}
	t.Cleanup(h.Shutdown)
	return h, MkFtable(h.Fs, h.Phys)
}

func rd(k lock.Kctx_i, fd *Fd_t, n int) ([]uint8, defs.Err_t) {
	buf := make([]uint8, n)
	c, err := fd.Read(k, vm.Mkfakeubuf(buf))
	return buf[:c], err
}

func wr(k lock.Kctx_i, fd *Fd_t, data []uint8) (int, defs.Err_t) {
	return fd.Write(k, vm.Mkfakeubuf(data))
}

func TestOpenReadWrite(t *testing.T) {
	h, ft := boot(t, 1)
	k := h.K
	fd, err := ft.Open(k, nil, ustr.Ustr("/f"), defs.O_CREATE|defs.O_RDWR)
	if err != 0 {
		t.Fatalf("open %v", err)
	}
	data := hostfs.Mkdata(7, 3*maxwrite+100)
	if n, err := wr(k, fd, data); err != 0 || n != len(data) {
		t.Fatalf("write %v %v", n, err)
	}
	st := &stat.Stat_t{}
	if fd.Fstat(k, st) != 0 || st.Size() != uint(len(data)) {
		t.Fatalf("fstat size %v", st.Size())
	}
	fd.Close(k)

	fd, err = ft.Open(k, nil, ustr.Ustr("/f"), defs.O_RDONLY)
	if err != 0 {
		t.Fatalf("reopen %v", err)
	}
	got, err := rd(k, fd, len(data)+10)
	if err != 0 || !bytes.Equal(got, data) {
		t.Fatalf("read back %v bytes, err %v", len(got), err)
	}
	if _, err := wr(k, fd, data[:1]); err != -defs.EBADF {
		t.Fatalf("write to read-only fd: %v", err)
	}
	fd2 := Copyfd(k, fd)
	fd.Close(k)
	if ft.Nopen(k) != 1 {
		t.Fatalf("dup'd file closed early")
	}
	if got, _ := rd(k, fd2, 10); len(got) != 0 {
		t.Fatalf("shared offset not at EOF")
	}
	fd2.Close(k)
	if ft.Nopen(k) != 0 {
		t.Fatalf("open files %v", ft.Nopen(k))
	}
	if h.Nactive() != 1 {
		t.Fatalf("inode refs leaked: %v", h.Nactive())
	}
}

func TestOpenTrunc(t *testing.T) {
	h, ft := boot(t, 1)
	k := h.K
	if h.MkFile("/t", hostfs.Mkdata(1, 2000)) != 0 {
		t.Fatal("mkfile")
	}
	fd, err := ft.Open(k, nil, ustr.Ustr("/t"), defs.O_WRONLY|defs.O_TRUNC)
	if err != 0 {
		t.Fatalf("open %v", err)
	}
	fd.Close(k)
	st, _ := h.Stat("/t")
	if st.Size() != 0 {
		t.Fatalf("not truncated: %v", st.Size())
	}
	if _, err := ft.Open(k, nil, ustr.Ustr("/"), defs.O_RDWR); err != -defs.EISDIR {
		t.Fatalf("writable dir: %v", err)
	}
}

type fakedev_t struct {
	out []uint8
}

func (d *fakedev_t) Read(k lock.Kctx_i, dst fdops.Userio_i) (int, defs.Err_t) {
	return dst.Uiowrite([]uint8("dev"))
}

func (d *fakedev_t) Write(k lock.Kctx_i, src fdops.Userio_i) (int, defs.Err_t) {
	buf := make([]uint8, src.Remain())
	n, err := src.Uioread(buf)
	d.out = append(d.out, buf[:n]...)
	return n, err
}

func TestDevsw(t *testing.T) {
	h, ft := boot(t, 1)
	k := h.K
	d := &fakedev_t{}
	ft.Devsw[defs.D_CONSOLE] = d
	if h.Mknod("/console", uint16(defs.D_CONSOLE), 0) != 0 ||
		h.Mknod("/nodev", 5, 0) != 0 {
		t.Fatal("mknod")
	}
	fd, err := ft.Open(k, nil, ustr.Ustr("/console"), defs.O_RDWR)
	if err != 0 {
		t.Fatalf("open %v", err)
	}
	wr(k, fd, []uint8("hi"))
	if got, _ := rd(k, fd, 10); string(got) != "dev" || string(d.out) != "hi" {
		t.Fatalf("device got %q, read %q", d.out, got)
	}
	fd.Close(k)
	fd, err = ft.Open(k, nil, ustr.Ustr("/nodev"), defs.O_RDONLY)
	if err != 0 {
		t.Fatalf("open %v", err)
	}
	if _, err := rd(k, fd, 1); err != -defs.ENODEV {
		t.Fatalf("unregistered major: %v", err)
	}
	fd.Close(k)
}

func TestPipe(t *testing.T) {
	h, ft := boot(t, 2)
	k := h.K
	r, w, err := ft.Pipe(k)
	if err != 0 {
		t.Fatalf("pipe %v", err)
	}
	data := hostfs.Mkdata(3, 5*PIPESIZE)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		k1 := h.Ks[1]
		if n, err := wr(k1, w, data); n != len(data) || err != 0 {
			t.Errorf("pipe write %v %v", n, err)
		}
		w.Close(k1)
	}()
	var got []uint8
	for {
		b, err := rd(k, r, 700)
		if err != 0 {
			t.Fatalf("pipe read %v", err)
		}
		if len(b) == 0 {
			break
		}
		got = append(got, b...)
	}
	wg.Wait()
	if !bytes.Equal(got, data) {
		t.Fatalf("pipe data mismatch: %v bytes", len(got))
	}
	r.Close(k)
	if ft.Nopen(k) != 0 {
		t.Fatalf("pipe ends leaked")
	}
}

func TestPipeErrors(t *testing.T) {
	h, ft := boot(t, 1)
	k := h.K
	r, w, err := ft.Pipe(k)
	if err != 0 {
		t.Fatalf("pipe %v", err)
	}
	if _, err := wr(k, r, []uint8("x")); err != -defs.EBADF {
		t.Fatalf("write to read end: %v", err)
	}
	h.Ks[0].Kill()
	if _, err := rd(k, r, 1); err != -defs.EINTR {
		t.Fatalf("killed reader: %v", err)
	}
	r.Close(k)
	if _, err := wr(k, w, []uint8("x")); err != -defs.EPIPE {
		t.Fatalf("write without reader: %v", err)
	}
	w.Close(k)
}

type nullops_t struct{}

func (nullops_t) Close(k lock.Kctx_i) defs.Err_t { return 0 }
func (nullops_t) Fstat(k lock.Kctx_i, st *stat.Stat_t) defs.Err_t {
	return 0
}
func (nullops_t) Read(k lock.Kctx_i, dst fdops.Userio_i) (int, defs.Err_t) {
	return 0, 0
}
func (nullops_t) Write(k lock.Kctx_i, src fdops.Userio_i) (int, defs.Err_t) {
	return 0, 0
}

func TestTableFull(t *testing.T) {
	h, ft := boot(t, 1)
	k := h.K
	var fds []*Fd_t
	for i := 0; i < defs.NFILE; i++ {
		fd, err := ft.Alloc(k, nullops_t{}, FD_READ)
		if err != 0 {
			t.Fatalf("alloc %d: %v", i, err)
		}
		fds = append(fds, fd)
	}
	if _, err := ft.Alloc(k, nullops_t{}, FD_READ); err != -defs.ENFILE {
		t.Fatalf("full table: %v", err)
	}
	if _, _, err := ft.Pipe(k); err != -defs.ENFILE {
		t.Fatalf("pipe on full table: %v", err)
	}
	for _, fd := range fds {
		fd.Close(k)
	}
}
