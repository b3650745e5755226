package ufs_test

import "bytes"
import "testing"

import "rv6/bio"
import "rv6/defs"
import "rv6/fs"
import "rv6/hostfs"
import "rv6/hw"
import "rv6/ufs"
import "rv6/util"

func mkdisk(t *testing.T, nblocks, ninodes int, ents []fs.Mkent_t) *hw.Memdisk_t {
	img, err := ufs.Mkimage(nblocks, ninodes, ents)
	if err != nil {
		t.Fatalf("mkimage: %v", err)
	}
	return hw.MkMemdiskFrom(img)
}

func boot(t *testing.T, d hw.Backing_i) *hostfs.Host_t {
	h, err := hostfs.Boot(d, hostfs.Config_t{Fstype: hostfs.UFS})
	if err != nil {
		t.Fatalf("boot: %v", err)
	}
	return h
}

func ufsof(h *hostfs.Host_t) *ufs.Ufs_t {
	return h.Fs.Ops().(*ufs.Ufs_t)
}

func TestMkimage(t *testing.T) {
	if _, err := ufs.Mkimage(30, 16, nil); err == nil {
		t.Fatalf("tiny image accepted")
	}
	d := mkdisk(t, 1000, 100, nil)
	h := boot(t, d)
	defer h.Shutdown()
	sb := ufsof(h).Sb()
	if sb.Size() != 1000 || sb.Ninodes() != 100 || sb.Nlog() != defs.LOGSIZE+1 {
		t.Fatalf("superblock %v %v %v", sb.Size(), sb.Ninodes(), sb.Nlog())
	}
	if sb.Logstart() != 2 || sb.Inodestart() != 2+sb.Nlog() {
		t.Fatalf("layout %v %v", sb.Logstart(), sb.Inodestart())
	}
}

func TestHello(t *testing.T) {
	d := mkdisk(t, 1000, 100, nil)
	h := boot(t, d)
	if e := h.MkFile("/f", nil); e != 0 {
		t.Fatalf("create %v", e)
	}
	for i := 0; i < 3; i++ {
		if e := h.Append("/f", []uint8("hello")); e != 0 {
			t.Fatalf("append %v", e)
		}
	}
	h.Shutdown()

	h = boot(t, d)
	defer h.Shutdown()
	st, e := h.Stat("/f")
	if e != 0 || st.Size() != 15 {
		t.Fatalf("stat %v %v", st, e)
	}
	data, e := h.Read("/f")
	if e != 0 || string(data) != "hellohellohello" {
		t.Fatalf("read %q %v", data, e)
	}
}

func TestAbsorb(t *testing.T) {
	d := mkdisk(t, 1000, 100, nil)
	h := boot(t, d)
	defer h.Shutdown()
	if e := h.MkFile("f", nil); e != 0 {
		t.Fatalf("create")
	}
	l := ufsof(h).Log()
	c0 := l.Ncommit()
	a0 := l.Nabsorb()
	// ten one-byte appends in separate transactions
	for i := 0; i < 10; i++ {
		if e := h.Append("f", []uint8{uint8(i)}); e != 0 {
			t.Fatalf("append")
		}
	}
	if n := l.Ncommit() - c0; n != 10 {
		t.Fatalf("%v commits", n)
	}
	// the first append zeroes its new block and then writes it in the
	// same transaction
	if l.Nabsorb() == a0 {
		t.Fatalf("no absorption")
	}
	data, _ := h.Read("f")
	if !bytes.Equal(data, []uint8{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}) {
		t.Fatalf("data %v", data)
	}
}

func TestLogWriteOutside(t *testing.T) {
	d := mkdisk(t, 1000, 100, nil)
	h := boot(t, d)
	defer h.Shutdown()
	b := h.Bc.Bread(h.K, defs.ROOTDEV, 900)
	defer func() {
		if recover() == nil {
			t.Fatalf("log write outside a transaction")
		}
		b.Relse(h.K)
	}()
	ufsof(h).Log().Log_write(h.K, b)
}

func TestFreeBlocks(t *testing.T) {
	d := mkdisk(t, 1000, 100, nil)
	h := boot(t, d)
	defer h.Shutdown()
	if e := h.MkFile("f", hostfs.Mkdata(1, 20*bio.BSIZE)); e != 0 {
		t.Fatalf("mkfile")
	}
	k := h.K
	tx := h.Fs.Begin(k)
	ipr, _ := h.Fs.Namei(k, nil, []uint8("f"))
	ip := ipr.I()
	ip.Ilock(k)
	addrs := ip.Addrs
	ipr.Unlockput(k)
	tx.End(k)
	u := ufsof(h)
	for _, a := range addrs {
		if a == 0 || !u.Allocated(k, int(a)) {
			t.Fatalf("block %v not allocated", a)
		}
	}
	if e := h.Unlink("f"); e != 0 {
		t.Fatalf("unlink")
	}
	for _, a := range addrs {
		if u.Allocated(k, int(a)) {
			t.Fatalf("block %v still allocated", a)
		}
	}
}

func TestFull(t *testing.T) {
	d := mkdisk(t, 200, 50, nil)
	h := boot(t, d)
	defer h.Shutdown()
	if e := h.MkFile("big", hostfs.Mkdata(1, 250*bio.BSIZE)); e != -defs.ENOSPC {
		t.Fatalf("disk not full: %v", e)
	}
	st, e := h.Stat("big")
	if e != 0 || st.Size() == 0 || st.Size()%bio.BSIZE != 0 {
		t.Fatalf("partial file %v %v", st, e)
	}
	if e := h.MkFile("small", hostfs.Mkdata(2, bio.BSIZE)); e != -defs.ENOSPC {
		t.Fatalf("small write fit: %v", e)
	}
	if e := h.Unlink("big"); e != 0 {
		t.Fatalf("unlink")
	}
	if e := h.Append("small", hostfs.Mkdata(2, 10*bio.BSIZE)); e != 0 {
		t.Fatalf("space not reclaimed: %v", e)
	}
}

// the index of the first write in tr that commits a non-empty log header.
func commitpoint(tr hw.Trace_t, logstart int) int {
	i := 0
	for _, r := range tr {
		if r.Cmd != "write" {
			continue
		}
		if r.Off == int64(logstart*bio.BSIZE) && util.Readn(r.Data, 4, 0) > 0 {
			return i
		}
		i++
	}
	return -1
}

// unlinks /a on a traced disk and returns the trace with the commit point
// of the unlink.
func unlinktrace(t *testing.T, img []uint8) (hw.Trace_t, int) {
	td := hw.MkTracedisk(hw.MkMemdiskFrom(img), nil)
	h := boot(t, td)
	logstart := ufsof(h).Sb().Logstart()
	if e := h.Unlink("/a"); e != 0 {
		t.Fatalf("unlink %v", e)
	}
	h.Shutdown()
	tr := td.Trace()
	n := commitpoint(tr, logstart)
	if n < 0 {
		t.Fatalf("no commit in trace")
	}
	return tr, n
}

func TestCrashBeforeCommit(t *testing.T) {
	contents := hostfs.Mkdata(7, 3*bio.BSIZE)
	img, err := ufs.Mkimage(1000, 100, []fs.Mkent_t{
		{Name: "a", Type: defs.T_FILE, Data: contents},
	})
	if err != nil {
		t.Fatalf("mkimage %v", err)
	}
	tr, n := unlinktrace(t, img)
	for i := 0; i <= n; i++ {
		h := boot(t, tr.Crash(img, i))
		if _, e := h.Stat("/a"); e != 0 {
			t.Fatalf("crash at %v: /a lost %v", i, e)
		}
		data, e := h.Read("/a")
		if e != 0 || !bytes.Equal(data, contents) {
			t.Fatalf("crash at %v: /a changed", i)
		}
		h.Shutdown()
	}
}

func TestCrashAfterCommit(t *testing.T) {
	img, err := ufs.Mkimage(1000, 100, []fs.Mkent_t{
		{Name: "a", Type: defs.T_FILE, Data: hostfs.Mkdata(7, 3*bio.BSIZE)},
	})
	if err != nil {
		t.Fatalf("mkimage %v", err)
	}
	tr, n := unlinktrace(t, img)
	for i := n + 1; i <= tr.Nwrites(); i++ {
		d := tr.Crash(img, i)
		h := boot(t, d)
		if _, e := h.Stat("/a"); e != -defs.ENOENT {
			t.Fatalf("crash at %v: /a survived %v", i, e)
		}
		if n := h.Nactive(); n != 1 {
			t.Fatalf("crash at %v: %v active", i, n)
		}
		h.Shutdown()
		// recovery is idempotent
		h = boot(t, d)
		if _, e := h.Stat("/a"); e != -defs.ENOENT {
			t.Fatalf("second recovery brought /a back")
		}
		h.Shutdown()
	}
}

// the metadata and the root directory are marked in use; nothing past them is.
func TestMkimageBitmap(t *testing.T) {
	ents := []fs.Mkent_t{{Name: "f", Type: defs.T_FILE,
		Data: hostfs.Mkdata(1, 3*bio.BSIZE)}}
	d := mkdisk(t, 2000, 200, ents)
	h := boot(t, d)
	defer h.Shutdown()
	sb := ufsof(h).Sb()
	nmeta := sb.Bmapstart() + sb.Size()/ufs.BPB + 1
	b := h.Bc.Bread(h.K, defs.ROOTDEV, sb.Bblock(0))
	defer b.Relse(h.K)
	bit := func(i int) bool {
		return b.Data()[i/8]&(1<<(i%8)) != 0
	}
	for i := 0; i < nmeta; i++ {
		if !bit(i) {
			t.Fatalf("metadata block %v free", i)
		}
	}
	// root directory block plus three data blocks
	used := nmeta
	for bit(used) {
		used++
	}
	if used != nmeta+4 {
		t.Fatalf("%v blocks in use, want %v", used, nmeta+4)
	}
	for i := used; i < sb.Size(); i++ {
		if bit(i) {
			t.Fatalf("block %v in use", i)
		}
	}
}
