// Package hostfs runs a filesystem on the host, below the process layer:
// a machine without a running kernel, a synchronous disk and a cache. Tests
// and tools use it to build, inspect and crash file system images.
package hostfs

import "fmt"

import "rv6/bio"
import "rv6/defs"
import "rv6/fs"
import "rv6/hw"
import "rv6/lfs"
import "rv6/lock/locktest"
import "rv6/mem"
import "rv6/riscv"
import "rv6/stat"
import "rv6/ufs"
import "rv6/ustr"
import "rv6/vm"

const (
	UFS = "ufs"
	LFS = "lfs"
)

type Config_t struct {
	Fstype string
	Ncpu   int
	Nbuf   int
}

type Host_t struct {
	M     *hw.Machine_t
	Ks    []*locktest.Ctx_t
	K     *locktest.Ctx_t
	Phys  *mem.Physmem_t
	Disk  *bio.Hostdisk_t
	Bc    *bio.Bcache_t
	Fs    *fs.Fs_t
	cwd   *fs.Iref_t
	store hw.Backing_i
}

// boots a filesystem of the configured type from the image in store.
func Boot(store hw.Backing_i, c Config_t) (*Host_t, error) {
	if c.Ncpu == 0 {
		c.Ncpu = 1
	}
	if c.Nbuf == 0 {
		c.Nbuf = defs.NBUF
	}
	m, err := hw.MkMachine(hw.Mconfig_t{Ncpu: c.Ncpu, Ramsize: 1 << 20})
	if err != nil {
		return nil, err
	}
	h := &Host_t{M: m, store: store}
	h.Ks = locktest.Mkctxs(m)
	h.K = h.Ks[0]
	h.Phys = mem.Phys_init(m.Ram, mem.Pa_t(riscv.KERNBASE+riscv.PGSIZE))
	npg := defs.SEGSIZE * bio.BSIZE / mem.PGSIZE
	if (defs.SEGSIZE*bio.BSIZE)%mem.PGSIZE != 0 {
		npg++
	}
	stage := h.Phys.Boot_alloc(npg)
	h.Phys.Freerange(h.K)
	h.Disk = bio.MkHostdisk(h.Phys, store)
	h.Bc = bio.Mkbcache(h.K, h.Phys, h.Disk, c.Nbuf)
	switch c.Fstype {
	case UFS, "":
		h.Fs = ufs.Mkufs(h.Bc, defs.ROOTDEV)
	case LFS:
		h.Fs = lfs.Mklfs(h.Bc, defs.ROOTDEV, h.Phys, stage)
	default:
		m.Close()
		return nil, fmt.Errorf("unknown file system type %q", c.Fstype)
	}
	h.Fs.Init(h.K)
	h.cwd = h.Fs.Root(h.K)
	return h, nil
}

// a view of h that runs operations in context k, for concurrent
// callers. relative paths start at the root.
func (h *Host_t) With(k *locktest.Ctx_t) *Host_t {
	c := *h
	c.K = k
	c.cwd = nil
	return &c
}

// releases the machine. the disk contents stay in the store.
func (h *Host_t) Shutdown() {
	if h.cwd != nil {
		tx := h.Fs.Begin(h.K)
		h.cwd.Put(h.K)
		tx.End(h.K)
	}
	h.store.Sync()
	h.M.Close()
}

// n bytes of value v.
func Mkdata(v uint8, n int) []uint8 {
	d := make([]uint8, n)
	for i := range d {
		d[i] = v
	}
	return d
}

// write a few blocks at a time to avoid exceeding the maximum log
// transaction size, including i-node, indirect block, allocation blocks,
// and 2 blocks of slop for non-aligned writes.
const maxwrite = ((defs.MAXOPBLOCKS - 1 - 1 - 2) / 2) * bio.BSIZE

// writes data to ip at off in transactions of bounded size. ip is unlocked.
func (h *Host_t) writeat(ipr *fs.Iref_t, data []uint8, off int) defs.Err_t {
	k := h.K
	for len(data) > 0 {
		n := len(data)
		if n > maxwrite {
			n = maxwrite
		}
		tx := h.Fs.Begin(k)
		ip := ipr.I()
		ip.Ilock(k)
		c, err := ip.Writei(k, vm.Mkfakeubuf(data[:n]), off)
		ip.Iunlock(k)
		tx.End(k)
		if err != 0 {
			return err
		}
		if c != n {
			return -defs.ENOSPC
		}
		off += c
		data = data[c:]
	}
	return 0
}

func (h *Host_t) MkFile(p string, data []uint8) defs.Err_t {
	k := h.K
	tx := h.Fs.Begin(k)
	ipr, err := h.Fs.Create(k, h.cwd, ustr.Ustr(p), defs.T_FILE, 0, 0)
	if err != 0 {
		tx.End(k)
		return err
	}
	ipr.I().Iunlock(k)
	tx.End(k)
	err = h.writeat(ipr, data, 0)
	tx = h.Fs.Begin(k)
	ipr.Put(k)
	tx.End(k)
	return err
}

func (h *Host_t) Append(p string, data []uint8) defs.Err_t {
	k := h.K
	tx := h.Fs.Begin(k)
	ipr, err := h.Fs.Namei(k, h.cwd, ustr.Ustr(p))
	tx.End(k)
	if err != 0 {
		return err
	}
	ip := ipr.I()
	ip.Ilock(k)
	sz := int(ip.Size)
	ip.Iunlock(k)
	err = h.writeat(ipr, data, sz)
	tx = h.Fs.Begin(k)
	ipr.Put(k)
	tx.End(k)
	return err
}

func (h *Host_t) MkDir(p string) defs.Err_t {
	tx := h.Fs.Begin(h.K)
	defer tx.End(h.K)
	return h.Fs.Mkdir(h.K, h.cwd, ustr.Ustr(p))
}

func (h *Host_t) Mknod(p string, major, minor uint16) defs.Err_t {
	tx := h.Fs.Begin(h.K)
	defer tx.End(h.K)
	return h.Fs.Mknod(h.K, h.cwd, ustr.Ustr(p), major, minor)
}

func (h *Host_t) Unlink(p string) defs.Err_t {
	tx := h.Fs.Begin(h.K)
	defer tx.End(h.K)
	return h.Fs.Unlink(h.K, h.cwd, ustr.Ustr(p))
}

func (h *Host_t) Link(oldp, newp string) defs.Err_t {
	tx := h.Fs.Begin(h.K)
	defer tx.End(h.K)
	return h.Fs.Link(h.K, h.cwd, ustr.Ustr(oldp), ustr.Ustr(newp))
}

func (h *Host_t) Chdir(p string) defs.Err_t {
	tx := h.Fs.Begin(h.K)
	defer tx.End(h.K)
	ipr, err := h.Fs.Chdir(h.K, h.cwd, ustr.Ustr(p))
	if err != 0 {
		return err
	}
	if h.cwd != nil {
		h.cwd.Put(h.K)
	}
	h.cwd = ipr
	return 0
}

func (h *Host_t) Stat(p string) (*stat.Stat_t, defs.Err_t) {
	k := h.K
	tx := h.Fs.Begin(k)
	defer tx.End(k)
	ipr, err := h.Fs.Namei(k, h.cwd, ustr.Ustr(p))
	if err != 0 {
		return nil, err
	}
	st := &stat.Stat_t{}
	ip := ipr.I()
	ip.Ilock(k)
	ip.Stati(st)
	ipr.Unlockput(k)
	return st, 0
}

// the whole contents of p.
func (h *Host_t) Read(p string) ([]uint8, defs.Err_t) {
	k := h.K
	tx := h.Fs.Begin(k)
	defer tx.End(k)
	ipr, err := h.Fs.Namei(k, h.cwd, ustr.Ustr(p))
	if err != 0 {
		return nil, err
	}
	ip := ipr.I()
	ip.Ilock(k)
	d := make([]uint8, ip.Size)
	n, err := ip.Readi(k, vm.Mkfakeubuf(d), 0)
	ipr.Unlockput(k)
	if err != 0 {
		return nil, err
	}
	if n != len(d) {
		return nil, -defs.EIO
	}
	return d, 0
}

// the names in directory p with their stat information, "." and ".."
// included.
func (h *Host_t) Ls(p string) (map[string]*stat.Stat_t, defs.Err_t) {
	d, err := h.Read(p)
	if err != 0 {
		return nil, err
	}
	res := make(map[string]*stat.Stat_t)
	dd := &fs.Dirdata_t{Data: d}
	for i := 0; i < len(d)/fs.DIRENTSZ; i++ {
		if dd.Inum(i) == 0 {
			continue
		}
		n := dd.Filename(i)
		st, err := h.Stat(p + "/" + n.String())
		if err != 0 {
			return nil, err
		}
		res[n.String()] = st
	}
	return res, 0
}

func (h *Host_t) Statistics() string {
	return h.Fs.Stats() + h.Disk.Stats()
}

// how many inodes the table has in use.
func (h *Host_t) Nactive() int {
	return h.Fs.Nactive(h.K)
}
