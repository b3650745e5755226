// Package fs is the filesystem layer shared by the on-disk backends: the
// in-memory inode table, file data access, directories and path names. A
// backend (the write-ahead logged ufs or the log-structured lfs) supplies
// transactions, inode allocation and block placement through Fsops_i.
package fs

import "fmt"

import "rv6/arena"
import "rv6/bio"
import "rv6/defs"
import "rv6/lock"
import "rv6/ustr"
import "rv6/util"

const fs_debug = false

const (
	// root i-number
	ROOTINO defs.Inum_t = 1
	FSMAGIC             = 0x10203040
	NDIRECT             = 12
	NINDIRECT           = bio.BSIZE / 4
	MAXFILE             = NDIRECT + NINDIRECT
	// size of an on-disk inode
	ISIZE = 64
	// inodes per block
	IPB = bio.BSIZE / ISIZE
)

// the operations a disk layout provides to the layer above.
type Fsops_i interface {
	// reads the superblock and brings the on-disk state to a consistent
	// one. called once, in process context.
	Mount(k lock.Kctx_i, fs *Fs_t)
	// called at the start and end of each FS system call.
	Begin_op(k lock.Kctx_i)
	End_op(k lock.Kctx_i)
	// allocates an on-disk inode of type typ and returns its number.
	Ialloc(k lock.Kctx_i, typ int16) (defs.Inum_t, defs.Err_t)
	// fills ip's on-disk fields from disk.
	Iread(k lock.Kctx_i, ip *Inode_t)
	// copies ip's on-disk fields to disk. must be called after every
	// change to a field that lives on disk. caller holds ip's lock.
	Iupdate(k lock.Kctx_i, ip *Inode_t)
	// returns a locked buffer with the current contents of logical block
	// bn of ip, allocating the block if needed. the caller modifies the
	// data and hands the buffer back to Bwritten.
	Bwritable(k lock.Kctx_i, ip *Inode_t, bn int) (*bio.Buf_t, defs.Err_t)
	Bwritten(k lock.Kctx_i, ip *Inode_t, b *bio.Buf_t)
	// discards ip's contents and sets its size to zero.
	Itrunc(k lock.Kctx_i, ip *Inode_t)
	Stats() string
}

type Fs_t struct {
	Dev    int
	Bc     *bio.Bcache_t
	ops    Fsops_i
	itable *arena.Arrayarena_t[Inode_t]
	// serializes the one-time mount
	initlk  lock.Sleepablelock_t
	mounted int
}

const (
	unmounted = iota
	mounting
	mounted
)

func MkFs(bc *bio.Bcache_t, dev int, ops Fsops_i) *Fs_t {
	fs := &Fs_t{Dev: dev, Bc: bc, ops: ops}
	fs.itable = arena.MkArrayarena[Inode_t]("itable", defs.NINODE)
	fs.initlk.Init("fsinit")
	return fs
}

// mounts the filesystem unless that already happened. the first process to
// run does this; it must be done in process context because it sleeps.
func (fs *Fs_t) Init(k lock.Kctx_i) {
	fs.initlk.Acquire(k)
	for fs.mounted == mounting {
		fs.initlk.Sleep(k)
	}
	if fs.mounted == unmounted {
		fs.mounted = mounting
		fs.initlk.Reacquire_after(k, func() {
			fs.ops.Mount(k, fs)
		})
		fs.mounted = mounted
		fs.initlk.Wakeup(k)
	}
	fs.initlk.Release(k)
}

func (fs *Fs_t) Ops() Fsops_i {
	return fs.ops
}

func (fs *Fs_t) Stats() string {
	return fs.ops.Stats() + fs.Bc.Stats()
}

// a filesystem transaction. every FS system call runs in one; End must be
// called exactly once.
type Tx_t struct {
	fs   *Fs_t
	done bool
}

func (fs *Fs_t) Begin(k lock.Kctx_i) *Tx_t {
	fs.ops.Begin_op(k)
	return &Tx_t{fs: fs}
}

func (tx *Tx_t) End(k lock.Kctx_i) {
	if tx.done {
		panic("end of ended transaction")
	}
	tx.done = true
	tx.fs.ops.End_op(k)
}

// on-disk inode
type Dinode_t struct {
	// file type; 0 is free
	Type int16
	// major device number (T_DEVICE only)
	Major uint16
	// minor device number (T_DEVICE only)
	Minor uint16
	// number of links to inode in file system
	Nlink int16
	// size of file (bytes)
	Size  uint32
	Addrs [NDIRECT + 1]uint32
}

func (d *Dinode_t) Decode(b []uint8) {
	d.Type = int16(util.Readn(b, 2, 0))
	d.Major = uint16(util.Readn(b, 2, 2))
	d.Minor = uint16(util.Readn(b, 2, 4))
	d.Nlink = int16(util.Readn(b, 2, 6))
	d.Size = uint32(util.Readn(b, 4, 8))
	for i := range d.Addrs {
		d.Addrs[i] = uint32(util.Readn(b, 4, 12+4*i))
	}
}

func (d *Dinode_t) Encode(b []uint8) {
	util.Writen(b, 2, 0, int(uint16(d.Type)))
	util.Writen(b, 2, 2, int(d.Major))
	util.Writen(b, 2, 4, int(d.Minor))
	util.Writen(b, 2, 6, int(uint16(d.Nlink)))
	util.Writen(b, 4, 8, int(d.Size))
	for i, a := range d.Addrs {
		util.Writen(b, 4, 12+4*i, int(a))
	}
}

func (d *Dinode_t) String() string {
	return fmt.Sprintf("type %v nlink %v size %v", d.Type, d.Nlink, d.Size)
}

// a file that an image builder places in the root directory.
type Mkent_t struct {
	Name  string
	Type  int16
	Major uint16
	Minor uint16
	Data  []uint8
}

// the root directory's contents in entry order: "." and ".." followed by
// one entry per file, numbered from ROOTINO+1.
func Rootdir(ents []Mkent_t) ([]uint8, error) {
	d := make([]uint8, (len(ents)+2)*DIRENTSZ)
	dd := &Dirdata_t{Data: d}
	dd.W_inum(0, ROOTINO)
	dd.W_filename(0, ustr.MkUstrDot())
	dd.W_inum(1, ROOTINO)
	dd.W_filename(1, ustr.DotDot)
	for i, e := range ents {
		n := ustr.Ustr(e.Name)
		if len(n) == 0 || len(n) > DIRSIZ {
			return nil, fmt.Errorf("bad file name %q", e.Name)
		}
		dd.W_inum(i+2, ROOTINO+defs.Inum_t(i+1))
		dd.W_filename(i+2, n)
	}
	return d, nil
}
