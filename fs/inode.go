package fs

import "fmt"

import "rv6/arena"
import "rv6/bio"
import "rv6/defs"
import "rv6/fdops"
import "rv6/lock"
import "rv6/stat"
import "rv6/util"

// an in-memory inode. the table entry holds the identity; the on-disk
// fields are valid once Valid is set, under Lock.
type Inode_t struct {
	fs   *Fs_t
	Dev  int
	Inum defs.Inum_t
	// protects everything below
	Lock lock.Sleeplock_t
	// inode has been read from disk?
	Valid bool
	Dinode_t
}

// a counted reference to an inode in the table.
type Iref_t struct {
	rc *arena.Rc_t[Inode_t]
}

func (r *Iref_t) I() *Inode_t {
	return r.rc.Get()
}

func (r *Iref_t) Dup(k lock.Kctx_i) *Iref_t {
	return &Iref_t{rc: r.rc.Dup(k)}
}

// drops a reference. if that was the last reference and the inode has no
// links, the inode and its content are freed on disk, so all calls to Put
// must be inside a transaction.
func (r *Iref_t) Put(k lock.Kctx_i) {
	r.rc.Free(k)
}

func (r *Iref_t) Same(o *Iref_t) bool {
	return r.rc.Same(o.rc)
}

// common idiom: unlock, then put.
func (r *Iref_t) Unlockput(k lock.Kctx_i) {
	r.I().Iunlock(k)
	r.Put(k)
}

// finds the inode with number inum and returns a reference to its
// in-memory copy. does not lock the inode and does not read it from disk.
func (fs *Fs_t) Iget(k lock.Kctx_i, inum defs.Inum_t) *Iref_t {
	if inum == 0 {
		panic("iget: inum 0")
	}
	rc, ok := fs.itable.Find_or_alloc(k, func(ip *Inode_t) bool {
		return ip.fs == fs && ip.Dev == fs.Dev && ip.Inum == inum
	}, func(ip *Inode_t) {
		ip.fs = fs
		ip.Dev = fs.Dev
		ip.Inum = inum
		ip.Lock.Init("inode")
		ip.Valid = false
	})
	if !ok {
		panic("iget: no inodes")
	}
	return &Iref_t{rc: rc}
}

func (fs *Fs_t) Root(k lock.Kctx_i) *Iref_t {
	return fs.Iget(k, ROOTINO)
}

// allocates an inode of type typ on disk and returns a reference to it.
func (fs *Fs_t) Ialloc(k lock.Kctx_i, typ int16) (*Iref_t, defs.Err_t) {
	inum, err := fs.ops.Ialloc(k, typ)
	if err != 0 {
		return nil, err
	}
	return fs.Iget(k, inum), 0
}

// the number of inodes the table has in use.
func (fs *Fs_t) Nactive(k lock.Kctx_i) int {
	return fs.itable.Nused(k)
}

// runs when the last reference is dropped, with the table lock held. an
// inode without links is truncated and freed; the table lock is dropped
// while that does I/O. nothing else can find the inode meanwhile since no
// directory entry names it.
func (ip *Inode_t) Finalize(k lock.Kctx_i, g arena.Guard_i) {
	if !ip.Valid || ip.Nlink != 0 {
		return
	}
	g.Reacquire_after(k, func() {
		ip.Lock.Acquire(k)
		ip.fs.ops.Itrunc(k, ip)
		ip.Type = 0
		ip.fs.ops.Iupdate(k, ip)
		ip.Valid = false
		ip.Lock.Release(k)
	})
	// the inode number may be reused; don't let the stale entry match.
	ip.Inum = 0
}

// locks the inode, reading it from disk if necessary.
func (ip *Inode_t) Ilock(k lock.Kctx_i) {
	ip.Lock.Acquire(k)
	if !ip.Valid {
		ip.fs.ops.Iread(k, ip)
		ip.Valid = true
		if ip.Type == 0 {
			panic(fmt.Sprintf("ilock: no type %v", ip.Inum))
		}
		if fs_debug {
			fmt.Printf("ilock read %v: %v\n", ip.Inum, &ip.Dinode_t)
		}
	}
}

func (ip *Inode_t) Iunlock(k lock.Kctx_i) {
	if !ip.Lock.Holding(k) {
		panic("iunlock")
	}
	ip.Lock.Release(k)
}

// copies a modified inode to disk. caller must hold the lock.
func (ip *Inode_t) Iupdate(k lock.Kctx_i) {
	ip.fs.ops.Iupdate(k, ip)
}

// discards the inode's contents. caller must hold the lock.
func (ip *Inode_t) Itrunc(k lock.Kctx_i) {
	ip.fs.ops.Itrunc(k, ip)
}

func (ip *Inode_t) Fs() *Fs_t {
	return ip.fs
}

// copies stat information from the inode. caller must hold the lock.
func (ip *Inode_t) Stati(st *stat.Stat_t) {
	st.Wdev(ip.Dev)
	st.Wino(uint(ip.Inum))
	st.Wtype(int(ip.Type))
	st.Wnlink(int(ip.Nlink))
	st.Wsize(uint(ip.Size))
}

// returns the disk block holding logical block bn, or 0 if the block was
// never written.
func (ip *Inode_t) Bmap(k lock.Kctx_i, bn int) int {
	if bn < NDIRECT {
		return int(ip.Addrs[bn])
	}
	bn -= NDIRECT
	if bn < NINDIRECT {
		ind := ip.Addrs[NDIRECT]
		if ind == 0 {
			return 0
		}
		b := ip.fs.Bc.Bread(k, ip.Dev, int(ind))
		addr := util.Readn(b.Data(), 4, 4*bn)
		b.Relse(k)
		return addr
	}
	panic("bmap: out of range")
}

// reads data from the inode into dst starting at off. caller must hold the
// lock. returns the number of bytes read.
func (ip *Inode_t) Readi(k lock.Kctx_i, dst fdops.Userio_i, off int) (int, defs.Err_t) {
	n := dst.Remain()
	sz := int(ip.Size)
	if off > sz || off+n < off {
		return 0, 0
	}
	if off+n > sz {
		n = sz - off
	}
	tot := 0
	for tot < n {
		m := util.Min(n-tot, bio.BSIZE-off%bio.BSIZE)
		var c int
		var err defs.Err_t
		if addr := ip.Bmap(k, off/bio.BSIZE); addr == 0 {
			c, err = dst.Uiowrite(zeroblock[:m])
		} else {
			b := ip.fs.Bc.Bread(k, ip.Dev, addr)
			s := off % bio.BSIZE
			c, err = dst.Uiowrite(b.Data()[s : s+m])
			b.Relse(k)
		}
		tot += c
		off += c
		if err != 0 {
			return tot, err
		}
		if c != m {
			break
		}
	}
	return tot, 0
}

var zeroblock [bio.BSIZE]uint8

// writes data from src to the inode starting at off, growing the file if
// needed. caller must hold the lock and be in a transaction. returns the
// number of bytes written; fewer than requested means an error or a full
// disk.
func (ip *Inode_t) Writei(k lock.Kctx_i, src fdops.Userio_i, off int) (int, defs.Err_t) {
	n := src.Remain()
	if off > int(ip.Size) || off+n < off {
		return 0, -defs.EINVAL
	}
	if off+n > MAXFILE*bio.BSIZE {
		return 0, -defs.EINVAL
	}
	tot := 0
	var ret defs.Err_t
	for tot < n {
		b, err := ip.fs.ops.Bwritable(k, ip, off/bio.BSIZE)
		if err != 0 {
			ret = err
			break
		}
		m := util.Min(n-tot, bio.BSIZE-off%bio.BSIZE)
		s := off % bio.BSIZE
		c, err := src.Uioread(b.Data()[s : s+m])
		ip.fs.ops.Bwritten(k, ip, b)
		tot += c
		off += c
		if err != 0 {
			ret = err
			break
		}
		if c != m {
			break
		}
	}
	if off > int(ip.Size) {
		ip.Size = uint32(off)
	}
	// write the inode back to disk even if the size didn't change because
	// the loop above might have placed new blocks in ip.Addrs.
	ip.Iupdate(k)
	if tot == 0 && ret != 0 {
		return 0, ret
	}
	return tot, 0
}
