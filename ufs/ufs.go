// Package ufs is the xv6 disk layout: a superblock, a write-ahead log,
// fixed inode blocks, a free-block bitmap and data blocks. It implements
// the backend half of the filesystem for package fs.
package ufs

import "fmt"

import "rv6/bio"
import "rv6/defs"
import "rv6/fs"
import "rv6/lock"
import "rv6/stats"
import "rv6/util"

const ufs_debug = false

type ustats_t struct {
	Nialloc stats.Counter_t
	Nballoc stats.Counter_t
	Nbfree  stats.Counter_t
	Nenospc stats.Counter_t
}

type Ufs_t struct {
	bc  *bio.Bcache_t
	dev int
	// a private copy of the superblock; there should be one per disk
	// device, but we run with only one device
	sb  Superblock_t
	log *Log_t
	st  ustats_t
}

// returns a filesystem on dev that uses the ufs layout. it must be mounted
// with Init before use.
func Mkufs(bc *bio.Bcache_t, dev int) *fs.Fs_t {
	return fs.MkFs(bc, dev, &Ufs_t{})
}

func (u *Ufs_t) Mount(k lock.Kctx_i, f *fs.Fs_t) {
	u.bc = f.Bc
	u.dev = f.Dev
	b := u.bc.Bread(k, u.dev, 1)
	u.sb.Data = make([]uint8, bio.BSIZE)
	copy(u.sb.Data, b.Data())
	b.Relse(k)
	if u.sb.Magic() != fs.FSMAGIC {
		panic("invalid file system")
	}
	if ufs_debug {
		fmt.Printf("ufs: size %v nblocks %v ninodes %v nlog %v\n",
			u.sb.Size(), u.sb.Nblocks(), u.sb.Ninodes(), u.sb.Nlog())
	}
	u.log = mklog(u.bc, u.dev, u.sb.Logstart(), u.sb.Nlog())
	u.log.recover(k)
}

func (u *Ufs_t) Begin_op(k lock.Kctx_i) {
	u.log.Begin_op(k)
}

func (u *Ufs_t) End_op(k lock.Kctx_i) {
	u.log.End_op(k)
}

func (u *Ufs_t) Sb() *Superblock_t {
	return &u.sb
}

func (u *Ufs_t) Log() *Log_t {
	return u.log
}

// zero a block.
func (u *Ufs_t) bzero(k lock.Kctx_i, bno int) {
	b := u.bc.Bzero(k, u.dev, bno)
	u.log.Log_write(k, b)
	b.Relse(k)
}

// allocate a zeroed disk block. returns -ENOSPC if out of disk space.
func (u *Ufs_t) balloc(k lock.Kctx_i) (int, defs.Err_t) {
	size := u.sb.Size()
	for b := 0; b < size; b += BPB {
		bp := u.bc.Bread(k, u.dev, u.sb.Bblock(b))
		d := bp.Data()
		for bi := 0; bi < BPB && b+bi < size; bi++ {
			m := uint8(1 << (bi % 8))
			// is block free?
			if d[bi/8]&m == 0 {
				// mark block in use
				d[bi/8] |= m
				u.log.Log_write(k, bp)
				bp.Relse(k)
				u.bzero(k, b+bi)
				u.st.Nballoc.Inc()
				return b + bi, 0
			}
		}
		bp.Relse(k)
	}
	u.st.Nenospc.Inc()
	return 0, -defs.ENOSPC
}

// free a disk block.
func (u *Ufs_t) bfree(k lock.Kctx_i, b int) {
	bp := u.bc.Bread(k, u.dev, u.sb.Bblock(b))
	d := bp.Data()
	bi := b % BPB
	m := uint8(1 << (bi % 8))
	if d[bi/8]&m == 0 {
		panic("freeing free block")
	}
	d[bi/8] &^= m
	u.log.Log_write(k, bp)
	bp.Relse(k)
	u.st.Nbfree.Inc()
}

// is block b marked in use?
func (u *Ufs_t) Allocated(k lock.Kctx_i, b int) bool {
	bp := u.bc.Bread(k, u.dev, u.sb.Bblock(b))
	bi := b % BPB
	ret := bp.Data()[bi/8]&(1<<(bi%8)) != 0
	bp.Relse(k)
	return ret
}

func dinodeoff(inum defs.Inum_t) int {
	return int(inum) % fs.IPB * fs.ISIZE
}

// allocates an inode on device dev by marking it allocated on disk with
// the given type. returns -ENOSPC if there's no free inode.
func (u *Ufs_t) Ialloc(k lock.Kctx_i, typ int16) (defs.Inum_t, defs.Err_t) {
	for inum := 1; inum < u.sb.Ninodes(); inum++ {
		bp := u.bc.Bread(k, u.dev, u.sb.Iblock(inum))
		d := bp.Data()[dinodeoff(defs.Inum_t(inum)):]
		var di fs.Dinode_t
		di.Decode(d)
		// a free inode
		if di.Type == 0 {
			di = fs.Dinode_t{Type: typ}
			di.Encode(d)
			// mark it allocated on the disk
			u.log.Log_write(k, bp)
			bp.Relse(k)
			u.st.Nialloc.Inc()
			return defs.Inum_t(inum), 0
		}
		bp.Relse(k)
	}
	u.st.Nenospc.Inc()
	return 0, -defs.ENOSPC
}

func (u *Ufs_t) Iread(k lock.Kctx_i, ip *fs.Inode_t) {
	bp := u.bc.Bread(k, u.dev, u.sb.Iblock(int(ip.Inum)))
	ip.Dinode_t.Decode(bp.Data()[dinodeoff(ip.Inum):])
	bp.Relse(k)
}

func (u *Ufs_t) Iupdate(k lock.Kctx_i, ip *fs.Inode_t) {
	bp := u.bc.Bread(k, u.dev, u.sb.Iblock(int(ip.Inum)))
	ip.Dinode_t.Encode(bp.Data()[dinodeoff(ip.Inum):])
	u.log.Log_write(k, bp)
	bp.Relse(k)
}

// returns the disk block address of the nth block in inode ip, allocating
// one if there is no such block.
func (u *Ufs_t) bmap(k lock.Kctx_i, ip *fs.Inode_t, bn int) (int, defs.Err_t) {
	if bn < fs.NDIRECT {
		addr := int(ip.Addrs[bn])
		if addr == 0 {
			var err defs.Err_t
			if addr, err = u.balloc(k); err != 0 {
				return 0, err
			}
			ip.Addrs[bn] = uint32(addr)
		}
		return addr, 0
	}
	bn -= fs.NDIRECT
	if bn >= fs.NINDIRECT {
		panic("bmap: out of range")
	}
	// load indirect block, allocating if necessary.
	ind := int(ip.Addrs[fs.NDIRECT])
	if ind == 0 {
		var err defs.Err_t
		if ind, err = u.balloc(k); err != 0 {
			return 0, err
		}
		ip.Addrs[fs.NDIRECT] = uint32(ind)
	}
	bp := u.bc.Bread(k, u.dev, ind)
	defer bp.Relse(k)
	addr := util.Readn(bp.Data(), 4, 4*bn)
	if addr == 0 {
		var err defs.Err_t
		if addr, err = u.balloc(k); err != 0 {
			return 0, err
		}
		util.Writen(bp.Data(), 4, 4*bn, addr)
		u.log.Log_write(k, bp)
	}
	return addr, 0
}

// blocks are updated in place; the log makes the update atomic.
func (u *Ufs_t) Bwritable(k lock.Kctx_i, ip *fs.Inode_t, bn int) (*bio.Buf_t, defs.Err_t) {
	addr, err := u.bmap(k, ip, bn)
	if err != 0 {
		return nil, err
	}
	return u.bc.Bread(k, u.dev, addr), 0
}

func (u *Ufs_t) Bwritten(k lock.Kctx_i, ip *fs.Inode_t, b *bio.Buf_t) {
	u.log.Log_write(k, b)
	b.Relse(k)
}

// truncate inode (discard contents). caller must hold ip's lock.
func (u *Ufs_t) Itrunc(k lock.Kctx_i, ip *fs.Inode_t) {
	for i := 0; i < fs.NDIRECT; i++ {
		if ip.Addrs[i] != 0 {
			u.bfree(k, int(ip.Addrs[i]))
			ip.Addrs[i] = 0
		}
	}
	if ind := int(ip.Addrs[fs.NDIRECT]); ind != 0 {
		bp := u.bc.Bread(k, u.dev, ind)
		for j := 0; j < fs.NINDIRECT; j++ {
			if a := util.Readn(bp.Data(), 4, 4*j); a != 0 {
				u.bfree(k, a)
			}
		}
		bp.Relse(k)
		u.bfree(k, ind)
		ip.Addrs[fs.NDIRECT] = 0
	}
	ip.Size = 0
	u.Iupdate(k, ip)
}

func (u *Ufs_t) Stats() string {
	s := "ufs:" + stats.Stats2String(&u.st)
	if u.log != nil {
		s += u.log.Stats()
	}
	return s
}
