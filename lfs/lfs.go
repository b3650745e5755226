// Package lfs is a log-structured disk layout. Every update is written to
// a fresh location at the end of the log; an inode map locates the current
// copy of each inode; checkpoints alternate between two fixed regions; and
// a cleaner moves the few live blocks out of mostly dead segments so they
// can be reused. It implements the backend half of the filesystem for
// package fs.
package lfs

import "fmt"

import "rv6/bio"
import "rv6/defs"
import "rv6/fs"
import "rv6/lock"
import "rv6/mem"
import "rv6/stats"
import "rv6/util"

const lfs_debug = false

type lstats_t struct {
	Nflush       stats.Counter_t
	Nblkflushed  stats.Counter_t
	Nseqwrite    stats.Counter_t
	Nsegs        stats.Counter_t
	Ncheckpoint  stats.Counter_t
	Ncow         stats.Counter_t
	Nabsorb      stats.Counter_t
	Nclean       stats.Counter_t
	Nsegscleaned stats.Counter_t
	Nlivemoved   stats.Counter_t
	Nenospc      stats.Counter_t
	flushlat     stats.Latency_t
}

type Lfs_t struct {
	fs  *fs.Fs_t
	bc  *bio.Bcache_t
	dev int
	sb  Superblock_t
	// protects the imap and the segment manager. ordered after inode
	// locks and before buffer locks.
	lk   lock.Sleeplock_t
	imap [IMAPSIZE]int
	seg  segmgr_t
	tx   txmgr_t
	// segment where the cleaner stopped last time
	lastclean int
	cleaning  bool
	// written anything since the last checkpoint?
	dirty   bool
	phys    *mem.Physmem_t
	stagepa mem.Pa_t
	st      lstats_t
}

// returns a filesystem on dev that uses the log-structured layout. if
// phys is not nil, stage is SEGSIZE contiguous blocks of physical memory
// used to write each run with one request on disks that support it. the
// filesystem must be mounted with Init before use.
func Mklfs(bc *bio.Bcache_t, dev int, phys *mem.Physmem_t, stage mem.Pa_t) *fs.Fs_t {
	l := &Lfs_t{phys: phys, stagepa: stage}
	return fs.MkFs(bc, dev, l)
}

func (l *Lfs_t) Mount(k lock.Kctx_i, f *fs.Fs_t) {
	l.fs = f
	l.bc = f.Bc
	l.dev = f.Dev
	l.lk.Init("lfs")
	b := l.bc.Bread(k, l.dev, 1)
	l.sb.Data = make([]uint8, bio.BSIZE)
	copy(l.sb.Data, b.Data())
	b.Relse(k)
	if l.sb.Magic() != fs.FSMAGIC || l.sb.Nsegments() > MAXSEGS ||
		l.sb.Ninodes() > MAXINODES {
		panic("invalid file system")
	}

	// load the more recent checkpoint
	b1 := l.bc.Bread(k, l.dev, l.sb.Checkpoint1())
	b2 := l.bc.Bread(k, l.dev, l.sb.Checkpoint2())
	ck1 := &Checkpoint_t{Data: b1.Data()}
	ck2 := &Checkpoint_t{Data: b2.Data()}
	ck, first := ck1, true
	if ck2.Timestamp() > ck1.Timestamp() {
		ck, first = ck2, false
	}
	for i := range l.imap {
		l.imap[i] = ck.Imap(i)
	}
	l.seg = segmgr_t{bc: l.bc, dev: l.dev, sb: &l.sb, st: &l.st}
	l.seg.init(ck)
	l.tx.init(l, first, ck.Timestamp())
	b1.Relse(k)
	b2.Relse(k)

	if sd, ok := l.bc.Disk().(bio.Seqdisk_i); ok && l.phys != nil {
		l.seg.seq = sd
		l.seg.stagepa = l.stagepa
		l.seg.stage = l.phys.Dmaplen(l.stagepa, SEGSIZE*bio.BSIZE)
	}
	l.lastclean = l.sb.Nsegments() - 1
	if lfs_debug {
		fmt.Printf("lfs: %v segments, %v used, ts %v\n", l.sb.Nsegments(),
			l.seg.nused, ck.Timestamp())
	}
}

func (l *Lfs_t) Sb() *Superblock_t {
	return &l.sb
}

func (l *Lfs_t) Begin_op(k lock.Kctx_i) {
	l.tx.begin_op(k)
}

func (l *Lfs_t) End_op(k lock.Kctx_i) {
	l.tx.end_op(k)
}

// the number of blocks that can still be written.
func (l *Lfs_t) Nfree(k lock.Kctx_i) int {
	l.lk.Acquire(k)
	defer l.lk.Release(k)
	return l.seg.nfree()
}

// returns a locked buffer for the block ent in the open run, copying the
// contents at old, or zeroing it if old is 0. the caller must hold the lfs
// lock and have reserved room.
func (l *Lfs_t) cow(k lock.Kctx_i, ent Sument_t, old int) (*bio.Buf_t, int) {
	if addr := l.seg.find(ent); addr != 0 {
		l.st.Nabsorb.Inc()
		return l.bc.Bread(k, l.dev, addr), addr
	}
	addr := l.seg.next()
	b := l.bc.Bzero(k, l.dev, addr)
	if old != 0 {
		ob := l.bc.Bread(k, l.dev, old)
		copy(b.Data(), ob.Data())
		ob.Relse(k)
	}
	l.seg.append(k, ent, b)
	l.dirty = true
	l.st.Ncow.Inc()
	return b, addr
}

func (l *Lfs_t) reserve(k lock.Kctx_i, n int) {
	if err := l.seg.reserve(k, n); err != 0 {
		panic("lfs: out of segments")
	}
}

func (l *Lfs_t) checkinum(inum defs.Inum_t) {
	if inum == 0 || int(inum) >= l.sb.Ninodes() {
		panic(fmt.Sprintf("invalid inum %v", inum))
	}
}

// the disk block of inode inum, or 0 if it is free. caller holds the lfs
// lock.
func (l *Lfs_t) imap_get(k lock.Kctx_i, inum defs.Inum_t) int {
	l.checkinum(inum)
	ib := l.imap[int(inum)/NENTRY]
	if ib == 0 {
		return 0
	}
	b := l.bc.Bread(k, l.dev, ib)
	ret := util.Readn(b.Data(), 4, 4*(int(inum)%NENTRY))
	b.Relse(k)
	return ret
}

// moves imap block n to the open run and returns it locked.
func (l *Lfs_t) imap_writable(k lock.Kctx_i, n int) *bio.Buf_t {
	b, addr := l.cow(k, Sument_t{Kind: Imap, Blockno: n}, l.imap[n])
	l.imap[n] = addr
	return b
}

func (l *Lfs_t) imap_set(k lock.Kctx_i, inum defs.Inum_t, addr int) {
	l.checkinum(inum)
	b := l.imap_writable(k, int(inum)/NENTRY)
	util.Writen(b.Data(), 4, 4*(int(inum)%NENTRY), addr)
	b.Relse(k)
}

// writes a new copy of the inode and points the imap at it. a free inode
// has no copy.
func (l *Lfs_t) iwrite(k lock.Kctx_i, inum defs.Inum_t, di *fs.Dinode_t) {
	l.reserve(k, 2)
	if di.Type == 0 {
		l.imap_set(k, inum, 0)
		return
	}
	b, addr := l.cow(k, Sument_t{Kind: Inode, Inum: inum}, 0)
	di.Encode(b.Data())
	b.Relse(k)
	l.imap_set(k, inum, addr)
}

func (l *Lfs_t) Ialloc(k lock.Kctx_i, typ int16) (defs.Inum_t, defs.Err_t) {
	l.lk.Acquire(k)
	defer l.lk.Release(k)
	n := l.sb.Ninodes()
	for i := 0; i < IMAPSIZE && i*NENTRY < n; i++ {
		var d []uint8
		var b *bio.Buf_t
		if l.imap[i] != 0 {
			b = l.bc.Bread(k, l.dev, l.imap[i])
			d = b.Data()
		}
		for j := 0; j < NENTRY; j++ {
			inum := i*NENTRY + j
			if inum == 0 || inum >= n {
				continue
			}
			if d == nil || util.Readn(d, 4, 4*j) == 0 {
				if b != nil {
					b.Relse(k)
				}
				di := fs.Dinode_t{Type: typ}
				l.iwrite(k, defs.Inum_t(inum), &di)
				return defs.Inum_t(inum), 0
			}
		}
		if b != nil {
			b.Relse(k)
		}
	}
	l.st.Nenospc.Inc()
	return 0, -defs.ENOSPC
}

func (l *Lfs_t) Iread(k lock.Kctx_i, ip *fs.Inode_t) {
	l.lk.Acquire(k)
	defer l.lk.Release(k)
	addr := l.imap_get(k, ip.Inum)
	if addr == 0 {
		ip.Dinode_t = fs.Dinode_t{}
		return
	}
	b := l.bc.Bread(k, l.dev, addr)
	ip.Dinode_t.Decode(b.Data())
	b.Relse(k)
}

func (l *Lfs_t) Iupdate(k lock.Kctx_i, ip *fs.Inode_t) {
	l.lk.Acquire(k)
	defer l.lk.Release(k)
	l.iwrite(k, ip.Inum, &ip.Dinode_t)
}

// data writes leave this much room for the inode and imap updates that
// follow them and for the cleaner.
const MIN_REQUIRED_BLOCKS = 36

func (l *Lfs_t) Bwritable(k lock.Kctx_i, ip *fs.Inode_t, bn int) (*bio.Buf_t, defs.Err_t) {
	l.lk.Acquire(k)
	defer l.lk.Release(k)
	if !l.cleaning && l.seg.nfree() < MIN_REQUIRED_BLOCKS {
		l.st.Nenospc.Inc()
		return nil, -defs.ENOSPC
	}
	// the data block and maybe the indirect block
	if err := l.seg.reserve(k, 2); err != 0 {
		l.st.Nenospc.Inc()
		return nil, err
	}
	if bn < fs.NDIRECT {
		b, addr := l.cow(k, Sument_t{Kind: DataBlock, Inum: ip.Inum, Blockno: bn},
			int(ip.Addrs[bn]))
		ip.Addrs[bn] = uint32(addr)
		return b, 0
	}
	if bn-fs.NDIRECT >= fs.NINDIRECT {
		panic("bmap: out of range")
	}
	ib := l.indirect_writable(k, ip)
	off := 4 * (bn - fs.NDIRECT)
	old := util.Readn(ib.Data(), 4, off)
	b, addr := l.cow(k, Sument_t{Kind: DataBlock, Inum: ip.Inum, Blockno: bn}, old)
	util.Writen(ib.Data(), 4, off, addr)
	ib.Relse(k)
	return b, 0
}

// moves ip's indirect block to the open run and returns it locked.
func (l *Lfs_t) indirect_writable(k lock.Kctx_i, ip *fs.Inode_t) *bio.Buf_t {
	ib, iaddr := l.cow(k, Sument_t{Kind: IndirectMap, Inum: ip.Inum},
		int(ip.Addrs[fs.NDIRECT]))
	ip.Addrs[fs.NDIRECT] = uint32(iaddr)
	return ib
}

// the block stays pinned in the open run until it is flushed.
func (l *Lfs_t) Bwritten(k lock.Kctx_i, ip *fs.Inode_t, b *bio.Buf_t) {
	b.Relse(k)
}

// old blocks become garbage for the cleaner to find.
func (l *Lfs_t) Itrunc(k lock.Kctx_i, ip *fs.Inode_t) {
	for i := range ip.Addrs {
		ip.Addrs[i] = 0
	}
	ip.Size = 0
	l.Iupdate(k, ip)
}

// flushes the open run and writes a checkpoint naming it to the region
// not holding the current one. caller holds the lfs lock.
func (l *Lfs_t) checkpoint(k lock.Kctx_i, first bool, ts int) {
	l.seg.flush(k)
	bno := l.sb.Checkpoint2()
	if first {
		bno = l.sb.Checkpoint1()
	}
	b := l.bc.Bzero(k, l.dev, bno)
	ck := &Checkpoint_t{Data: b.Data()}
	ck.SetTimestamp(ts)
	for i, a := range l.imap {
		ck.SetImap(i, a)
	}
	l.seg.save(ck)
	b.Bwrite(k)
	b.Relse(k)
	l.seg.release()
	l.dirty = false
	l.st.Ncheckpoint.Inc()
}

func (l *Lfs_t) Ncheckpoint() int64 {
	return l.st.Ncheckpoint.Get()
}

func (l *Lfs_t) Nsegscleaned() int64 {
	return l.st.Nsegscleaned.Get()
}

// the number of runs written with a single sequential request.
func (l *Lfs_t) Nseqwrite() int64 {
	return l.st.Nseqwrite.Get()
}

func (l *Lfs_t) Stats() string {
	return "lfs:" + stats.Stats2String(&l.st) + "\tflush latency: " +
		l.st.flushlat.String() + "\n"
}
