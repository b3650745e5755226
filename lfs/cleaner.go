package lfs

import "fmt"

import "rv6/fs"
import "rv6/lock"

// only segments with at most this many live blocks are cleaned.
const MAX_LIVE_BLOCKS = 2

// moving one live block can take a data or indirect block, an inode block
// and an imap block of the open segment, and an imap block appears at most
// once per run; so this many segments can be cleaned within the reserve.
const MAX_SEGS_CLEANED = MIN_REQUIRED_BLOCKS / (SEGSIZE - 1) *
	(SEGSIZE - 1 - IMAPSIZE) / (MAX_LIVE_BLOCKS * 2)

// a cleaning pass stops once this many blocks will be free.
const MIN_FREE_BLOCKS = MAX_SEGS_CLEANED * (SEGSIZE - 1)

// a block the cleaner found live.
type live_t struct {
	ent Sument_t
	bno int
}

// is the block at bno, which a summary describes as ent, still in use?
func (l *Lfs_t) islive(k lock.Kctx_i, ent Sument_t, bno int) bool {
	switch ent.Kind {
	case Inode:
		l.lk.Acquire(k)
		defer l.lk.Release(k)
		return l.imap_get(k, ent.Inum) == bno
	case Imap:
		l.lk.Acquire(k)
		defer l.lk.Release(k)
		return ent.Blockno < IMAPSIZE && l.imap[ent.Blockno] == bno
	case DataBlock, IndirectMap:
		live := false
		l.withinode(k, ent, func(ip *fs.Inode_t) {
			live = l.owns(k, ip, ent, bno)
		})
		return live
	}
	return false
}

// does ip, which is locked, point at bno for ent?
func (l *Lfs_t) owns(k lock.Kctx_i, ip *fs.Inode_t, ent Sument_t, bno int) bool {
	if ip.Type == 0 {
		return false
	}
	if ent.Kind == IndirectMap {
		return int(ip.Addrs[fs.NDIRECT]) == bno
	}
	if ent.Blockno < 0 || ent.Blockno >= fs.MAXFILE {
		return false
	}
	return ip.Bmap(k, ent.Blockno) == bno
}

// runs f with ent's inode locked, if the inode exists.
func (l *Lfs_t) withinode(k lock.Kctx_i, ent Sument_t, f func(*fs.Inode_t)) {
	if ent.Inum == 0 || int(ent.Inum) >= l.sb.Ninodes() {
		return
	}
	l.lk.Acquire(k)
	exists := l.imap_get(k, ent.Inum) != 0
	l.lk.Release(k)
	if !exists {
		return
	}
	ir := l.fs.Iget(k, ent.Inum)
	ip := ir.I()
	ip.Ilock(k)
	f(ip)
	ir.Unlockput(k)
}

// returns the live blocks of segno, stopping early once there are more
// than thres of them.
func (l *Lfs_t) scan(k lock.Kctx_i, segno, thres int) ([]live_t, bool) {
	var ret []live_t
	for off := 0; off+1 < SEGSIZE; {
		b := l.bc.Bread(k, l.dev, l.sb.Segblock(segno, off))
		sum := Summary_t{Data: b.Data()}
		if !sum.Valid() || off+1+sum.Size() > SEGSIZE {
			b.Relse(k)
			break
		}
		n := sum.Size()
		ents := make([]Sument_t, n)
		for i := range ents {
			ents[i] = sum.Ent(i)
		}
		b.Relse(k)
		for i, e := range ents {
			bno := l.sb.Segblock(segno, off+1+i)
			if l.islive(k, e, bno) {
				ret = append(ret, live_t{ent: e, bno: bno})
				if len(ret) > thres {
					return ret, false
				}
			}
		}
		off += n + 1
	}
	return ret, true
}

// copies a live block to the open segment. its liveness is checked again
// since moving earlier blocks may have freed inodes.
func (l *Lfs_t) move(k lock.Kctx_i, lv live_t) {
	switch lv.ent.Kind {
	case Inode:
		l.withinode(k, lv.ent, func(ip *fs.Inode_t) {
			l.lk.Acquire(k)
			if l.imap_get(k, ip.Inum) == lv.bno {
				l.iwrite(k, ip.Inum, &ip.Dinode_t)
				l.st.Nlivemoved.Inc()
			}
			l.lk.Release(k)
		})
	case Imap:
		l.lk.Acquire(k)
		if l.imap[lv.ent.Blockno] == lv.bno {
			l.reserve(k, 1)
			l.imap_writable(k, lv.ent.Blockno).Relse(k)
			l.st.Nlivemoved.Inc()
		}
		l.lk.Release(k)
	case DataBlock, IndirectMap:
		l.withinode(k, lv.ent, func(ip *fs.Inode_t) {
			if !l.owns(k, ip, lv.ent, lv.bno) {
				return
			}
			if lv.ent.Kind == DataBlock {
				b, err := l.Bwritable(k, ip, lv.ent.Blockno)
				if err != 0 {
					panic("cleaner: no space")
				}
				l.Bwritten(k, ip, b)
			} else {
				l.lk.Acquire(k)
				l.reserve(k, 1)
				l.indirect_writable(k, ip).Relse(k)
				l.lk.Release(k)
			}
			l.Iupdate(k, ip)
			l.st.Nlivemoved.Inc()
		})
	}
}

// provides more free segments. visits the used segments after the one
// where the last pass stopped and empties those with few live blocks,
// until MIN_FREE_BLOCKS blocks will be free. the emptied segments are
// freed by the next checkpoint. called with no transaction running.
func (l *Lfs_t) clean(k lock.Kctx_i) {
	l.cleaning = true
	defer func() { l.cleaning = false }()
	l.st.Nclean.Inc()
	nseg := l.sb.Nsegments()
	ncleaned := 0
	last := l.lastclean
	for i := 1; i <= nseg && ncleaned < MAX_SEGS_CLEANED; i++ {
		segno := (l.lastclean + i) % nseg
		l.lk.Acquire(k)
		skip := l.seg.isfree(segno) || segno == l.seg.cur || l.seg.ispending(segno)
		l.lk.Release(k)
		if skip {
			continue
		}
		last = segno
		lives, ok := l.scan(k, segno, MAX_LIVE_BLOCKS)
		if !ok {
			continue
		}
		for _, lv := range lives {
			l.move(k, lv)
		}
		ncleaned++
		if lfs_debug {
			fmt.Printf("lfs: cleaned segment %v (%v live)\n", segno, len(lives))
		}
		l.lk.Acquire(k)
		l.seg.pending = append(l.seg.pending, segno)
		enough := l.seg.nfree()+len(l.seg.pending)*(SEGSIZE-1) >= MIN_FREE_BLOCKS
		l.lk.Release(k)
		if enough {
			break
		}
	}
	l.lastclean = last
	l.st.Nsegscleaned.Add(int64(ncleaned))
}

// the summaries of segno's runs, for debugging.
func (l *Lfs_t) Dumpseg(k lock.Kctx_i, segno int) string {
	s := fmt.Sprintf("segment %v:\n", segno)
	for off := 0; off+1 < SEGSIZE; {
		b := l.bc.Bread(k, l.dev, l.sb.Segblock(segno, off))
		sum := Summary_t{Data: b.Data()}
		if !sum.Valid() {
			b.Relse(k)
			break
		}
		for i := 0; i < sum.Size(); i++ {
			e := sum.Ent(i)
			s += fmt.Sprintf("\t%v: %v inum %v bn %v\n", off+1+i, e.Kind,
				e.Inum, e.Blockno)
		}
		off += sum.Size() + 1
		b.Relse(k)
	}
	return s
}
