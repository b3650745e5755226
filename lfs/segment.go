package lfs

import "fmt"
import "time"

import "rv6/bio"
import "rv6/defs"
import "rv6/lock"
import "rv6/mem"

// the segment being written and the segment usage table. new blocks are
// appended to the open run in memory; their buffers stay pinned in the
// cache until the run is flushed. protected by the lfs lock.
type segmgr_t struct {
	bc    *bio.Bcache_t
	dev   int
	sb    *Superblock_t
	used  []bool
	nused int
	// segments the cleaner emptied; they become free once a checkpoint
	// that no longer needs them is on disk.
	pending []int
	// current segment, or -1 if none is open
	cur int
	// offset of the open run's summary block in cur
	start int
	ents  []Sument_t
	pins  []*bio.Buf_t
	// contiguous memory for writing a run with one request; nil if the
	// disk can't do sequential writes.
	stage   []uint8
	stagepa mem.Pa_t
	seq     bio.Seqdisk_i
	st      *lstats_t
}

func (s *segmgr_t) init(ck *Checkpoint_t) {
	n := s.sb.Nsegments()
	s.used = make([]bool, n)
	s.nused = 0
	for i := 0; i < n; i++ {
		if ck.Segused(i) {
			s.used[i] = true
			s.nused++
		}
	}
	s.cur = ck.Curseg()
	s.start = ck.Curoff()
	if s.cur >= n || !s.used[s.cur] || s.start+1 >= SEGSIZE {
		s.cur = -1
	}
}

// the number of blocks that can still be written, summaries excluded.
func (s *segmgr_t) nfree() int {
	ret := 0
	if s.cur >= 0 {
		ret = SEGSIZE - s.start - 1 - len(s.ents)
	}
	return ret + (len(s.used)-s.nused)*(SEGSIZE-1)
}

func (s *segmgr_t) isfree(segno int) bool {
	return !s.used[segno]
}

func (s *segmgr_t) ispending(segno int) bool {
	for _, p := range s.pending {
		if p == segno {
			return true
		}
	}
	return false
}

// opens the first free segment after the current one.
func (s *segmgr_t) newseg() defs.Err_t {
	n := len(s.used)
	from := s.cur
	if from < 0 {
		from = n - 1
	}
	for i := 1; i <= n; i++ {
		segno := (from + i) % n
		if !s.used[segno] {
			s.used[segno] = true
			s.nused++
			s.cur = segno
			s.start = 0
			s.st.Nsegs.Inc()
			if lfs_debug {
				fmt.Printf("lfs: open segment %v\n", segno)
			}
			return 0
		}
	}
	return -defs.ENOSPC
}

// makes room for n more blocks in the open run, flushing it or moving to
// a new segment if needed. the caller must hold no buffer that the open
// run pins.
func (s *segmgr_t) reserve(k lock.Kctx_i, n int) defs.Err_t {
	if n >= SEGSIZE {
		panic("reserve")
	}
	if s.cur >= 0 && s.start+1+len(s.ents)+n <= SEGSIZE {
		return 0
	}
	s.flush(k)
	if s.cur >= 0 && s.start+1+n <= SEGSIZE {
		return 0
	}
	return s.newseg()
}

// the position of the block ent names if the open run holds it.
func (s *segmgr_t) find(ent Sument_t) int {
	for i, e := range s.ents {
		if e == ent {
			return s.sb.Segblock(s.cur, s.start+1+i)
		}
	}
	return 0
}

// adds b, which holds the block at next(), to the open run.
func (s *segmgr_t) append(k lock.Kctx_i, ent Sument_t, b *bio.Buf_t) {
	s.ents = append(s.ents, ent)
	s.pins = append(s.pins, b.Pin(k))
}

// the disk block the next appended block goes to. the caller must have
// reserved room for it.
func (s *segmgr_t) next() int {
	if s.cur < 0 || s.start+1+len(s.ents) >= SEGSIZE {
		panic("lfs: no room in run")
	}
	return s.sb.Segblock(s.cur, s.start+1+len(s.ents))
}

// writes the open run to disk: its summary followed by its blocks.
func (s *segmgr_t) flush(k lock.Kctx_i) {
	if len(s.ents) == 0 {
		return
	}
	t := time.Now()
	n := len(s.ents)
	sumbno := s.sb.Segblock(s.cur, s.start)
	sb := s.bc.Bzero(k, s.dev, sumbno)
	sum := Summary_t{Data: sb.Data()}
	sum.Write(s.ents)
	if s.seq != nil && s.stage != nil {
		copy(s.stage, sb.Data())
		sb.Relse(k)
		for i, p := range s.pins {
			p.Lock(k)
			copy(s.stage[(i+1)*bio.BSIZE:(i+2)*bio.BSIZE], p.Data())
			p.Relse(k)
		}
		s.seq.Write_seq(k, s.stagepa, n+1, sumbno)
		s.st.Nseqwrite.Inc()
	} else {
		sb.Bwrite(k)
		sb.Relse(k)
		for _, p := range s.pins {
			p.Lock(k)
			p.Bwrite(k)
			p.Relse(k)
		}
	}
	s.st.Nflush.Inc()
	s.st.Nblkflushed.Add(int64(n))
	s.start += n + 1
	s.ents = s.ents[:0]
	s.pins = s.pins[:0]
	if s.start+1 >= SEGSIZE {
		s.cur = -1
	}
	s.st.flushlat.Record(t)
}

// records the usage table in ck, without the segments waiting to be
// freed.
func (s *segmgr_t) save(ck *Checkpoint_t) {
	for i, u := range s.used {
		ck.SetSegused(i, u && !s.ispending(i))
	}
	if s.cur >= 0 {
		ck.SetCuroff(s.start)
		ck.SetCurseg(s.cur)
	} else {
		// no open segment; mount will pick one
		ck.SetCurseg(len(s.used))
		ck.SetCuroff(0)
	}
}

// frees the segments the last checkpoint stopped referencing.
func (s *segmgr_t) release() {
	for _, p := range s.pending {
		if s.used[p] {
			s.used[p] = false
			s.nused--
		}
	}
	s.pending = s.pending[:0]
}
