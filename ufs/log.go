package ufs

import "fmt"
import "time"

import "rv6/bio"
import "rv6/defs"
import "rv6/lock"
import "rv6/stats"
import "rv6/util"

const log_debug = false

// Simple logging that allows concurrent FS system calls.
//
// A log transaction contains the updates of multiple FS system calls. The
// logging system only commits when there are no FS system calls active.
// Thus there is never any reasoning required about whether a commit might
// write an uncommitted system call's updates to disk.
//
// A system call should call Begin_op/End_op to mark its start and end.
// Usually Begin_op just increments the count of in-progress FS system calls
// and returns. But if it thinks the log is close to running out, it sleeps
// until the last outstanding End_op commits.
//
// The log is a physical re-do log containing disk blocks. The on-disk log
// format:
//
//	header block, containing block #s for block A, B, C, ...
//	block A
//	block B
//	block C
//	...
//
// Log appends are synchronous.
type Log_t struct {
	// protects everything below. its wait channel is where Begin_op
	// waits.
	lock.Sleepablelock_t
	bc    *bio.Bcache_t
	dev   int
	start int
	size  int
	// how many FS sys calls are executing
	outstanding int
	// in commit(), please wait
	committing bool
	// block numbers of the current transaction and a pin on each one's
	// cached buffer
	lh   []int
	pins []*bio.Buf_t
	st   logstats_t
	lat  stats.Latency_t
}

type logstats_t struct {
	Nlogwrite    stats.Counter_t
	Nabsorb      stats.Counter_t
	Ncommit      stats.Counter_t
	Nblkcommit   stats.Counter_t
	Nrecovered   stats.Counter_t
	Nadmitwait   stats.Counter_t
	Maxblkcommit stats.Counter_t
}

func mklog(bc *bio.Bcache_t, dev, start, size int) *Log_t {
	if size < 2 {
		panic("log too small")
	}
	l := &Log_t{bc: bc, dev: dev, start: start, size: size}
	l.Init("log")
	return l
}

// the most blocks one transaction may hold
func (l *Log_t) capacity() int {
	return util.Min(defs.LOGSIZE, l.size-1)
}

// read the log header from disk into the in-memory log header.
func (l *Log_t) read_head(k lock.Kctx_i) []int {
	b := l.bc.Bread(k, l.dev, l.start)
	d := b.Data()
	n := util.Readn(d, 4, 0)
	if n > l.capacity() {
		panic("log: bad header")
	}
	ret := make([]int, n)
	for i := range ret {
		ret[i] = util.Readn(d, 4, 4+4*i)
	}
	b.Relse(k)
	return ret
}

// write in-memory log header to disk. this is the true point at which the
// current transaction commits.
func (l *Log_t) write_head(k lock.Kctx_i, blks []int) {
	b := l.bc.Bread(k, l.dev, l.start)
	d := b.Data()
	util.Writen(d, 4, 0, len(blks))
	for i, bno := range blks {
		util.Writen(d, 4, 4+4*i, bno)
	}
	b.Bwrite(k)
	b.Relse(k)
}

// copy committed blocks from log to their home location.
func (l *Log_t) install_trans(k lock.Kctx_i, blks []int, recovering bool) {
	for tail, bno := range blks {
		lbuf := l.bc.Bread(k, l.dev, l.start+tail+1)
		dbuf := l.bc.Bread(k, l.dev, bno)
		copy(dbuf.Data(), lbuf.Data())
		dbuf.Bwrite(k)
		if !recovering {
			l.pins[tail].Relse(k)
		}
		lbuf.Relse(k)
		dbuf.Relse(k)
	}
}

// copy modified blocks from cache to log.
func (l *Log_t) write_log(k lock.Kctx_i) {
	for tail, bno := range l.lh {
		to := l.bc.Bread(k, l.dev, l.start+tail+1)
		from := l.bc.Bread(k, l.dev, bno)
		copy(to.Data(), from.Data())
		to.Bwrite(k)
		from.Relse(k)
		to.Relse(k)
	}
}

// installs a transaction a crash left committed in the log.
func (l *Log_t) recover(k lock.Kctx_i) {
	blks := l.read_head(k)
	if log_debug {
		fmt.Printf("log recover: %v blocks\n", len(blks))
	}
	l.install_trans(k, blks, true)
	l.st.Nrecovered.Add(int64(len(blks)))
	// clear the log
	l.write_head(k, nil)
}

func (l *Log_t) commit(k lock.Kctx_i) {
	if len(l.lh) == 0 {
		return
	}
	start := time.Now()
	l.st.Ncommit.Inc()
	l.st.Nblkcommit.Add(int64(len(l.lh)))
	l.st.Maxblkcommit.Max(int64(len(l.lh)))
	// write modified blocks from cache to log
	l.write_log(k)
	// write header to disk -- the real commit
	l.write_head(k, l.lh)
	// now install writes to home locations
	l.install_trans(k, l.lh, false)
	l.lh = l.lh[:0]
	l.pins = l.pins[:0]
	// erase the transaction from the log
	l.write_head(k, nil)
	l.lat.Record(start)
}

// called at the start of each FS system call.
func (l *Log_t) Begin_op(k lock.Kctx_i) {
	l.Acquire(k)
	for {
		if l.committing {
			l.Sleep(k)
		} else if len(l.lh)+(l.outstanding+1)*defs.MAXOPBLOCKS > defs.LOGSIZE {
			// this op might exhaust log space; wait for commit.
			l.st.Nadmitwait.Inc()
			l.Sleep(k)
		} else {
			l.outstanding++
			break
		}
	}
	l.Release(k)
}

// called at the end of each FS system call. commits if this was the last
// outstanding operation.
func (l *Log_t) End_op(k lock.Kctx_i) {
	do_commit := false
	l.Acquire(k)
	l.outstanding--
	if l.committing {
		panic("log.committing")
	}
	if l.outstanding == 0 {
		do_commit = true
		l.committing = true
	} else {
		// Begin_op may be waiting for log space, and decrementing
		// outstanding has decreased the amount of reserved space.
		l.Wakeup(k)
	}
	l.Release(k)

	if do_commit {
		// call commit w/o holding locks, since not allowed to sleep
		// with locks.
		l.commit(k)
		l.Acquire(k)
		l.committing = false
		l.Wakeup(k)
		l.Release(k)
	}
}

// records that the locked buffer b was modified in the current
// transaction. the buffer stays pinned in the cache until the transaction
// is installed. replaces Bwrite: a typical use is
//
//	b := bc.Bread(...)
//	modify b.Data()
//	log.Log_write(b)
//	b.Relse()
func (l *Log_t) Log_write(k lock.Kctx_i, b *bio.Buf_t) {
	l.Acquire(k)
	defer l.Release(k)
	if len(l.lh) >= l.capacity() {
		panic("too big a transaction")
	}
	if l.outstanding < 1 {
		panic("log_write outside of trans")
	}
	l.st.Nlogwrite.Inc()
	bno := b.Blockno()
	for _, o := range l.lh {
		// log absorption
		if o == bno {
			l.st.Nabsorb.Inc()
			return
		}
	}
	l.lh = append(l.lh, bno)
	l.pins = append(l.pins, b.Pin(k))
	if log_debug {
		fmt.Printf("log_write %v (%v in log)\n", bno, len(l.lh))
	}
}

// the number of transactions committed so far.
func (l *Log_t) Ncommit() int64 {
	return l.st.Ncommit.Get()
}

// the number of log writes absorbed by a block already in the transaction.
func (l *Log_t) Nabsorb() int64 {
	return l.st.Nabsorb.Get()
}

func (l *Log_t) Stats() string {
	return "log:" + stats.Stats2String(&l.st) + "\tcommit latency: " +
		l.lat.String() + "\n"
}
