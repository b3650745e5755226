package lfs

import "rv6/lock"

// start cleaning when fewer blocks than this are free after a commit.
const CLEANING_THRES = MIN_FREE_BLOCKS

// brackets FS system calls. when the last outstanding call ends, the open
// run and a checkpoint are written, and the cleaner runs if free space is
// low. new calls wait while that happens.
type txmgr_t struct {
	lock.Sleepablelock_t
	l *Lfs_t
	// how many FS sys calls are executing
	outstanding int
	// in commit(), please wait
	committing bool
	// is the latest checkpoint in the first region?
	first     bool
	timestamp int
}

func (tx *txmgr_t) init(l *Lfs_t, first bool, ts int) {
	tx.Init("lfstx")
	tx.l = l
	tx.first = first
	tx.timestamp = ts
}

func (tx *txmgr_t) begin_op(k lock.Kctx_i) {
	tx.Acquire(k)
	for tx.committing {
		tx.Sleep(k)
	}
	tx.outstanding++
	tx.Release(k)
}

func (tx *txmgr_t) end_op(k lock.Kctx_i) {
	tx.Acquire(k)
	tx.outstanding--
	if tx.committing {
		panic("lfs.committing")
	}
	if tx.outstanding == 0 {
		// no transaction is running and none can start until
		// committing is cleared.
		tx.committing = true
		tx.Reacquire_after(k, func() {
			tx.commit(k)
			if tx.l.Nfree(k) < CLEANING_THRES {
				tx.l.clean(k)
				tx.commit(k)
			}
		})
		tx.committing = false
	}
	// begin_op may be waiting for the commit to finish.
	tx.Wakeup(k)
	tx.Release(k)
}

// committing is set, so the checkpoint fields are stable.
func (tx *txmgr_t) commit(k lock.Kctx_i) {
	l := tx.l
	l.lk.Acquire(k)
	defer l.lk.Release(k)
	if !l.dirty && len(l.seg.pending) == 0 {
		return
	}
	tx.first = !tx.first
	tx.timestamp++
	l.checkpoint(k, tx.first, tx.timestamp)
}
