// Package bio is the buffer cache: a fixed set of block buffers kept in an
// MRU arena. Caching disk blocks in memory reduces the number of disk reads
// and also provides a synchronization point for disk blocks used by
// multiple processes.
//
// Interface:
//   - To get a buffer for a particular disk block, call Bread.
//   - After changing buffer data, call Bwrite to write it to disk.
//   - When done with the buffer, call Relse.
//   - Do not use the buffer after calling Relse.
//   - Only one process at a time can use a buffer, so do not keep them
//     longer than necessary.
package bio

import "fmt"

import "rv6/arena"
import "rv6/defs"
import "rv6/lock"
import "rv6/mem"
import "rv6/stats"

const bdev_debug = false

const BSIZE = defs.BSIZE

type Bdevcmd_t uint

const (
	BDEV_WRITE Bdevcmd_t = 1
	BDEV_READ  Bdevcmd_t = 2
)

// one transfer between a run of physical memory and consecutive disk
// blocks.
type Bdev_req_t struct {
	Cmd     Bdevcmd_t
	Blockno int
	Pa      mem.Pa_t
	Len     int
	// set while the device owns the request
	Disk bool
	Wc   lock.Waitchannel_t
}

type Disk_i interface {
	// performs the request, sleeping until it completes.
	Rw(k lock.Kctx_i, req *Bdev_req_t)
	Stats() string
}

// implemented by disks that can write a run of consecutive blocks from
// contiguous physical memory with one request.
type Seqdisk_i interface {
	Write_seq(k lock.Kctx_i, pa mem.Pa_t, nblk, bno int)
}

// a cached disk block. the payload lives in physical memory so that the
// device can DMA to and from it.
type Bdev_block_t struct {
	Dev   int
	Block int
	// protects Valid, Data and Req
	Lock  lock.Sleeplock_t
	Valid bool
	Pa    mem.Pa_t
	Data  []uint8
	Req   Bdev_req_t
}

type bstats_t struct {
	Nget   stats.Counter_t
	Nhit   stats.Counter_t
	Nread  stats.Counter_t
	Nwrite stats.Counter_t
}

type Bcache_t struct {
	arena *arena.Mruarena_t[Bdev_block_t]
	disk  Disk_i
	stats bstats_t
}

// makes a cache of nbuf buffers whose payloads are carved out of frames
// from phys.
func Mkbcache(k lock.Kctx_i, phys *mem.Physmem_t, disk Disk_i, nbuf int) *Bcache_t {
	bc := &Bcache_t{disk: disk}
	bc.arena = arena.MkMruarena[Bdev_block_t]("bcache", nbuf)
	per := mem.PGSIZE / BSIZE
	refs := make([]*arena.Rc_t[Bdev_block_t], 0, nbuf)
	var pg mem.Pa_t
	for i := 0; i < nbuf; i++ {
		if i%per == 0 {
			var ok bool
			pg, ok = phys.Zalloc(k)
			if !ok {
				panic("binit: no memory")
			}
		}
		pa := pg + mem.Pa_t((i%per)*BSIZE)
		r, ok := bc.arena.Alloc(k, func(b *Bdev_block_t) {
			b.Dev = -1
			b.Block = -1
			b.Lock.Init("buffer")
			b.Pa = pa
			b.Data = phys.Dmaplen(pa, BSIZE)
		})
		if !ok {
			panic("binit")
		}
		refs = append(refs, r)
	}
	for _, r := range refs {
		r.Free(k)
	}
	return bc
}

// a referenced buffer. a Buf_t returned by Bget and Bread is locked.
type Buf_t struct {
	rc     *arena.Rc_t[Bdev_block_t]
	bc     *Bcache_t
	locked bool
}

func (b *Buf_t) blk() *Bdev_block_t {
	return b.rc.Get()
}

func (b *Buf_t) Data() []uint8 {
	if !b.locked {
		panic("data of unlocked buffer")
	}
	return b.blk().Data
}

func (b *Buf_t) Blockno() int {
	return b.blk().Block
}

func (b *Buf_t) Dev() int {
	return b.blk().Dev
}

// looks through the cache for block bno on device dev. if not found, takes
// the least recently used free buffer. in either case, returns the buffer
// locked.
func (bc *Bcache_t) Bget(k lock.Kctx_i, dev, bno int) *Buf_t {
	bc.stats.Nget.Inc()
	hit := true
	rc, ok := bc.arena.Find_or_alloc(k, func(b *Bdev_block_t) bool {
		return b.Dev == dev && b.Block == bno
	}, func(b *Bdev_block_t) {
		hit = false
		b.Dev = dev
		b.Block = bno
		b.Valid = false
	})
	if !ok {
		panic("bget: no buffers")
	}
	if hit {
		bc.stats.Nhit.Inc()
	}
	if bdev_debug {
		fmt.Printf("bget %v/%v hit %v\n", dev, bno, hit)
	}
	b := &Buf_t{rc: rc, bc: bc}
	b.Lock(k)
	return b
}

// returns a locked buffer with the contents of the indicated block.
func (bc *Bcache_t) Bread(k lock.Kctx_i, dev, bno int) *Buf_t {
	b := bc.Bget(k, dev, bno)
	blk := b.blk()
	if !blk.Valid {
		bc.stats.Nread.Inc()
		bc.rw(k, blk, BDEV_READ)
		blk.Valid = true
	}
	return b
}

// like Bget, but the contents are zeroed and the buffer marked valid. for
// blocks about to be overwritten in full.
func (bc *Bcache_t) Bzero(k lock.Kctx_i, dev, bno int) *Buf_t {
	b := bc.Bget(k, dev, bno)
	blk := b.blk()
	for i := range blk.Data {
		blk.Data[i] = 0
	}
	blk.Valid = true
	return b
}

func (bc *Bcache_t) rw(k lock.Kctx_i, blk *Bdev_block_t, cmd Bdevcmd_t) {
	blk.Req.Cmd = cmd
	blk.Req.Blockno = blk.Block
	blk.Req.Pa = blk.Pa
	blk.Req.Len = BSIZE
	bc.disk.Rw(k, &blk.Req)
}

// writes the buffer's contents to disk. must be locked.
func (b *Buf_t) Bwrite(k lock.Kctx_i) {
	if !b.locked {
		panic("bwrite")
	}
	b.bc.stats.Nwrite.Inc()
	b.bc.rw(k, b.blk(), BDEV_WRITE)
}

func (b *Buf_t) Lock(k lock.Kctx_i) {
	if b.locked {
		panic("buffer already locked")
	}
	b.blk().Lock.Acquire(k)
	b.locked = true
}

// releases the buffer's lock but keeps the reference.
func (b *Buf_t) Unlock(k lock.Kctx_i) {
	if !b.locked {
		panic("brelse")
	}
	b.locked = false
	b.blk().Lock.Release(k)
}

// releases a buffer and its lock, if held.
func (b *Buf_t) Relse(k lock.Kctx_i) {
	if b.locked {
		b.Unlock(k)
	}
	b.rc.Free(k)
}

// an extra unlocked reference which keeps the block cached.
func (b *Buf_t) Pin(k lock.Kctx_i) *Buf_t {
	return &Buf_t{rc: b.rc.Dup(k), bc: b.bc}
}

func (bc *Bcache_t) Disk() Disk_i {
	return bc.disk
}

// is the block cached with valid contents? does not change the cache.
func (bc *Bcache_t) Cached(k lock.Kctx_i, dev, bno int) bool {
	found := false
	bc.arena.Iter(k, func(b *Bdev_block_t, refcnt int) bool {
		if b.Dev == dev && b.Block == bno && b.Valid {
			found = true
			return false
		}
		return true
	})
	return found
}

// drops the cached contents of every unreferenced buffer for dev.
func (bc *Bcache_t) Invalidate(k lock.Kctx_i, dev int) {
	bc.arena.Iter(k, func(b *Bdev_block_t, refcnt int) bool {
		if refcnt == 0 && b.Dev == dev {
			b.Valid = false
		}
		return true
	})
}

func (bc *Bcache_t) Stats() string {
	return "bcache:" + stats.Stats2String(&bc.stats)
}

func (bc *Bcache_t) Nread() int64 {
	return bc.stats.Nread.Get()
}
