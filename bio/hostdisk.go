package bio

import "fmt"
import "sync"

import "rv6/hw"
import "rv6/lock"
import "rv6/mem"

// a disk driver that performs each request synchronously on the caller's
// thread against a backing store. host tools and filesystem tests use it in
// place of the virtio driver.
type Hostdisk_t struct {
	sync.Mutex
	phys   *mem.Physmem_t
	b      hw.Backing_i
	Nread  int
	Nwrite int
}

func MkHostdisk(phys *mem.Physmem_t, b hw.Backing_i) *Hostdisk_t {
	return &Hostdisk_t{phys: phys, b: b}
}

func (hd *Hostdisk_t) Rw(k lock.Kctx_i, req *Bdev_req_t) {
	hd.Lock()
	defer hd.Unlock()
	buf := hd.phys.Dmaplen(req.Pa, req.Len)
	off := int64(req.Blockno) * BSIZE
	switch req.Cmd {
	case BDEV_READ:
		hd.Nread++
		if n, err := hd.b.ReadAt(buf, off); n != len(buf) || err != nil {
			panic(fmt.Sprintf("hostdisk read %v: %v", req.Blockno, err))
		}
	case BDEV_WRITE:
		hd.Nwrite++
		if n, err := hd.b.WriteAt(buf, off); n != len(buf) || err != nil {
			panic(fmt.Sprintf("hostdisk write %v: %v", req.Blockno, err))
		}
	default:
		panic("hostdisk: bad cmd")
	}
}

func (hd *Hostdisk_t) Write_seq(k lock.Kctx_i, pa mem.Pa_t, nblk, bno int) {
	req := &Bdev_req_t{Cmd: BDEV_WRITE, Blockno: bno, Pa: pa, Len: nblk * BSIZE}
	hd.Rw(k, req)
}

func (hd *Hostdisk_t) Stats() string {
	hd.Lock()
	defer hd.Unlock()
	return fmt.Sprintf("hostdisk: nread %v nwrite %v\n", hd.Nread, hd.Nwrite)
}

// the number of blocks the disk holds.
func (hd *Hostdisk_t) Nblocks() int {
	return int(hd.b.Size() / BSIZE)
}
