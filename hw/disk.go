package hw

import "fmt"
import "os"
import "sync"

import "golang.org/x/sys/unix"

// the storage behind a block device.
type Backing_i interface {
	ReadAt(p []uint8, off int64) (int, error)
	WriteAt(p []uint8, off int64) (int, error)
	Size() int64
	Sync() error
}

// a disk held in host memory.
type Memdisk_t struct {
	sync.Mutex
	data []uint8
}

func MkMemdisk(size int64) *Memdisk_t {
	return &Memdisk_t{data: make([]uint8, size)}
}

// a memory disk initialized with a copy of img.
func MkMemdiskFrom(img []uint8) *Memdisk_t {
	d := MkMemdisk(int64(len(img)))
	copy(d.data, img)
	return d
}

func (d *Memdisk_t) ReadAt(p []uint8, off int64) (int, error) {
	d.Lock()
	defer d.Unlock()
	if off < 0 || off+int64(len(p)) > int64(len(d.data)) {
		return 0, fmt.Errorf("memdisk: read past end %d", off)
	}
	return copy(p, d.data[off:]), nil
}

func (d *Memdisk_t) WriteAt(p []uint8, off int64) (int, error) {
	d.Lock()
	defer d.Unlock()
	if off < 0 || off+int64(len(p)) > int64(len(d.data)) {
		return 0, fmt.Errorf("memdisk: write past end %d", off)
	}
	return copy(d.data[off:], p), nil
}

func (d *Memdisk_t) Size() int64 {
	return int64(len(d.data))
}

func (d *Memdisk_t) Sync() error {
	return nil
}

// a copy of the disk's contents.
func (d *Memdisk_t) Image() []uint8 {
	d.Lock()
	defer d.Unlock()
	ret := make([]uint8, len(d.data))
	copy(ret, d.data)
	return ret
}

// a disk image in a host file. the file is locked exclusively so that two
// machines cannot share it.
type Filedisk_t struct {
	f    *os.File
	size int64
}

func OpenFiledisk(path string) (*Filedisk_t, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("%v: locked by another machine: %v", path, err)
	}
	var st unix.Stat_t
	if err := unix.Fstat(int(f.Fd()), &st); err != nil {
		f.Close()
		return nil, err
	}
	return &Filedisk_t{f: f, size: st.Size}, nil
}

func (d *Filedisk_t) ReadAt(p []uint8, off int64) (int, error) {
	return unix.Pread(int(d.f.Fd()), p, off)
}

func (d *Filedisk_t) WriteAt(p []uint8, off int64) (int, error) {
	return unix.Pwrite(int(d.f.Fd()), p, off)
}

func (d *Filedisk_t) Size() int64 {
	return d.size
}

func (d *Filedisk_t) Sync() error {
	return unix.Fsync(int(d.f.Fd()))
}

func (d *Filedisk_t) Close() error {
	unix.Flock(int(d.f.Fd()), unix.LOCK_UN)
	return d.f.Close()
}
