package stat

import "rv6/util"

// the user-visible stat structure: {dev:i32, ino:u32, type:i16, nlink:i16,
// pad:u32, size:u64}
type Stat_t struct {
	_dev   int
	_ino   uint
	_type  int
	_nlink int
	_size  uint
}

const Statsz = 24

func (st *Stat_t) Wdev(v int) {
	st._dev = v
}

func (st *Stat_t) Wino(v uint) {
	st._ino = v
}

func (st *Stat_t) Wtype(v int) {
	st._type = v
}

func (st *Stat_t) Wnlink(v int) {
	st._nlink = v
}

func (st *Stat_t) Wsize(v uint) {
	st._size = v
}

func (st *Stat_t) Dev() int {
	return st._dev
}

func (st *Stat_t) Type() int {
	return st._type
}

func (st *Stat_t) Nlink() int {
	return st._nlink
}

func (st *Stat_t) Size() uint {
	return st._size
}

func (st *Stat_t) Rino() uint {
	return st._ino
}

func (st *Stat_t) Bytes() []uint8 {
	b := make([]uint8, Statsz)
	util.Writen(b, 4, 0, st._dev)
	util.Writen(b, 4, 4, int(st._ino))
	util.Writen(b, 2, 8, st._type)
	util.Writen(b, 2, 10, st._nlink)
	util.Writen(b, 8, 16, int(st._size))
	return b
}

func Frombytes(b []uint8) *Stat_t {
	st := &Stat_t{}
	st._dev = int(int32(util.Readn(b, 4, 0)))
	st._ino = uint(util.Readn(b, 4, 4))
	st._type = int(int16(util.Readn(b, 2, 8)))
	st._nlink = int(int16(util.Readn(b, 2, 10)))
	st._size = uint(util.Readn(b, 8, 16))
	return st
}
