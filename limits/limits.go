package limits

import "sync/atomic"

type Sysatomic_t int64

// system-wide soft limits, beyond the fixed table sizes in defs.
type Syslimit_t struct {
	// live pipes
	Pipes Sysatomic_t
	// live kernel tasks (Spawn)
	Ktasks Sysatomic_t
	// max bytes of a single exec image
	Execsz int
}

var Syslimit *Syslimit_t = MkSysLimit()

func MkSysLimit() *Syslimit_t {
	return &Syslimit_t{
		Pipes:  1e3,
		Ktasks: 32,
		Execsz: 1 << 20,
	}
}

func (s *Sysatomic_t) _aptr() *int64 {
	return (*int64)(s)
}

func (s *Sysatomic_t) Given(_n uint) {
	atomic.AddInt64(s._aptr(), int64(_n))
}

func (s *Sysatomic_t) Taken(_n uint) bool {
	n := int64(_n)
	if n < 0 {
		panic("too mighty")
	}
	g := atomic.AddInt64(s._aptr(), -n)
	if g >= 0 {
		return true
	}
	atomic.AddInt64(s._aptr(), n)
	return false
}

// returns false if the limit has been reached.
func (s *Sysatomic_t) Take() bool {
	return s.Taken(1)
}

func (s *Sysatomic_t) Give() {
	s.Given(1)
}

func (s *Sysatomic_t) Get() int64 {
	return atomic.LoadInt64(s._aptr())
}
