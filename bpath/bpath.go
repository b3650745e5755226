package bpath

import "rv6/ustr"

// allocation-less pathparts
type Pathparts_t struct {
	path ustr.Ustr
	loc  int
}

func (pp *Pathparts_t) Pp_init(path ustr.Ustr) {
	pp.path = path
	pp.loc = 0
}

// returns the next path element. repeated slashes are skipped; the element is
// not truncated, callers compare with Direq.
func (pp *Pathparts_t) Next() (ustr.Ustr, bool) {
	ret := ustr.MkUstr()
	for len(ret) == 0 {
		if pp.loc == len(pp.path) {
			return ustr.MkUstr(), false
		}
		ret = pp.path[pp.loc:]
		nloc := ustr.Ustr.IndexByte(ret, '/')
		if nloc != -1 {
			ret = ret[:nloc]
			pp.loc += nloc + 1
		} else {
			pp.loc += len(ret)
		}
	}
	return ret, true
}

// true if no path elements remain, i.e. the rest of the path is empty or
// only slashes.
func (pp *Pathparts_t) Last() bool {
	for i := pp.loc; i < len(pp.path); i++ {
		if pp.path[i] != '/' {
			return false
		}
	}
	return true
}

// splits path into its directory and final element.
func Sdirname(path ustr.Ustr) (ustr.Ustr, ustr.Ustr) {
	fn := path
	l := len(fn)
	// strip all trailing slashes
	for i := l - 1; i >= 0; i-- {
		if fn[i] != uint8('/') {
			break
		}
		fn = fn[:i]
		l--
	}
	var s ustr.Ustr
	for i := l - 1; i >= 0; i-- {
		if fn[i] == '/' {
			// remove the rightmost slash only if it is not the
			// first char (the root).
			if i == 0 {
				s = fn[0:1]
			} else {
				s = fn[:i]
			}
			fn = fn[i+1:]
			break
		}
	}

	return s, fn
}
