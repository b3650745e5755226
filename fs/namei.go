package fs

import "fmt"

import "rv6/bpath"
import "rv6/defs"
import "rv6/lock"
import "rv6/ustr"

// looks up and returns the inode for a path name. if parent is set, returns
// the inode for the parent and the final path element instead. relative
// paths start at cwd. must be called inside a transaction since it calls
// Put.
func (fs *Fs_t) namex(k lock.Kctx_i, cwd *Iref_t, path ustr.Ustr,
	parent bool) (*Iref_t, ustr.Ustr, defs.Err_t) {
	var ip *Iref_t
	if path.IsAbsolute() || cwd == nil {
		ip = fs.Root(k)
	} else {
		ip = cwd.Dup(k)
	}

	var pp bpath.Pathparts_t
	pp.Pp_init(path)
	for {
		name, ok := pp.Next()
		if !ok {
			break
		}
		i := ip.I()
		i.Ilock(k)
		if i.Type != defs.T_DIR {
			ip.Unlockput(k)
			return nil, nil, -defs.ENOTDIR
		}
		if parent && pp.Last() {
			// stop one level early.
			i.Iunlock(k)
			return ip, name, 0
		}
		next, _, err := i.Dirlookup(k, name)
		if err != 0 {
			ip.Unlockput(k)
			return nil, nil, err
		}
		ip.Unlockput(k)
		ip = next
	}
	if parent {
		ip.Put(k)
		return nil, nil, -defs.ENOENT
	}
	if fs_debug {
		fmt.Printf("namei %q -> %v\n", path, ip.I().Inum)
	}
	return ip, nil, 0
}

func (fs *Fs_t) Namei(k lock.Kctx_i, cwd *Iref_t, path ustr.Ustr) (*Iref_t, defs.Err_t) {
	ip, _, err := fs.namex(k, cwd, path, false)
	return ip, err
}

// returns the parent directory of path's final element and that element.
func (fs *Fs_t) Nameiparent(k lock.Kctx_i, cwd *Iref_t, path ustr.Ustr) (*Iref_t, ustr.Ustr, defs.Err_t) {
	return fs.namex(k, cwd, path, true)
}
