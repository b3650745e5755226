package fs

import "rv6/defs"
import "rv6/lock"
import "rv6/ustr"

// creates path as a new inode of type typ and returns it locked. an
// existing regular file or device satisfies a request for a file. runs in
// the caller's transaction; a failure leaves no trace.
func (fs *Fs_t) Create(k lock.Kctx_i, cwd *Iref_t, path ustr.Ustr, typ int16,
	major, minor uint16) (*Iref_t, defs.Err_t) {
	dpr, name, err := fs.Nameiparent(k, cwd, path)
	if err != 0 {
		return nil, err
	}
	dp := dpr.I()
	dp.Ilock(k)

	if ipr, _, err := dp.Dirlookup(k, name); err == 0 {
		dpr.Unlockput(k)
		ip := ipr.I()
		ip.Ilock(k)
		if typ == defs.T_FILE && (ip.Type == defs.T_FILE || ip.Type == defs.T_DEVICE) {
			return ipr, 0
		}
		ipr.Unlockput(k)
		return nil, -defs.EEXIST
	}

	ipr, err := fs.Ialloc(k, typ)
	if err != 0 {
		dpr.Unlockput(k)
		return nil, err
	}
	ip := ipr.I()
	ip.Ilock(k)
	ip.Major = major
	ip.Minor = minor
	ip.Nlink = 1
	ip.Iupdate(k)

	fail := func(err defs.Err_t) (*Iref_t, defs.Err_t) {
		// something went wrong. de-allocate ip.
		ip.Nlink = 0
		ip.Iupdate(k)
		ipr.Unlockput(k)
		dpr.Unlockput(k)
		return nil, err
	}

	if typ == defs.T_DIR {
		// create . and .. entries. no ip.Nlink++ for ".": avoid cyclic
		// ref count.
		if err := ip.Dirlink(k, ustr.MkUstrDot(), ip.Inum); err != 0 {
			return fail(err)
		}
		if err := ip.Dirlink(k, ustr.DotDot, dp.Inum); err != 0 {
			return fail(err)
		}
	}
	if err := dp.Dirlink(k, name, ip.Inum); err != 0 {
		return fail(err)
	}
	if typ == defs.T_DIR {
		// now that success is guaranteed: for the ".."
		dp.Nlink++
		dp.Iupdate(k)
	}
	dpr.Unlockput(k)
	return ipr, 0
}

func (fs *Fs_t) Mkdir(k lock.Kctx_i, cwd *Iref_t, path ustr.Ustr) defs.Err_t {
	ip, err := fs.Create(k, cwd, path, defs.T_DIR, 0, 0)
	if err != 0 {
		return err
	}
	ip.Unlockput(k)
	return 0
}

func (fs *Fs_t) Mknod(k lock.Kctx_i, cwd *Iref_t, path ustr.Ustr, major, minor uint16) defs.Err_t {
	ip, err := fs.Create(k, cwd, path, defs.T_DEVICE, major, minor)
	if err != 0 {
		return err
	}
	ip.Unlockput(k)
	return 0
}

// removes the directory entry for path and drops a link to its inode.
func (fs *Fs_t) Unlink(k lock.Kctx_i, cwd *Iref_t, path ustr.Ustr) defs.Err_t {
	dpr, name, err := fs.Nameiparent(k, cwd, path)
	if err != 0 {
		return err
	}
	dp := dpr.I()
	dp.Ilock(k)

	// cannot unlink "." or "..".
	if name.Isdot() || name.Isdotdot() {
		dpr.Unlockput(k)
		return -defs.EINVAL
	}

	ipr, off, err := dp.Dirlookup(k, name)
	if err != 0 {
		dpr.Unlockput(k)
		return err
	}
	ip := ipr.I()
	ip.Ilock(k)

	if ip.Nlink < 1 {
		panic("unlink: nlink < 1")
	}
	if ip.Type == defs.T_DIR && !ip.Isdirempty(k) {
		ipr.Unlockput(k)
		dpr.Unlockput(k)
		return -defs.ENOTEMPTY
	}

	dp.Dirclear(k, off)
	if ip.Type == defs.T_DIR {
		dp.Nlink--
		dp.Iupdate(k)
	}
	dpr.Unlockput(k)

	ip.Nlink--
	ip.Iupdate(k)
	ipr.Unlockput(k)
	return 0
}

// creates the path newp as a link to the same inode as oldp.
func (fs *Fs_t) Link(k lock.Kctx_i, cwd *Iref_t, oldp, newp ustr.Ustr) defs.Err_t {
	ipr, err := fs.Namei(k, cwd, oldp)
	if err != 0 {
		return err
	}
	ip := ipr.I()
	ip.Ilock(k)
	if ip.Type == defs.T_DIR {
		ipr.Unlockput(k)
		return -defs.EPERM
	}
	ip.Nlink++
	ip.Iupdate(k)
	ip.Iunlock(k)

	bad := func(err defs.Err_t) defs.Err_t {
		ip.Ilock(k)
		ip.Nlink--
		ip.Iupdate(k)
		ipr.Unlockput(k)
		return err
	}

	dpr, name, err := fs.Nameiparent(k, cwd, newp)
	if err != 0 {
		return bad(err)
	}
	dp := dpr.I()
	dp.Ilock(k)
	if dp.Dev != ip.Dev {
		dpr.Unlockput(k)
		return bad(-defs.EXDEV)
	}
	if err := dp.Dirlink(k, name, ip.Inum); err != 0 {
		dpr.Unlockput(k)
		return bad(err)
	}
	dpr.Unlockput(k)
	ipr.Put(k)
	return 0
}

// opens path with mode omode and returns its inode locked. the caller
// turns it into an open file.
func (fs *Fs_t) Open(k lock.Kctx_i, cwd *Iref_t, path ustr.Ustr, omode defs.Fdopt_t) (*Iref_t, defs.Err_t) {
	var ipr *Iref_t
	if omode&defs.O_CREATE != 0 {
		var err defs.Err_t
		ipr, err = fs.Create(k, cwd, path, defs.T_FILE, 0, 0)
		if err != 0 {
			return nil, err
		}
	} else {
		var err defs.Err_t
		ipr, err = fs.Namei(k, cwd, path)
		if err != 0 {
			return nil, err
		}
		ipr.I().Ilock(k)
	}
	ip := ipr.I()
	if ip.Type == defs.T_DIR && omode&(defs.O_WRONLY|defs.O_RDWR) != 0 {
		ipr.Unlockput(k)
		return nil, -defs.EISDIR
	}
	if ip.Type == defs.T_DEVICE && int(ip.Major) >= defs.NDEV {
		ipr.Unlockput(k)
		return nil, -defs.ENODEV
	}
	if omode&defs.O_TRUNC != 0 && ip.Type == defs.T_FILE {
		ip.Itrunc(k)
	}
	return ipr, 0
}

// resolves path as the new working directory. returns it unlocked.
func (fs *Fs_t) Chdir(k lock.Kctx_i, cwd *Iref_t, path ustr.Ustr) (*Iref_t, defs.Err_t) {
	ipr, err := fs.Namei(k, cwd, path)
	if err != 0 {
		return nil, err
	}
	ip := ipr.I()
	ip.Ilock(k)
	if ip.Type != defs.T_DIR {
		ipr.Unlockput(k)
		return nil, -defs.ENOTDIR
	}
	ip.Iunlock(k)
	return ipr, 0
}
