package hostfs

import "fmt"
import "strconv"
import "testing"

import "rv6/defs"
import "rv6/fs"
import "rv6/hw"
import "rv6/lfs"
import "rv6/ufs"
import "rv6/vm"

const (
	SMALL   = 512
	nblocks = 2000
	ninodes = 200
)

var fstypes = []string{UFS, LFS}

func mkimage(t *testing.T, fstype string, ents []fs.Mkent_t) []uint8 {
	var img []uint8
	var err error
	if fstype == LFS {
		img, err = lfs.Mkimage(nblocks, ninodes, ents)
	} else {
		img, err = ufs.Mkimage(nblocks, ninodes, ents)
	}
	if err != nil {
		t.Fatalf("mkimage: %v", err)
	}
	return img
}

func boot(t *testing.T, fstype string, d hw.Backing_i, ncpu int) *Host_t {
	h, err := Boot(d, Config_t{Fstype: fstype, Ncpu: ncpu})
	if err != nil {
		t.Fatalf("boot: %v", err)
	}
	return h
}

// runs f on a fresh image of each type.
func forall(t *testing.T, f func(t *testing.T, fstype string, d *hw.Memdisk_t)) {
	for _, fstype := range fstypes {
		t.Run(fstype, func(t *testing.T) {
			d := hw.MkMemdiskFrom(mkimage(t, fstype, nil))
			f(t, fstype, d)
		})
	}
}

func doTestSimple(h *Host_t, d string) string {
	if e := h.MkDir(d); e != 0 {
		return fmt.Sprintf("mkDir %v failed %v", d, e)
	}
	if e := h.MkFile(d+"/f1", Mkdata(1, SMALL)); e != 0 {
		return fmt.Sprintf("mkFile %v failed", "f1")
	}
	if e := h.MkFile(d+"/f2", Mkdata(2, SMALL)); e != 0 {
		return fmt.Sprintf("mkFile %v failed", "f2")
	}
	if e := h.MkDir(d + "/d0"); e != 0 {
		return fmt.Sprintf("Mkdir %v failed", "d0")
	}
	if e := h.MkDir(d + "/d0/d1"); e != 0 {
		return fmt.Sprintf("Mkdir %v failed", "d1")
	}
	if e := h.Link(d+"/f1", d+"/e0"); e != 0 {
		return fmt.Sprintf("Link failed %v", e)
	}
	if e := h.Append(d+"/f1", Mkdata(3, SMALL)); e != 0 {
		return fmt.Sprintf("Append failed")
	}
	if e := h.Unlink(d + "/f2"); e != 0 {
		return fmt.Sprintf("Unlink failed")
	}
	return ""
}

func doCheckSimple(t *testing.T, h *Host_t, d string) {
	res, e := h.Ls(d)
	if e != 0 {
		t.Fatalf("doLs failed %v", e)
	}
	st, ok := res["f1"]
	if !ok {
		t.Fatalf("f1 not present")
	}
	if st.Size() != 2*SMALL {
		t.Fatalf("f1 wrong size %v", st.Size())
	}
	if st.Nlink() != 2 {
		t.Fatalf("f1 nlink %v", st.Nlink())
	}
	if _, ok := res["f2"]; ok {
		t.Fatalf("f2 present")
	}
	if st, ok := res["d0"]; !ok || st.Type() != int(defs.T_DIR) {
		t.Fatalf("d0 not present")
	}
	if _, ok := res["e0"]; !ok {
		t.Fatalf("e0 not present")
	}
	data, e := h.Read(d + "/e0")
	if e != 0 || len(data) != 2*SMALL || data[0] != 1 || data[SMALL] != 3 {
		t.Fatalf("e0 contents %v", e)
	}
	res, e = h.Ls(d + "/d0")
	if e != 0 {
		t.Fatalf("doLs d0 failed")
	}
	if _, ok := res["d1"]; !ok {
		t.Fatalf("d1 not in d0")
	}
	if len(res) != 3 {
		t.Fatalf("d0 has %v entries", len(res))
	}
}

func uniqdir(id int) string {
	return "d" + strconv.Itoa(id)
}

func uniqfile(id int) string {
	return "f" + strconv.Itoa(id)
}

func TestFSSimple(t *testing.T) {
	forall(t, func(t *testing.T, fstype string, d *hw.Memdisk_t) {
		h := boot(t, fstype, d, 1)
		if s := doTestSimple(h, "d"); s != "" {
			t.Fatalf("doTestSimple failed %s", s)
		}
		doCheckSimple(t, h, "d")
		h.Shutdown()

		h = boot(t, fstype, d, 1)
		doCheckSimple(t, h, "d")
		h.Shutdown()
	})
}

func TestRoot(t *testing.T) {
	for _, fstype := range fstypes {
		t.Run(fstype, func(t *testing.T) {
			ents := []fs.Mkent_t{
				{Name: "console", Type: defs.T_DEVICE, Major: uint16(defs.D_CONSOLE)},
				{Name: "init", Type: defs.T_FILE, Data: Mkdata(7, 3000)},
				{Name: "big", Type: defs.T_FILE, Data: Mkdata(9, 20*1024)},
			}
			d := hw.MkMemdiskFrom(mkimage(t, fstype, ents))
			h := boot(t, fstype, d, 1)
			defer h.Shutdown()
			res, e := h.Ls("/")
			if e != 0 || len(res) != 5 {
				t.Fatalf("ls / %v %v", res, e)
			}
			if res["."].Type() != int(defs.T_DIR) || res[".."].Type() != int(defs.T_DIR) {
				t.Fatalf("dots")
			}
			if res["console"].Type() != int(defs.T_DEVICE) {
				t.Fatalf("console type %v", res["console"].Type())
			}
			data, e := h.Read("init")
			if e != 0 || len(data) != 3000 || data[2999] != 7 {
				t.Fatalf("init")
			}
			data, e = h.Read("/big")
			if e != 0 || len(data) != 20*1024 || data[0] != 9 || data[20*1024-1] != 9 {
				t.Fatalf("big")
			}
		})
	}
}

func TestErrors(t *testing.T) {
	forall(t, func(t *testing.T, fstype string, d *hw.Memdisk_t) {
		h := boot(t, fstype, d, 1)
		defer h.Shutdown()
		if _, e := h.Stat("nope"); e != -defs.ENOENT {
			t.Fatalf("stat nope %v", e)
		}
		if e := h.MkFile("f", nil); e != 0 {
			t.Fatalf("mkfile")
		}
		if e := h.MkDir("f"); e != -defs.EEXIST {
			t.Fatalf("mkdir over file %v", e)
		}
		if _, e := h.Stat("f/x"); e != -defs.ENOTDIR {
			t.Fatalf("stat through file %v", e)
		}
		if e := h.MkDir("dir"); e != 0 {
			t.Fatalf("mkdir")
		}
		if e := h.MkFile("dir/g", nil); e != 0 {
			t.Fatalf("mkfile in dir")
		}
		if e := h.Unlink("dir"); e != -defs.ENOTEMPTY {
			t.Fatalf("unlink nonempty %v", e)
		}
		if e := h.Unlink("dir/."); e != -defs.EINVAL {
			t.Fatalf("unlink dot %v", e)
		}
		if e := h.Link("dir", "dir2"); e != -defs.EPERM {
			t.Fatalf("link dir %v", e)
		}
		if e := h.Link("f", "dir/g"); e != -defs.EEXIST {
			t.Fatalf("link over %v", e)
		}
		st, _ := h.Stat("f")
		if st.Nlink() != 1 {
			t.Fatalf("failed link kept nlink %v", st.Nlink())
		}
		if e := h.Unlink("dir/g"); e != 0 {
			t.Fatalf("unlink g")
		}
		if e := h.Unlink("dir"); e != 0 {
			t.Fatalf("unlink empty dir %v", e)
		}
		if e := h.Chdir("f"); e != -defs.ENOTDIR {
			t.Fatalf("chdir file %v", e)
		}
	})
}

func TestCreateNamei(t *testing.T) {
	forall(t, func(t *testing.T, fstype string, d *hw.Memdisk_t) {
		h := boot(t, fstype, d, 1)
		defer h.Shutdown()
		k := h.K
		tx := h.Fs.Begin(k)
		ipr, err := h.Fs.Create(k, nil, []uint8("/n"), defs.T_FILE, 0, 0)
		if err != 0 {
			t.Fatalf("create %v", err)
		}
		ip := ipr.I()
		if ip.Type != defs.T_FILE || ip.Nlink != 1 {
			t.Fatalf("type %v nlink %v", ip.Type, ip.Nlink)
		}
		ip.Iunlock(k)
		jpr, err := h.Fs.Namei(k, nil, []uint8("/n"))
		if err != 0 || !jpr.Same(ipr) {
			t.Fatalf("namei %v", err)
		}
		jpr.Put(k)
		ipr.Put(k)
		tx.End(k)
	})
}

func TestChdir(t *testing.T) {
	forall(t, func(t *testing.T, fstype string, d *hw.Memdisk_t) {
		h := boot(t, fstype, d, 1)
		defer h.Shutdown()
		if e := h.MkDir("a"); e != 0 {
			t.Fatalf("mkdir")
		}
		if e := h.Chdir("a"); e != 0 {
			t.Fatalf("chdir")
		}
		if e := h.MkFile("x", Mkdata(5, 10)); e != 0 {
			t.Fatalf("mkfile")
		}
		if _, e := h.Stat("/a/x"); e != 0 {
			t.Fatalf("x not in a")
		}
		if e := h.Chdir(".."); e != 0 {
			t.Fatalf("chdir ..")
		}
		if _, e := h.Stat("a/x"); e != 0 {
			t.Fatalf("relative after ..")
		}
	})
}

// inodes are reused after freeing
func TestFSInodeReuse(t *testing.T) {
	forall(t, func(t *testing.T, fstype string, d *hw.Memdisk_t) {
		h := boot(t, fstype, d, 1)
		defer h.Shutdown()
		for round := 0; round < 3; round++ {
			for i := 0; i < ninodes-2; i++ {
				if e := h.MkFile(uniqfile(i), nil); e != 0 {
					t.Fatalf("round %v mkFile %v failed %v", round, i, e)
				}
			}
			if e := h.MkFile("onemore", nil); e != -defs.ENOSPC {
				t.Fatalf("inodes not exhausted: %v", e)
			}
			for i := 0; i < ninodes-2; i++ {
				if e := h.Unlink(uniqfile(i)); e != 0 {
					t.Fatalf("Unlink %v failed", i)
				}
			}
		}
		if n := h.Nactive(); n != 1 {
			t.Fatalf("%v active inodes", n)
		}
	})
}

// blocks are reused after freeing
func TestFSBlockReuse(t *testing.T) {
	forall(t, func(t *testing.T, fstype string, d *hw.Memdisk_t) {
		h := boot(t, fstype, d, 1)
		defer h.Shutdown()
		for round := 0; round < 30; round++ {
			for i := 0; i < 5; i++ {
				if e := h.MkFile(uniqfile(i), Mkdata(uint8(i), 20*1024)); e != 0 {
					t.Fatalf("round %v mkFile %v failed %v", round, i, e)
				}
			}
			for i := 0; i < 5; i++ {
				if e := h.Unlink(uniqfile(i)); e != 0 {
					t.Fatalf("Unlink %v failed", i)
				}
			}
		}
	})
}

func TestFSConcur(t *testing.T) {
	const n = 3
	forall(t, func(t *testing.T, fstype string, d *hw.Memdisk_t) {
		h := boot(t, fstype, d, n)
		c := make(chan string)
		for i := 0; i < n; i++ {
			go func(id int) {
				c <- doTestSimple(h.With(h.Ks[id]), uniqdir(id))
			}(i)
		}
		for i := 0; i < n; i++ {
			if s := <-c; s != "" {
				t.Fatalf("doTestSimple failed %s", s)
			}
		}
		h.Shutdown()
		h = boot(t, fstype, d, 1)
		for i := 0; i < n; i++ {
			doCheckSimple(t, h, uniqdir(i))
		}
		h.Shutdown()
	})
}

func TestWriteHole(t *testing.T) {
	forall(t, func(t *testing.T, fstype string, d *hw.Memdisk_t) {
		h := boot(t, fstype, d, 1)
		defer h.Shutdown()
		if e := h.MkFile("f", Mkdata(1, 10)); e != 0 {
			t.Fatalf("mkfile")
		}
		k := h.K
		tx := h.Fs.Begin(k)
		ipr, _ := h.Fs.Namei(k, nil, []uint8("f"))
		ip := ipr.I()
		ip.Ilock(k)
		// writing past the end of the file fails
		if _, e := ip.Writei(k, vm.Mkfakeubuf(Mkdata(2, 1)), 20); e != -defs.EINVAL {
			t.Fatalf("write past end %v", e)
		}
		ipr.Unlockput(k)
		tx.End(k)
	})
}
