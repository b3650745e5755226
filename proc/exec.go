package proc

import "rv6/bpath"
import "rv6/defs"
import "rv6/fs"
import "rv6/limits"
import "rv6/mem"
import "rv6/riscv"
import "rv6/ustr"
import "rv6/util"
import "rv6/vm"

func flags2perm(flags uint32) riscv.Pte_t {
	perm := riscv.PTE_R
	if flags&ELF_PROG_FLAG_EXEC != 0 {
		perm |= riscv.PTE_X
	}
	if flags&ELF_PROG_FLAG_WRITE != 0 {
		perm |= riscv.PTE_W
	}
	return perm
}

// reads exactly len(b) bytes of ip at off. ip must be locked.
func readfull(p *Proc_t, ip *fs.Inode_t, b []uint8, off int) bool {
	n, err := ip.Readi(p, vm.Mkfakeubuf(b), off)
	return err == 0 && n == len(b)
}

// loads a program segment into the page table at virtual address va. va
// must be page-aligned and the pages from va to va+sz must already be
// mapped.
func loadseg(p *Proc_t, um *vm.Usermem_t, va uint64, ip *fs.Inode_t, off, sz uint64) defs.Err_t {
	for i := uint64(0); i < sz; i += riscv.PGSIZE {
		pa, ok := um.Pagetable().Walkaddr(va + i)
		if !ok {
			panic("loadseg: address should exist")
		}
		n := util.Min(int(sz-i), riscv.PGSIZE)
		if !readfull(p, ip, p.procs.phys.Dmap8(mem.Pa_t(pa))[:n], int(off+i)) {
			return -defs.ENOEXEC
		}
	}
	return 0
}

// replaces p's user image with the program at path, passing it argv. the
// result is argc, which ends up in a0. on failure p's old image is intact.
func (p *Proc_t) Exec(path ustr.Ustr, argv []ustr.Ustr) (int, defs.Err_t) {
	ps := p.procs
	if len(argv) > defs.MAXARG {
		return 0, -defs.E2BIG
	}
	tx := ps.Fs.Begin(p)
	ipr, err := ps.Fs.Namei(p, p.Cwd, path)
	if err != 0 {
		tx.End(p)
		return 0, err
	}
	ip := ipr.I()
	ip.Ilock(p)
	um, entry, err := p.load(ip)
	ipr.Unlockput(p)
	tx.End(p)
	if err != 0 {
		return 0, err
	}
	sp, err := p.pushargs(um, argv)
	if err != 0 {
		um.Free(p)
		return 0, err
	}

	// save program name for debugging.
	_, name := bpath.Sdirname(path)
	if len(name) >= defs.MAXPROCNAME {
		name = name[:defs.MAXPROCNAME-1]
	}
	p.Name = string(name)

	// commit to the user image.
	old := p.Um
	p.Um = um
	// arguments to user main(argc, argv). argc is returned via the system
	// call return value, which goes in a0.
	p.Tf.A1 = sp
	// initial program counter = main
	p.Tf.Epc = entry
	p.Tf.Sp = sp
	p.Tf.T0 = 0
	p.Execgen++
	if old != nil {
		old.Free(p)
	}
	ps.st.Nexec.Inc()
	return len(argv), 0
}

// builds a fresh address space from the ELF image in ip.
func (p *Proc_t) load(ip *fs.Inode_t) (*vm.Usermem_t, uint64, defs.Err_t) {
	ps := p.procs
	var hb [ELFHDRSZ]uint8
	if !readfull(p, ip, hb[:], 0) {
		return nil, 0, -defs.ENOEXEC
	}
	var elf Elfhdr_t
	elf.Decode(hb[:])
	if !elf.Valid() {
		return nil, 0, -defs.ENOEXEC
	}
	um, err := vm.Mkusermem(p, ps.phys, ps.tramp, p.Tfpa)
	if err != 0 {
		return nil, 0, err
	}
	fail := func(err defs.Err_t) (*vm.Usermem_t, uint64, defs.Err_t) {
		um.Free(p)
		return nil, 0, err
	}
	// load program into memory.
	for i := 0; i < int(elf.Phnum); i++ {
		off := int(elf.Phoff) + i*PROGHDRSZ
		var pb [PROGHDRSZ]uint8
		if !readfull(p, ip, pb[:], off) {
			return fail(-defs.ENOEXEC)
		}
		var ph Proghdr_t
		ph.Decode(pb[:])
		if ph.Type != ELF_PROG_LOAD {
			continue
		}
		if ph.Memsz < ph.Filesz {
			return fail(-defs.ENOEXEC)
		}
		end := ph.Vaddr + ph.Memsz
		if end < ph.Vaddr {
			return fail(-defs.ENOEXEC)
		}
		if ph.Vaddr%riscv.PGSIZE != 0 {
			return fail(-defs.ENOEXEC)
		}
		if end > uint64(limits.Syslimit.Execsz) {
			return fail(-defs.ENOMEM)
		}
		if err := um.Grow(p, end, flags2perm(ph.Flags)); err != 0 {
			return fail(err)
		}
		if err := loadseg(p, um, ph.Vaddr, ip, ph.Off, ph.Filesz); err != 0 {
			return fail(err)
		}
	}
	return um, elf.Entry, 0
}

// allocates the user stack at the next page boundary, below it an
// inaccessible guard page, and copies the argument strings and the argv
// array onto it. returns the new stack pointer.
func (p *Proc_t) pushargs(um *vm.Usermem_t, argv []ustr.Ustr) (uint64, defs.Err_t) {
	sz := riscv.PGROUNDUP(um.Size())
	if err := um.Grow(p, sz+defs.USERSTACK*riscv.PGSIZE, riscv.PTE_R|riscv.PTE_W); err != 0 {
		return 0, err
	}
	sz = um.Size()
	um.Clear(sz - defs.USERSTACK*riscv.PGSIZE)
	sp := sz
	stackbase := sp - riscv.PGSIZE

	// push argument strings, prepare rest of stack in ustack.
	var ustack [defs.MAXARG + 1]uint64
	for i, arg := range argv {
		sp -= uint64(len(arg) + 1)
		// riscv sp must be 16-byte aligned
		sp &^= 0xf
		if sp < stackbase {
			return 0, -defs.E2BIG
		}
		b := make([]uint8, len(arg)+1)
		copy(b, arg)
		if err := um.Copyout(sp, b); err != 0 {
			return 0, err
		}
		ustack[i] = sp
	}
	argc := len(argv)
	ustack[argc] = 0

	// push the array of argv[] pointers.
	sp -= uint64(argc+1) * 8
	sp &^= 0xf
	if sp < stackbase {
		return 0, -defs.E2BIG
	}
	b := make([]uint8, (argc+1)*8)
	for i := 0; i <= argc; i++ {
		util.Writen(b, 8, i*8, int(ustack[i]))
	}
	if err := um.Copyout(sp, b); err != 0 {
		return 0, err
	}
	return sp, 0
}
