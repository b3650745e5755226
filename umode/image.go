package umode

import "rv6/bpath"
import "rv6/proc"
import "rv6/ustr"

// the first user program: execs the program whose path follows the stub
// in its text. it runs from the page Userinit maps at address 0.
func initcode(u *Uctx_t, argv []string) int {
	path := u.Loadstr(uint64(len(Stub("initcode"))))
	_, name := bpath.Sdirname(ustr.Ustr(path))
	u.Exec(path, []string{name.String()})
	return -1
}

func init() {
	Register("initcode", initcode)
}

// the text of the first process, which execs path.
func Initcode(path string) []uint8 {
	b := append(Stub("initcode"), path...)
	return append(b, 0)
}

// an executable image for program name: an ELF header, one read/execute
// PT_LOAD segment at address 0 holding the stub, and entry 0.
func Mkelf(name string) []uint8 {
	text := Stub(name)
	off := proc.ELFHDRSZ + proc.PROGHDRSZ
	img := make([]uint8, off+len(text))
	eh := proc.Elfhdr_t{
		Magic:     proc.ELF_MAGIC,
		Class:     proc.ELFCLASS64,
		Data:      proc.ELFDATA2LSB,
		Type:      proc.ET_EXEC,
		Machine:   proc.EM_RISCV,
		Entry:     0,
		Phoff:     proc.ELFHDRSZ,
		Phnum:     1,
		Phentsize: proc.PROGHDRSZ,
	}
	eh.Encode(img)
	ph := proc.Proghdr_t{
		Type:   proc.ELF_PROG_LOAD,
		Flags:  proc.ELF_PROG_FLAG_READ | proc.ELF_PROG_FLAG_EXEC,
		Off:    uint64(off),
		Vaddr:  0,
		Filesz: uint64(len(text)),
		Memsz:  uint64(len(text)),
		Align:  4096,
	}
	ph.Encode(img[proc.ELFHDRSZ:])
	copy(img[off:], text)
	return img
}
