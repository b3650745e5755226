package riscv

import "unsafe"

const SCAUSE_INTR uint64 = 1 << 63

// scause values
const (
	INTR_SSOFT  = SCAUSE_INTR | 1
	INTR_STIMER = SCAUSE_INTR | 5
	INTR_SEXT   = SCAUSE_INTR | 9

	EXC_ILLEGAL  uint64 = 2
	EXC_ECALL_U  uint64 = 8
	EXC_IPAGEFLT uint64 = 12
	EXC_LPAGEFLT uint64 = 13
	EXC_SPAGEFLT uint64 = 15
)

// per-process data for the trap handling code. sits in a page by itself just
// under the trampoline page in the user page table and is reached through the
// direct map in the kernel. the layout is fixed: trampoline code saves and
// restores registers at these offsets.
type Trapframe_t struct {
	Kernel_satp   uint64 // 0
	Kernel_sp     uint64 // 8
	Kernel_trap   uint64 // 16
	Epc           uint64 // 24
	Kernel_hartid uint64 // 32
	Ra            uint64 // 40
	Sp            uint64 // 48
	Gp            uint64 // 56
	Tp            uint64 // 64
	T0            uint64 // 72
	T1            uint64 // 80
	T2            uint64 // 88
	S0            uint64 // 96
	S1            uint64 // 104
	A0            uint64 // 112
	A1            uint64 // 120
	A2            uint64 // 128
	A3            uint64 // 136
	A4            uint64 // 144
	A5            uint64 // 152
	A6            uint64 // 160
	A7            uint64 // 168
	S2            uint64 // 176
	S3            uint64 // 184
	S4            uint64 // 192
	S5            uint64 // 200
	S6            uint64 // 208
	S7            uint64 // 216
	S8            uint64 // 224
	S9            uint64 // 232
	S10           uint64 // 240
	S11           uint64 // 248
	T3            uint64 // 256
	T4            uint64 // 264
	T5            uint64 // 272
	T6            uint64 // 280
}

const TFSIZE = 288

func init() {
	if unsafe.Sizeof(Trapframe_t{}) != TFSIZE {
		panic("trapframe layout")
	}
}

// returns the n-th syscall argument register a0..a5.
func (tf *Trapframe_t) Arg(n int) uint64 {
	switch n {
	case 0:
		return tf.A0
	case 1:
		return tf.A1
	case 2:
		return tf.A2
	case 3:
		return tf.A3
	case 4:
		return tf.A4
	case 5:
		return tf.A5
	}
	panic("argraw")
}

func (tf *Trapframe_t) Setarg(n int, v uint64) {
	switch n {
	case 0:
		tf.A0 = v
	case 1:
		tf.A1 = v
	case 2:
		tf.A2 = v
	case 3:
		tf.A3 = v
	case 4:
		tf.A4 = v
	case 5:
		tf.A5 = v
	default:
		panic("setarg")
	}
}
