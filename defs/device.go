package defs

const (
	D_CONSOLE int = 1
	D_FIRST       = D_CONSOLE
	D_LAST        = D_CONSOLE
)
