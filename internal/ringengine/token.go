package ringengine

// userData packs everything a completion needs to know about the request
// that produced it into the single 64-bit value io_uring hands back
// unmodified on the CQE: a 32-bit node index, a 4-bit task kind, and
// a 28-bit slab slot for task kinds that used one.
type userData uint64

type kind uint8

const (
	kindStatFile kind = iota
	kindOpenDir
	kindCloseFD
)

const (
	nodeShift = 32
	kindShift = 28
	slotMask  = uint64(1)<<28 - 1
	kindMask  = uint64(1)<<4 - 1
)

func packUserData(node uint32, k kind, slot uint32) userData {
	return userData(uint64(node)<<nodeShift | (uint64(k)&kindMask)<<kindShift | (uint64(slot) & slotMask))
}

func (u userData) node() uint32 { return uint32(u >> nodeShift) }
func (u userData) kind() kind   { return kind((uint64(u) >> kindShift) & kindMask) }
func (u userData) slot() uint32 { return uint32(uint64(u) & slotMask) }
