package hwio

type word interface {
	~uint8 | ~uint16 | ~uint32
}

// Bit reports whether bit n of v is set.
func Bit[T word](v T, n uint) bool {
	return v>>n&1 != 0
}

func SetBits[T word](v *T, mask T) {
	*v |= mask
}

func ClearBits[T word](v *T, mask T) {
	*v &^= mask
}

// AssignBits sets (on=true) or clears the bits of mask in v.
func AssignBits[T word](v *T, mask T, on bool) {
	if on {
		*v |= mask
	} else {
		*v &^= mask
	}
}
