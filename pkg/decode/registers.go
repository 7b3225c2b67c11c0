package decode

import "encoding/binary"

// RegisterType describes how a register is laid out on the wire (always big-endian)
type RegisterType int

const (
	Int16 RegisterType = iota
	Uint16
	Int32
	Uint32
)

// Width returns the number of bytes the register occupies
func (t RegisterType) Width() int {
	if t == Int32 || t == Uint32 {
		return 4
	}
	return 2
}

// Field is one row of a register map: where a value lives in the reply, how it
// is encoded and what it is divided by to get engineering units.
type Field[T any] struct {
	Name   string
	Offset int
	Type   RegisterType
	Scale  float64 // divisor, values <= 1 leave the raw value untouched
	Set    func(*T, float64)
}

func (f Field[T]) read(b []byte) float64 {
	var v float64
	switch f.Type {
	case Int16:
		v = float64(int16(binary.BigEndian.Uint16(b[f.Offset:])))
	case Uint16:
		v = float64(binary.BigEndian.Uint16(b[f.Offset:]))
	case Int32:
		v = float64(int32(binary.BigEndian.Uint32(b[f.Offset:])))
	case Uint32:
		v = float64(binary.BigEndian.Uint32(b[f.Offset:]))
	}
	if f.Scale > 1 {
		v /= f.Scale
	}
	return v
}

// decodeFields applies every row of a register map to a zero T
func decodeFields[T any](b []byte, fields []Field[T]) T {
	var out T
	for _, f := range fields {
		f.Set(&out, f.read(b))
	}
	return out
}

// extent returns the first byte offset past the last register of a map
func extent[T any](fields []Field[T]) int {
	end := 0
	for _, f := range fields {
		if e := f.Offset + f.Type.Width(); e > end {
			end = e
		}
	}
	return end
}
