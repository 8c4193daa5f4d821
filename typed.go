package compute

import (
	"encoding/binary"
	"fmt"
	"unsafe"
)

// Scalar is an element type the typed helpers can move to and from a
// device buffer. Values are stored little-endian.
type Scalar interface {
	~int8 | ~uint8 | ~int16 | ~uint16 | ~int32 | ~uint32 | ~int64 | ~uint64 | ~float32 | ~float64
}

func sizeOf[T Scalar]() int {
	var zero T
	return int(unsafe.Sizeof(zero))
}

// NewBuffer allocates a buffer of n elements of T.
func NewBuffer[T Scalar](e *Engine, n int) (Buffer, error) {
	return e.Buffer(n, sizeOf[T]())
}

// WriteSlice writes src to b. The buffer must hold exactly len(src) elements.
func WriteSlice[T Scalar](e *Engine, b Buffer, src []T) error {
	return e.Write(b, encode(src))
}

// ReadSlice reads b into dst. The buffer must hold exactly len(dst) elements.
func ReadSlice[T Scalar](e *Engine, b Buffer, dst []T) error {
	raw := make([]byte, len(dst)*sizeOf[T]())
	if err := e.Read(b, raw); err != nil {
		return err
	}
	decode(raw, dst)
	return nil
}

// Params packs scalar values into a parameter block, in order and without
// padding. The result is meant for Run.
func Params[T Scalar](vals ...T) []byte {
	return encode(vals)
}

// Groups returns the number of workgroups of the given size needed to
// cover n invocations. Zero size is treated as 1.
func Groups(n, size uint32) uint32 {
	if size == 0 {
		size = 1
	}
	return (n + size - 1) / size
}

func encode[T Scalar](src []T) []byte {
	n := sizeOf[T]()
	out := make([]byte, len(src)*n)
	for i, v := range src {
		putBits(out[i*n:], v)
	}
	return out
}

func decode[T Scalar](raw []byte, dst []T) {
	n := sizeOf[T]()
	for i := range dst {
		dst[i] = getScalar[T](raw[i*n:])
	}
}

// putBits stores v by its bit pattern, which for floats is the IEEE 754
// encoding.
func putBits[T Scalar](b []byte, v T) {
	switch sizeOf[T]() {
	case 1:
		b[0] = *(*uint8)(unsafe.Pointer(&v))
	case 2:
		binary.LittleEndian.PutUint16(b, *(*uint16)(unsafe.Pointer(&v)))
	case 4:
		binary.LittleEndian.PutUint32(b, *(*uint32)(unsafe.Pointer(&v)))
	case 8:
		binary.LittleEndian.PutUint64(b, *(*uint64)(unsafe.Pointer(&v)))
	default:
		panic(fmt.Sprintf("compute: unsupported scalar size %d", sizeOf[T]()))
	}
}

func getScalar[T Scalar](b []byte) T {
	var v T
	switch sizeOf[T]() {
	case 1:
		*(*uint8)(unsafe.Pointer(&v)) = b[0]
	case 2:
		*(*uint16)(unsafe.Pointer(&v)) = binary.LittleEndian.Uint16(b)
	case 4:
		*(*uint32)(unsafe.Pointer(&v)) = binary.LittleEndian.Uint32(b)
	case 8:
		*(*uint64)(unsafe.Pointer(&v)) = binary.LittleEndian.Uint64(b)
	}
	return v
}
