package swapwire

import (
	"encoding/binary"
	"errors"
	"io"
)

var errFieldTooLarge = errors.New("swapwire: field length exceeds maximum message payload")

// writeBytesVec/readBytesVec encode a length-prefixed byte slice, the
// primitive every variable-length field in this package builds on -- the
// same pattern the teacher's lnwire codec uses per-field, just without the
// wire.ReadElement/WriteElement indirection since this protocol has no
// analogous shared element-codec package.
func writeBytesVec(w io.Writer, b []byte) error {
	if err := binary.Write(w, endian, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readBytesVec(r io.Reader) ([]byte, error) {
	var l uint32
	if err := binary.Read(r, endian, &l); err != nil {
		return nil, err
	}
	if l > MaxMessagePayload {
		return nil, errFieldTooLarge
	}
	b := make([]byte, l)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func writeBytesVecSlice(w io.Writer, items [][]byte) error {
	if err := binary.Write(w, endian, uint32(len(items))); err != nil {
		return err
	}
	for _, item := range items {
		if err := writeBytesVec(w, item); err != nil {
			return err
		}
	}
	return nil
}

func readBytesVecSlice(r io.Reader) ([][]byte, error) {
	var n uint32
	if err := binary.Read(r, endian, &n); err != nil {
		return nil, err
	}
	items := make([][]byte, n)
	for i := range items {
		b, err := readBytesVec(r)
		if err != nil {
			return nil, err
		}
		items[i] = b
	}
	return items, nil
}

func writeFixed32(w io.Writer, b [32]byte) error {
	_, err := w.Write(b[:])
	return err
}

func readFixed32(r io.Reader) ([32]byte, error) {
	var b [32]byte
	_, err := io.ReadFull(r, b[:])
	return b, err
}

func writeFixed20(w io.Writer, b [20]byte) error {
	_, err := w.Write(b[:])
	return err
}

func readFixed20(r io.Reader) ([20]byte, error) {
	var b [20]byte
	_, err := io.ReadFull(r, b[:])
	return b, err
}

func writeInt64(w io.Writer, v int64) error {
	return binary.Write(w, endian, v)
}

func readInt64(r io.Reader) (int64, error) {
	var v int64
	err := binary.Read(r, endian, &v)
	return v, err
}

func writeUint32(w io.Writer, v uint32) error {
	return binary.Write(w, endian, v)
}

func readUint32(r io.Reader) (uint32, error) {
	var v uint32
	err := binary.Read(r, endian, &v)
	return v, err
}
