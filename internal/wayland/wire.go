package wayland

import "encoding/binary"

// The wire format frames every message with an 8-byte header: the target
// object id, then a packed word whose upper 16 bits give the total message
// size in bytes (header included) and whose lower 16 bits give the opcode.
// All integers are little-endian; strings carry a length word that counts
// the NUL terminator, followed by the bytes padded to a 32-bit boundary.
const headerSize = 8

// message is one decoded event waiting for dispatch.
type message struct {
	object uint32
	opcode uint16
	data   []byte
}

// encodeRequest appends a request frame to buf and returns the extended
// slice. The core only sends fixed-width arguments (new-object ids), so a
// request body is a sequence of 32-bit words.
func encodeRequest(buf []byte, object uint32, opcode uint16, args ...uint32) []byte {
	size := headerSize + 4*len(args)
	var header [headerSize]byte
	binary.LittleEndian.PutUint32(header[0:4], object)
	binary.LittleEndian.PutUint32(header[4:8], uint32(size)<<16|uint32(opcode))
	buf = append(buf, header[:]...)
	for _, arg := range args {
		var word [4]byte
		binary.LittleEndian.PutUint32(word[:], arg)
		buf = append(buf, word[:]...)
	}
	return buf
}

// argReader walks a message payload. Out-of-bounds reads latch the truncated
// flag and subsequent reads return zero values, so callers check Ok once at
// the end instead of after every field.
type argReader struct {
	data      []byte
	offset    int
	truncated bool
}

func newArgReader(data []byte) *argReader {
	return &argReader{data: data}
}

// Uint32 reads the next 32-bit word.
func (r *argReader) Uint32() uint32 {
	if r.offset+4 > len(r.data) {
		r.truncated = true
		return 0
	}
	v := binary.LittleEndian.Uint32(r.data[r.offset:])
	r.offset += 4
	return v
}

// String reads a length-prefixed, NUL-terminated, 4-byte-padded string.
func (r *argReader) String() string {
	length := int(r.Uint32())
	if r.truncated {
		return ""
	}
	if length == 0 {
		return ""
	}
	padded := (length + 3) &^ 3
	if r.offset+padded > len(r.data) {
		r.truncated = true
		return ""
	}
	// length counts the NUL terminator.
	s := string(r.data[r.offset : r.offset+length-1])
	r.offset += padded
	return s
}

// Ok reports whether every read stayed in bounds.
func (r *argReader) Ok() bool {
	return !r.truncated
}
