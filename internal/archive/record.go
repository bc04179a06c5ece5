package archive

import (
	"encoding/binary"
	"hash/crc32"
)

// Record encoding: varint headerLen | header | payload | crc32c(header|payload)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// EncodeRecord frames header and payload with a trailing checksum.
func EncodeRecord(header, payload []byte) []byte {
	out := make([]byte, 0, 10+len(header)+len(payload)+4)
	var tmp [10]byte
	n := binary.PutUvarint(tmp[:], uint64(len(header)))
	out = append(out, tmp[:n]...)
	out = append(out, header...)
	out = append(out, payload...)

	crc := crc32.Update(0, castagnoli, header)
	crc = crc32.Update(crc, castagnoli, payload)
	var crcb [4]byte
	binary.BigEndian.PutUint32(crcb[:], crc)
	out = append(out, crcb[:]...)
	return out
}

// Decoded is a verified record split back into its parts.
type Decoded struct {
	Header  []byte
	Payload []byte
}

// DecodeRecord splits and verifies a framed record. Returns false on any
// truncation or checksum mismatch.
func DecodeRecord(b []byte) (Decoded, bool) {
	if len(b) < 1+4 {
		return Decoded{}, false
	}
	hlen, n := binary.Uvarint(b)
	if n <= 0 || hlen > uint64(len(b)) {
		return Decoded{}, false
	}
	if int(n)+int(hlen)+4 > len(b) {
		return Decoded{}, false
	}
	header := b[n : n+int(hlen)]
	payload := b[n+int(hlen) : len(b)-4]
	expect := binary.BigEndian.Uint32(b[len(b)-4:])
	crc := crc32.Update(0, castagnoli, header)
	crc = crc32.Update(crc, castagnoli, payload)
	if crc != expect {
		return Decoded{}, false
	}
	return Decoded{Header: append([]byte(nil), header...), Payload: append([]byte(nil), payload...)}, true
}

// Header layout: receivedAt ms (8B BE) | event count (uvarint)

// EncodeHeader builds an entry header.
func EncodeHeader(receivedAtMs int64, events int) []byte {
	h := make([]byte, 8, 8+5)
	binary.BigEndian.PutUint64(h, uint64(receivedAtMs))
	var tmp [5]byte
	n := binary.PutUvarint(tmp[:], uint64(events))
	return append(h, tmp[:n]...)
}

// DecodeHeader parses an entry header.
func DecodeHeader(h []byte) (receivedAtMs int64, events int, ok bool) {
	if len(h) < 9 {
		return 0, 0, false
	}
	ms := int64(binary.BigEndian.Uint64(h[:8]))
	n, read := binary.Uvarint(h[8:])
	if read <= 0 {
		return 0, 0, false
	}
	return ms, int(n), true
}
