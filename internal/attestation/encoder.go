package attestation

import "encoding/binary"

// Encoder produces the BCS byte layout that signatures are computed over.
// Only fixed-width little-endian integers are needed by the signed
// messages. Field order is the order of the Write calls, so a Payload must
// always write its fields in declaration order.
type Encoder struct {
	buf []byte
}

type Payload interface {
	MarshalBCS(e *Encoder)
}

func (e *Encoder) WriteU8(v uint8) {
	e.buf = append(e.buf, v)
}

func (e *Encoder) WriteU64(v uint64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, v)
}

func (e *Encoder) Bytes() []byte {
	return e.buf
}
