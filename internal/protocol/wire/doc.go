// Package wire owns the lane word layout shared by the host engine and
// lane-side implementations.
//
// Ownership boundary:
// - 64-bit command/result word fields
// - lane vectors and lane masks
// - freshness bands and fault classification
// - lane temperature decoding
//
// Result word layout, bit-exact:
//
//	63..56  echo marker, clear once the command is consumed
//	55..48  freshness byte, population-count encoded
//	47..40  temperature byte, population-count encoded
//	39..32  validity sentinel (0xFF once ready)
//	31..0   payload; low 8 bits double as the unit selection ack
package wire
