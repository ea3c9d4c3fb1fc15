// Package opcode owns the command words a host sends down a lane.
//
// Ownership boundary:
// - command word layout (kind, argument, payload)
// - structure words selecting an operation family
// - frame words carrying that family's operands
// - direct commands that need no structure (byte order, reset, bit order,
//   identity, thermal, carousel timings)
//
// Command word layout:
//
//	63..56  kind; echoed by the lane until consumed, never 0x00 or 0xFF
//	55..32  argument (structure: family<<16 | operand; frame: family<<16 | address)
//	31..0   payload
package opcode
