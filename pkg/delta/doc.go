/*
Package delta implements the instruction-based binary patch format used
to shrink update transfers.

A delta transforms an old file into a new one through three instructions,
chosen for bounded memory on the applying device rather than diff
quality:

	8 bytes   magic "OTADELTA"
	1 byte    format version (1)
	...       instructions:
	  0x01 COPY_OLD  varint offset, varint length (<= 4096)
	  0x02 NEW_DATA  varint length (<= 2048), literal bytes
	  0xFF END

Varints are standard 7-bit little-endian continuation encoding bounded to
32-bit values.

# Applying

Apply streams the delta through a fixed 64-byte lookahead buffer; copy
instructions issue bounded reads against the old file and literals stream
straight to the output writer. Peak working set is the lookahead plus one
chunk, independent of delta size. The output goes through the atomic
writer and is only renamed into place after the END instruction and an
optional SHA-256 check over the emitted bytes.

Malformed input — bad magic or version, truncation inside an instruction,
an unknown opcode, a limit violation, or a final hash mismatch — fails
with an integrity error and leaves no partial output behind.

# Creating

Create is the host-side generator: a block-hash match over fixed-size
blocks with byte-wise match extension. Long matches are split at the
COPY limit and literal runs at the NEW_DATA limit, so generated deltas
always satisfy the applier. EstimateSize predicts whether a delta is
worth generating at all.
*/
package delta
