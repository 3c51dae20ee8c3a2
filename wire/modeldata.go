// Package wire defines the named-data records exchanged by the overlay.
/*
 * Copyright (c) 2024-2025, CFN-Agg Authors. All rights reserved.
 */
package wire

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ModelData is the aggregation payload: a fixed-width float32 vector plus the
// ordered list of congested node prefixes accumulated along the subtree.
type ModelData struct {
	Parameters     []float32
	CongestedNodes []string
}

type (
	ErrTruncatedParameters struct {
		have, want int
	}
	ErrTruncatedStringHeader struct {
		off int
	}
	ErrTruncatedStringBody struct {
		off, want, have int
	}
)

func (e *ErrTruncatedParameters) Error() string {
	return fmt.Sprintf("model-data: parameter region truncated: have %d bytes, want %d", e.have, e.want)
}

func (e *ErrTruncatedStringHeader) Error() string {
	return fmt.Sprintf("model-data: truncated string length at offset %d", e.off)
}

func (e *ErrTruncatedStringBody) Error() string {
	return fmt.Sprintf("model-data: truncated string body at offset %d: want %d bytes, have %d", e.off, e.want, e.have)
}

// Serialize encodes the parameter vector as raw little-endian float32 bytes
// followed by each congested-node string as a 32-bit little-endian length and
// raw bytes. No padding anywhere.
func Serialize(md *ModelData) []byte {
	size := 4 * len(md.Parameters)
	for _, s := range md.CongestedNodes {
		size += 4 + len(s)
	}
	buf := make([]byte, 0, size)
	for _, f := range md.Parameters {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(f))
	}
	for _, s := range md.CongestedNodes {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s)))
		buf = append(buf, s...)
	}
	return buf
}

// Deserialize decodes a payload whose parameter width is known to the
// receiving node; trailing bytes beyond 4*expectedP are interpreted as
// length-prefixed strings until exhausted.
func Deserialize(buf []byte, expectedP int) (*ModelData, error) {
	paramSize := 4 * expectedP
	if len(buf) < paramSize {
		return nil, &ErrTruncatedParameters{have: len(buf), want: paramSize}
	}
	md := &ModelData{Parameters: make([]float32, expectedP)}
	for i := 0; i < expectedP; i++ {
		md.Parameters[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	off := paramSize
	for off < len(buf) {
		if off+4 > len(buf) {
			return nil, &ErrTruncatedStringHeader{off: off}
		}
		slen := int(binary.LittleEndian.Uint32(buf[off:]))
		off += 4
		if off+slen > len(buf) {
			return nil, &ErrTruncatedStringBody{off: off, want: slen, have: len(buf) - off}
		}
		md.CongestedNodes = append(md.CongestedNodes, string(buf[off:off+slen]))
		off += slen
	}
	return md, nil
}
