// Package wire defines the named-data records exchanged by the overlay.
/*
 * Copyright (c) 2024-2025, CFN-Agg Authors. All rights reserved.
 */
package wire_test

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cfnagg/cfnagg/wire"
)

func TestModelDataRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		md   wire.ModelData
	}{
		{"empty congested", wire.ModelData{Parameters: []float32{1, 2, 3}}},
		{"one node", wire.ModelData{Parameters: []float32{-1.5, 0, math.MaxFloat32}, CongestedNodes: []string{"agg0"}}},
		{"order preserved", wire.ModelData{
			Parameters:     []float32{0.1, 0.2},
			CongestedNodes: []string{"agg1", "agg0", "agg1"},
		}},
		{"zero-length strings", wire.ModelData{Parameters: []float32{7}, CongestedNodes: []string{"", "p0", ""}}},
		{"special floats", wire.ModelData{Parameters: []float32{
			float32(math.Inf(1)), float32(math.Inf(-1)), math.SmallestNonzeroFloat32, float32(math.Copysign(0, -1)),
		}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			buf := wire.Serialize(&tc.md)
			got, err := wire.Deserialize(buf, len(tc.md.Parameters))
			require.NoError(t, err)
			require.Len(t, got.Parameters, len(tc.md.Parameters))
			// bit-exact on the parameter region
			for i, f := range tc.md.Parameters {
				assert.Equal(t, math.Float32bits(f), math.Float32bits(got.Parameters[i]), "param %d", i)
			}
			assert.Equal(t, tc.md.CongestedNodes, got.CongestedNodes)
		})
	}
}

func TestModelDataNaNRoundTrip(t *testing.T) {
	nan := math.Float32frombits(0x7fc00001) // a specific NaN payload
	buf := wire.Serialize(&wire.ModelData{Parameters: []float32{nan}})
	got, err := wire.Deserialize(buf, 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x7fc00001), math.Float32bits(got.Parameters[0]))
}

func TestModelDataLayout(t *testing.T) {
	md := &wire.ModelData{Parameters: []float32{1.0}, CongestedNodes: []string{"ab"}}
	buf := wire.Serialize(md)
	require.Len(t, buf, 4+4+2)
	assert.Equal(t, math.Float32bits(1.0), binary.LittleEndian.Uint32(buf[0:4]))
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(buf[4:8]))
	assert.Equal(t, "ab", string(buf[8:]))
}

func TestModelDataTruncation(t *testing.T) {
	md := &wire.ModelData{Parameters: []float32{1, 2}, CongestedNodes: []string{"agg0"}}
	buf := wire.Serialize(md)

	t.Run("parameters", func(t *testing.T) {
		_, err := wire.Deserialize(buf[:7], 2)
		var te *wire.ErrTruncatedParameters
		require.ErrorAs(t, err, &te)
	})
	t.Run("string header", func(t *testing.T) {
		_, err := wire.Deserialize(buf[:8+2], 2)
		var te *wire.ErrTruncatedStringHeader
		require.ErrorAs(t, err, &te)
	})
	t.Run("string body", func(t *testing.T) {
		_, err := wire.Deserialize(buf[:8+4+2], 2)
		var te *wire.ErrTruncatedStringBody
		require.ErrorAs(t, err, &te)
	})
}

func TestNameSchema(t *testing.T) {
	n := wire.DataName("agg0", []string{"p0", "p1"}).AppendSeq(42)
	assert.Equal(t, "/agg0/p0.p1/data/42", n.String())
	assert.Equal(t, "agg0", n.Prefix())
	assert.Equal(t, []string{"p0", "p1"}, n.Leaves())
	assert.Equal(t, wire.TypeData, n.Type())
	seq, err := n.Seq()
	require.NoError(t, err)
	assert.EqualValues(t, 42, seq)

	parsed, err := wire.ParseName("/agg0/p0.p1/data/42")
	require.NoError(t, err)
	assert.Equal(t, n.String(), parsed.String())

	_, err = wire.ParseName("no-slash")
	assert.Error(t, err)

	assert.Equal(t, "data", n.Component(-2))
	assert.Equal(t, "", n.Component(7))
}
