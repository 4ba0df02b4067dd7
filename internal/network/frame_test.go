package network

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/autotile/internal/vec"
	"github.com/annel0/autotile/internal/world"
)

func sampleBatch() RedrawBatch {
	return RedrawBatch{
		Map: "overworld",
		Seq: 7,
		Cells: []world.CellUpdate{
			{Pos: vec.Vec3{X: 0, Y: 0, Z: 0}, Tile: 3, Index: 13, Mask: 2, Sprite: "grass/13"},
			{Pos: vec.Vec3{X: 0, Y: 1, Z: 0}, Tile: 3, Index: 1, Mask: 64, Sprite: "grass/01"},
			{Pos: vec.Vec3{X: -5, Y: 2, Z: 1}, Index: -1},
		},
	}
}

func TestFrameRoundTrip(t *testing.T) {
	in := sampleBatch()

	frame, err := EncodeFrame(in)
	require.NoError(t, err)
	require.Greater(t, len(frame), headerSize)
	assert.Equal(t, uint32(len(frame)-headerSize), binary.BigEndian.Uint32(frame[:headerSize]))

	var out RedrawBatch
	require.NoError(t, DecodeFrame(frame, &out))
	assert.Equal(t, in, out)
}

func TestDecodeFrameRejectsBadInput(t *testing.T) {
	var out RedrawBatch

	assert.ErrorIs(t, DecodeFrame([]byte{0, 0}, &out), ErrShortFrame)

	huge := make([]byte, headerSize)
	binary.BigEndian.PutUint32(huge, MaxFrameSize+1)
	assert.ErrorIs(t, DecodeFrame(huge, &out), ErrFrameTooLarge)

	frame, err := EncodeFrame(sampleBatch())
	require.NoError(t, err)
	assert.ErrorIs(t, DecodeFrame(frame[:len(frame)-1], &out), ErrShortFrame)

	garbage := []byte{0, 0, 0, 3, 'b', 'a', 'd'}
	assert.Error(t, DecodeFrame(garbage, &out))
}

func TestReadFrameStream(t *testing.T) {
	var buf bytes.Buffer
	_, err := WriteFrame(&buf, Subscribe{Map: "overworld", Token: "abc"})
	require.NoError(t, err)
	_, err = WriteFrame(&buf, sampleBatch())
	require.NoError(t, err)

	var sub Subscribe
	require.NoError(t, ReadFrame(&buf, &sub))
	assert.Equal(t, Subscribe{Map: "overworld", Token: "abc"}, sub)

	var batch RedrawBatch
	require.NoError(t, ReadFrame(&buf, &batch))
	assert.Equal(t, sampleBatch(), batch)

	assert.ErrorIs(t, ReadFrame(&buf, &batch), io.EOF)
}

func TestReadFrameTruncatedBody(t *testing.T) {
	frame, err := EncodeFrame(sampleBatch())
	require.NoError(t, err)

	var out RedrawBatch
	err = ReadFrame(bytes.NewReader(frame[:len(frame)-2]), &out)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	huge := make([]byte, headerSize)
	binary.BigEndian.PutUint32(huge, MaxFrameSize+1)
	assert.ErrorIs(t, ReadFrame(bytes.NewReader(huge), &out), ErrFrameTooLarge)
}
