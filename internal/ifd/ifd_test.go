package ifd

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gkocov/gaffer/internal/xdr"
)

func TestRoundTrip(t *testing.T) {
	const tagGamma = 0xA500
	for _, order := range []xdr.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		d := New(order)
		d.SetASCII(TagSoftware, "Gaffer 1.5.0")
		d.SetLong(TagImageWidth, 640)
		d.SetShort(TagBitsPerSample, 8, 8, 8)
		d.SetShort(TagSamplesPerPixel, 3)
		d.SetRational(TagXResolution, 72, 1)
		d.SetFloat(tagGamma, 2.2)
		d.SetLong(TagStripOffsets, 8, 100, 200)
		d.SetASCII(TagArtist, "ab")

		first := uint32(16)
		file := append(Header(order, first), make([]byte, 8)...)
		file = append(file, d.Encode(first, 0)...)
		assert.Len(t, file, int(first)+d.Size())

		gotOrder, off, err := ParseHeader(file)
		require.NoError(t, err)
		assert.Equal(t, order, gotOrder)
		assert.Equal(t, first, off)

		got, next, err := Read(file, order, off)
		require.NoError(t, err)
		assert.Zero(t, next)

		s, ok := got.String(TagSoftware)
		assert.True(t, ok)
		assert.Equal(t, "Gaffer 1.5.0", s)
		s, _ = got.String(TagArtist)
		assert.Equal(t, "ab", s)

		assert.Equal(t, uint32(640), got.Uint(TagImageWidth, 0))
		bps, _ := got.Uints(TagBitsPerSample)
		assert.Equal(t, []uint32{8, 8, 8}, bps)
		offsets, _ := got.Uints(TagStripOffsets)
		assert.Equal(t, []uint32{8, 100, 200}, offsets)
		assert.Equal(t, uint32(1), got.Uint(TagPlanarConfig, 1))

		res, ok := got.Float(TagXResolution)
		assert.True(t, ok)
		assert.Equal(t, 72.0, res)
		gamma, ok := got.Float(tagGamma)
		assert.True(t, ok)
		assert.InDelta(t, 2.2, gamma, 1e-6)
	}
}

func TestFieldsSorted(t *testing.T) {
	d := New(binary.LittleEndian)
	d.SetShort(TagSamplesPerPixel, 1)
	d.SetLong(TagImageWidth, 1)
	d.SetShort(TagSamplesPerPixel, 4)

	fields := d.Fields()
	require.Len(t, fields, 2)
	assert.Equal(t, uint16(TagImageWidth), fields[0].Tag)
	assert.Equal(t, uint32(4), d.Uint(TagSamplesPerPixel, 0))
}

func TestParseHeaderErrors(t *testing.T) {
	_, _, err := ParseHeader([]byte("II*"))
	assert.ErrorIs(t, err, ErrBadHeader)
	_, _, err = ParseHeader([]byte("XX*\x00\x08\x00\x00\x00"))
	assert.ErrorIs(t, err, ErrBadHeader)
	_, _, err = ParseHeader([]byte("II\x2b\x00\x08\x00\x00\x00"))
	assert.ErrorIs(t, err, ErrBadHeader)
}

func TestReadErrors(t *testing.T) {
	order := binary.LittleEndian
	_, _, err := Read(Header(order, 100), order, 100)
	assert.ErrorIs(t, err, ErrBadDirectory)

	d := New(order)
	d.SetASCII(TagSoftware, "long enough")
	data := append(Header(order, 8), d.Encode(8, 0)...)
	_, _, err = Read(data[:len(data)-6], order, 8)
	assert.ErrorIs(t, err, ErrBadDirectory)
}
