package bmff_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediacore/hlsengine/internal/bmff"
)

func TestWriteFtyp_ReadBack(t *testing.T) {
	w := bmff.NewWriter(64)
	isom := [4]byte{'i', 's', 'o', 'm'}
	iso6 := [4]byte{'i', 's', 'o', '6'}
	w.WriteFtyp(isom, 0, [][4]byte{isom, iso6})

	r := bmff.NewReader(w.Bytes())
	require.True(t, r.Next())
	assert.Equal(t, bmff.TypeFtyp, r.Type())
	data := r.Data()
	require.Len(t, data, 4+4+4*2)
	assert.Equal(t, "isom", string(data[0:4]))
}

func TestWriteMvhd_ReadBackTimescaleAndDuration(t *testing.T) {
	w := bmff.NewWriter(128)
	w.WriteMvhd(1000, 54321, 3)

	r := bmff.NewReader(w.Bytes())
	require.True(t, r.Next())
	assert.Equal(t, bmff.TypeMvhd, r.Type())
	assert.Equal(t, uint8(1), r.Version())

	timescale, duration := r.ReadMvhd()
	assert.EqualValues(t, 1000, timescale)
	assert.EqualValues(t, 54321, duration)
}

func TestWriteTkhd_ReadBackTrackIDAndDimensions(t *testing.T) {
	w := bmff.NewWriter(128)
	w.WriteTkhd(7, 9000, 1920, 1080)

	r := bmff.NewReader(w.Bytes())
	require.True(t, r.Next())
	assert.Equal(t, bmff.TypeTkhd, r.Type())

	trackID, width, height := r.ReadTkhd()
	assert.EqualValues(t, 7, trackID)
	assert.EqualValues(t, 1920, width)
	assert.EqualValues(t, 1080, height)
}

func TestWriteMdhd_ReadBackTimescaleAndDuration(t *testing.T) {
	w := bmff.NewWriter(64)
	w.WriteMdhd(48000, 96000)

	r := bmff.NewReader(w.Bytes())
	require.True(t, r.Next())
	timescale, duration := r.ReadMdhd()
	assert.EqualValues(t, 48000, timescale)
	assert.EqualValues(t, 96000, duration)
}

func TestWriteHdlr_ReadBackHandlerType(t *testing.T) {
	w := bmff.NewWriter(64)
	w.WriteHdlr(bmff.Type{'v', 'i', 'd', 'e'}, "VideoHandler")

	r := bmff.NewReader(w.Bytes())
	require.True(t, r.Next())
	assert.Equal(t, bmff.Type{'v', 'i', 'd', 'e'}, r.ReadHdlr())
}

func TestWriteMinimalDinf_NestsDrefAndUrl(t *testing.T) {
	w := bmff.NewWriter(64)
	w.WriteMinimalDinf()

	r := bmff.NewReader(w.Bytes())
	require.True(t, r.Next())
	assert.Equal(t, bmff.TypeDinf, r.Type())
	r.Enter()
	require.True(t, r.Next())
	assert.Equal(t, bmff.TypeDref, r.Type())
	r.Enter()
	r.Skip(4) // dref entry_count precedes its child boxes
	require.True(t, r.Next())
	assert.Equal(t, bmff.TypeUrl, r.Type())
	r.Exit()
	assert.False(t, r.Next())
	r.Exit()
}

func TestWriteEmptyStbl_HasEmptySampleTables(t *testing.T) {
	w := bmff.NewWriter(128)
	sampleEntry := []byte("fake-sample-entry")
	w.WriteEmptyStbl(sampleEntry)

	r := bmff.NewReader(w.Bytes())
	require.True(t, r.Next())
	assert.Equal(t, bmff.TypeStbl, r.Type())
	r.Enter()

	require.True(t, r.Next())
	assert.Equal(t, bmff.TypeStsd, r.Type())
	data := r.Data()
	require.GreaterOrEqual(t, len(data), 4+len(sampleEntry))
	assert.Contains(t, string(data), "fake-sample-entry")

	require.True(t, r.Next())
	assert.Equal(t, bmff.TypeStts, r.Type())
	require.True(t, r.Next())
	assert.Equal(t, bmff.TypeStsc, r.Type())
	require.True(t, r.Next())
	assert.Equal(t, bmff.TypeStsz, r.Type())
	require.True(t, r.Next())
	assert.Equal(t, bmff.TypeStco, r.Type())
	assert.False(t, r.Next())
}

func TestStts_RoundTrip(t *testing.T) {
	w := bmff.NewWriter(64)
	w.StartFullBox(bmff.TypeStts, 0, 0)
	w.PutBytes(encodeStts([]bmff.SttsEntry{{Count: 10, Delta: 512}, {Count: 5, Delta: 1024}}))
	w.EndBox()

	r := bmff.NewReader(w.Bytes())
	require.True(t, r.Next())
	entries := bmff.ReadStts(r.Data())
	require.Len(t, entries, 2)
	assert.Equal(t, bmff.SttsEntry{Count: 10, Delta: 512}, entries[0])
	assert.Equal(t, bmff.SttsEntry{Count: 5, Delta: 1024}, entries[1])
}

func TestStss_RoundTrip(t *testing.T) {
	w := bmff.NewWriter(64)
	w.StartFullBox(bmff.TypeStss, 0, 0)
	w.PutBytes(encodeStss([]uint32{1, 7, 13}))
	w.EndBox()

	r := bmff.NewReader(w.Bytes())
	require.True(t, r.Next())
	assert.Equal(t, []uint32{1, 7, 13}, bmff.ReadStss(r.Data()))
}

func TestStsz_UniformSize_RoundTrip(t *testing.T) {
	w := bmff.NewWriter(64)
	w.StartFullBox(bmff.TypeStsz, 0, 0)
	w.PutBytes(encodeStszUniform(188, 50))
	w.EndBox()

	r := bmff.NewReader(w.Bytes())
	require.True(t, r.Next())
	uniform, sizes := bmff.ReadStsz(r.Data())
	assert.EqualValues(t, 188, uniform)
	assert.Nil(t, sizes)
}

func TestStsz_PerSampleSizes_RoundTrip(t *testing.T) {
	w := bmff.NewWriter(64)
	w.StartFullBox(bmff.TypeStsz, 0, 0)
	w.PutBytes(encodeStszSizes([]uint32{500, 100, 100, 500}))
	w.EndBox()

	r := bmff.NewReader(w.Bytes())
	require.True(t, r.Next())
	uniform, sizes := bmff.ReadStsz(r.Data())
	assert.EqualValues(t, 0, uniform)
	assert.Equal(t, []uint32{500, 100, 100, 500}, sizes)
}

func TestStsc_RoundTrip(t *testing.T) {
	w := bmff.NewWriter(64)
	w.StartFullBox(bmff.TypeStsc, 0, 0)
	w.PutBytes(encodeStsc([]bmff.StscEntry{{FirstChunk: 1, SamplesPerChunk: 1}}))
	w.EndBox()

	r := bmff.NewReader(w.Bytes())
	require.True(t, r.Next())
	entries := bmff.ReadStsc(r.Data())
	require.Len(t, entries, 1)
	assert.Equal(t, uint32(1), entries[0].FirstChunk)
	assert.Equal(t, uint32(1), entries[0].SamplesPerChunk)
}

func TestChunkOffsets_Stco32_RoundTrip(t *testing.T) {
	w := bmff.NewWriter(64)
	w.StartFullBox(bmff.TypeStco, 0, 0)
	w.PutBytes(encodeChunkOffsets32([]uint32{100, 700, 900}))
	w.EndBox()

	r := bmff.NewReader(w.Bytes())
	require.True(t, r.Next())
	offsets := bmff.ReadChunkOffsets(r.Data(), false)
	assert.Equal(t, []uint64{100, 700, 900}, offsets)
}

func TestWriteMfhdTfhdTfdt_RoundTrip(t *testing.T) {
	w := bmff.NewWriter(128)
	w.WriteMfhd(42)
	w.WriteTfhd(1)
	w.WriteTfdt(123456)

	r := bmff.NewReader(w.Bytes())
	require.True(t, r.Next())
	assert.Equal(t, bmff.TypeMfhd, r.Type())
	assert.EqualValues(t, 42, beUint32(r.Data()))

	require.True(t, r.Next())
	assert.Equal(t, bmff.TypeTfhd, r.Type())
	assert.EqualValues(t, 1, beUint32(r.Data()))

	require.True(t, r.Next())
	assert.Equal(t, bmff.TypeTfdt, r.Type())
	assert.Equal(t, uint8(1), r.Version())
}

func TestWriteTrun_FlagsSelectFields(t *testing.T) {
	w := bmff.NewWriter(128)
	flags := uint32(bmff.TrunDataOffsetPresent | bmff.TrunSampleDurationPresent | bmff.TrunSampleSizePresent | bmff.TrunSampleFlagsPresent)
	entries := []bmff.TrunEntry{
		{Duration: 1, Size: 500, Flags: bmff.SampleFlagsSync},
		{Duration: 1, Size: 100, Flags: bmff.SampleFlagsNonSync},
	}
	pos := w.WriteTrun(flags, entries)
	require.GreaterOrEqual(t, pos, 0)
	w.PatchInt32At(pos, 777)

	r := bmff.NewReader(w.Bytes())
	require.True(t, r.Next())
	assert.Equal(t, bmff.TypeTrun, r.Type())
	data := r.Data()

	sampleCount := beUint32(data[0:4])
	require.EqualValues(t, 2, sampleCount)
	dataOffset := int32(beUint32(data[4:8]))
	assert.EqualValues(t, 777, dataOffset)

	// Each row is duration(4) + size(4) + flags(4) = 12 bytes.
	row0 := data[8:20]
	assert.EqualValues(t, 1, beUint32(row0[0:4]))
	assert.EqualValues(t, 500, beUint32(row0[4:8]))
	assert.EqualValues(t, bmff.SampleFlagsSync, beUint32(row0[8:12]))

	row1 := data[20:32]
	assert.EqualValues(t, 100, beUint32(row1[4:8]))
	assert.EqualValues(t, bmff.SampleFlagsNonSync, beUint32(row1[8:12]))
}

func TestWriteMdatHeader_SmallPayload(t *testing.T) {
	hdr := bmff.WriteMdatHeader(1000)
	require.Len(t, hdr, 8)
	assert.EqualValues(t, 1008, beUint32(hdr[0:4]))
	assert.Equal(t, "mdat", string(hdr[4:8]))
}

func TestReadAudioSampleEntryFixed_MatchesWrittenHeader(t *testing.T) {
	w := bmff.NewWriter(64)
	w.WriteAudioSampleEntryHeader(2, 16, 48000)

	sampleRate, channels := bmff.ReadAudioSampleEntryFixed(w.Bytes())
	assert.EqualValues(t, 48000, sampleRate)
	assert.EqualValues(t, 2, channels)
}

func TestNext_StopsCleanlyAtEndOfBuffer(t *testing.T) {
	w := bmff.NewWriter(32)
	w.WriteMfhd(1)

	r := bmff.NewReader(w.Bytes())
	require.True(t, r.Next())
	assert.False(t, r.Next())
	assert.NoError(t, r.Err())
}

func TestNext_ReportsTruncatedHeader(t *testing.T) {
	r := bmff.NewReader([]byte{0, 0, 0})
	assert.False(t, r.Next())
	assert.ErrorIs(t, r.Err(), bmff.ErrTruncated)
}

func TestFindChild_LocatesMatchingSibling(t *testing.T) {
	w := bmff.NewWriter(128)
	w.StartBox(bmff.TypeMoov)
	w.WriteMvhd(1000, 0, 1)
	w.WriteMfhd(9) // unrelated sibling box, just to have more than one child
	w.EndBox()

	r := bmff.NewReader(w.Bytes())
	require.True(t, r.Next())
	r.Enter()
	assert.True(t, bmff.FindChild(&r, bmff.TypeMfhd))
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func encodeStts(entries []bmff.SttsEntry) []byte {
	out := be32(uint32(len(entries)))
	for _, e := range entries {
		out = append(out, be32(e.Count)...)
		out = append(out, be32(e.Delta)...)
	}
	return out
}

func encodeStss(syncs []uint32) []byte {
	out := be32(uint32(len(syncs)))
	for _, s := range syncs {
		out = append(out, be32(s)...)
	}
	return out
}

func encodeStszUniform(size uint32, count uint32) []byte {
	out := be32(size)
	out = append(out, be32(count)...)
	return out
}

func encodeStszSizes(sizes []uint32) []byte {
	out := be32(0)
	out = append(out, be32(uint32(len(sizes)))...)
	for _, s := range sizes {
		out = append(out, be32(s)...)
	}
	return out
}

func encodeStsc(entries []bmff.StscEntry) []byte {
	out := be32(uint32(len(entries)))
	for _, e := range entries {
		out = append(out, be32(e.FirstChunk)...)
		out = append(out, be32(e.SamplesPerChunk)...)
		out = append(out, be32(1)...) // sample_description_index
	}
	return out
}

func encodeChunkOffsets32(offsets []uint32) []byte {
	out := be32(uint32(len(offsets)))
	for _, o := range offsets {
		out = append(out, be32(o)...)
	}
	return out
}

func be32(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}
