// Package mp4test builds small, valid, in-memory faststart MP4 files for
// exercising mp4meta, segplan, fmp4write and streamapi without a real
// media asset on disk. Fixtures are intentionally tiny (a few dozen
// samples at most, toy timescales) rather than literal encodes of a real
// clip; what matters is that mp4meta.Parse accepts them and that the
// resulting Mp4Metadata exercises the same box shapes a real encode would.
package mp4test

import (
	"encoding/binary"

	"github.com/mediacore/hlsengine/internal/bmff"
)

var be = binary.BigEndian

// knownGoodAvcC is a minimal, valid avcC record (H.264 Constrained Baseline profile SPS/PPS
// pair) that mediacommon's h264.SPS decoder accepts; SPS/PPS bytes are the
// same pair jmylchreest/tvarr's own codec-extraction tests use.
var knownGoodAvcC = buildAvcC(
	[]byte{0x67, 0x42, 0xC0, 0x1E, 0x8C, 0x8D, 0x40},
	[]byte{0x68, 0xCE, 0x3C, 0x80},
)

// knownGoodEsds is a minimal, valid esds record wrapping an AAC-LC, 48kHz,
// stereo AudioSpecificConfig (0x11, 0x90 -- the same two bytes
// jmylchreest/tvarr's fixtures use as an AAC config placeholder).
var knownGoodEsds = buildEsds([]byte{0x11, 0x90})

// Sample is one encoded frame to place in a fixture track.
type Sample struct {
	Size     uint32
	Duration uint32 // track timescale ticks
	Sync     bool
}

// Track describes one fixture track's geometry and sample list.
type Track struct {
	TrackID   uint32
	Timescale uint32
	Width     uint32 // video only
	Height    uint32 // video only
	SampleRate uint32 // audio only
	Channels   uint16 // audio only
	Samples    []Sample
}

// Build assembles a faststart MP4 (ftyp, moov, mdat) with one H.264 video
// track and, if audio is non-nil, one AAC audio track. Video sample data
// is written before audio sample data inside mdat. Returned bytes are
// accepted by mp4meta.Parse.
func Build(video Track, audio *Track) []byte {
	w := bmff.NewWriter(4096)

	isomBrand := [4]byte{'i', 's', 'o', 'm'}
	w.WriteFtyp(isomBrand, 0, [][4]byte{isomBrand, {'i', 's', 'o', '6'}, {'m', 'p', '4', '1'}})

	movieTimescale := video.Timescale
	movieDuration := trackDuration(video.Samples)

	w.StartBox(bmff.TypeMoov)
	nextTrackID := video.TrackID + 1
	if audio != nil && audio.TrackID >= nextTrackID {
		nextTrackID = audio.TrackID + 1
	}
	w.WriteMvhd(movieTimescale, movieDuration, nextTrackID)

	videoEntry := buildAvc1Entry(video.Width, video.Height, knownGoodAvcC)
	videoStco := writeTrak(w, bmff.Type{'v', 'i', 'd', 'e'}, "VideoHandler", &video, videoEntry)

	var audioStco []int
	if audio != nil {
		audioEntry := buildMp4aEntry(audio.Channels, audio.SampleRate, knownGoodEsds)
		audioStco = writeTrak(w, bmff.Type{'s', 'o', 'u', 'n'}, "SoundHandler", audio, audioEntry)
	}
	w.EndBox() // moov

	videoPayload, videoOffsets := sampleRegion(video.Samples, 0)
	mdatPayload := append([]byte(nil), videoPayload...)
	var audioOffsets []int64
	if audio != nil {
		var audioPayload []byte
		audioPayload, audioOffsets = sampleRegion(audio.Samples, int64(len(videoPayload)))
		mdatPayload = append(mdatPayload, audioPayload...)
	}

	mdatHeader := bmff.WriteMdatHeader(uint64(len(mdatPayload)))
	mdatOffset := int64(w.Len() + len(mdatHeader))

	for i, pos := range videoStco {
		w.PatchInt32At(pos, int32(mdatOffset+videoOffsets[i]))
	}
	for i, pos := range audioStco {
		w.PatchInt32At(pos, int32(mdatOffset+audioOffsets[i]))
	}

	out := w.Bytes()
	out = append(out, mdatHeader...)
	out = append(out, mdatPayload...)
	return out
}

// writeTrak writes a complete trak box (tkhd/mdia/minf/stbl, one sample
// per chunk) and returns the byte positions of its stco entries, to be
// patched once the mdat start offset is known.
func writeTrak(w *bmff.Writer, handler bmff.Type, handlerName string, t *Track, sampleEntry []byte) []int {
	duration := trackDuration(t.Samples)

	w.StartBox(bmff.TypeTrak)
	w.WriteTkhd(t.TrackID, duration, t.Width, t.Height)

	w.StartBox(bmff.TypeMdia)
	w.WriteMdhd(t.Timescale, duration)
	w.WriteHdlr(handler, handlerName)

	w.StartBox(bmff.TypeMinf)
	if handler == (bmff.Type{'v', 'i', 'd', 'e'}) {
		w.WriteVmhd()
	} else {
		w.WriteSmhd()
	}
	w.WriteMinimalDinf()

	w.StartBox(bmff.TypeStbl)
	w.StartFullBox(bmff.TypeStsd, 0, 0)
	w.PutBytes(be32(1))
	w.PutBytes(sampleEntry)
	w.EndBox() // stsd

	writeStts(w, t.Samples)
	writeStss(w, t.Samples)
	writeStsz(w, t.Samples)
	writeStsc(w)
	positions := writeStco(w, len(t.Samples))

	w.EndBox() // stbl
	w.EndBox() // minf
	w.EndBox() // mdia
	w.EndBox() // trak

	return positions
}

func writeStts(w *bmff.Writer, samples []Sample) {
	w.StartFullBox(bmff.TypeStts, 0, 0)
	w.PutBytes(be32(uint32(len(samples))))
	for _, s := range samples {
		w.PutBytes(be32(1))
		w.PutBytes(be32(s.Duration))
	}
	w.EndBox()
}

// writeStss writes an stss box listing the 1-based sync sample numbers,
// or omits the box entirely when every sample is sync (the absent-stss
// convention the reader already relies on).
func writeStss(w *bmff.Writer, samples []Sample) {
	var syncs []uint32
	for i, s := range samples {
		if s.Sync {
			syncs = append(syncs, uint32(i+1))
		}
	}
	if len(syncs) == len(samples) {
		return
	}
	w.StartFullBox(bmff.TypeStss, 0, 0)
	w.PutBytes(be32(uint32(len(syncs))))
	for _, n := range syncs {
		w.PutBytes(be32(n))
	}
	w.EndBox()
}

func writeStsz(w *bmff.Writer, samples []Sample) {
	w.StartFullBox(bmff.TypeStsz, 0, 0)
	w.PutBytes(be32(0)) // sample_size 0: per-sample sizes follow
	w.PutBytes(be32(uint32(len(samples))))
	for _, s := range samples {
		w.PutBytes(be32(s.Size))
	}
	w.EndBox()
}

// writeStsc writes a single-entry stsc: every chunk holds exactly one
// sample, the simplest chunking that still exercises the stsc->stco walk.
func writeStsc(w *bmff.Writer) {
	w.StartFullBox(bmff.TypeStsc, 0, 0)
	w.PutBytes(be32(1))
	w.PutBytes(be32(1)) // first_chunk
	w.PutBytes(be32(1)) // samples_per_chunk
	w.PutBytes(be32(1)) // sample_description_index
	w.EndBox()
}

// writeStco reserves one chunk-offset entry per sample and returns the
// absolute byte position of each entry's placeholder, for the caller to
// patch once real file offsets are known.
func writeStco(w *bmff.Writer, count int) []int {
	w.StartFullBox(bmff.TypeStco, 0, 0)
	w.PutBytes(be32(uint32(count)))
	positions := make([]int, count)
	for i := 0; i < count; i++ {
		positions[i] = w.Len()
		w.PutBytes(be32(0))
	}
	w.EndBox()
	return positions
}

func buildAvc1Entry(width, height uint32, avcC []byte) []byte {
	w := bmff.NewWriter(64 + len(avcC))
	w.StartBox(bmff.TypeAvc1)
	w.WriteVisualSampleEntryHeader(uint16(width), uint16(height))
	w.StartBox(bmff.TypeAvcC)
	w.PutBytes(avcC)
	w.EndBox()
	w.EndBox()
	return w.Bytes()
}

func buildMp4aEntry(channels uint16, sampleRate uint32, esds []byte) []byte {
	w := bmff.NewWriter(48 + len(esds))
	w.StartBox(bmff.TypeMp4a)
	w.WriteAudioSampleEntryHeader(channels, 16, sampleRate)
	w.StartFullBox(bmff.TypeEsds, 0, 0)
	w.PutBytes(esds)
	w.EndBox()
	w.EndBox()
	return w.Bytes()
}

// buildAvcC assembles a minimal avcC record (one SPS, one PPS, 4-byte
// NAL length field) from raw NAL unit bytes.
func buildAvcC(sps, pps []byte) []byte {
	out := []byte{
		0x01,       // configurationVersion
		sps[1],     // profile_idc
		sps[2],     // profile_compatibility
		sps[3],     // level_idc
		0xFF,       // reserved(6) | lengthSizeMinusOne(2) = 3 -> 4-byte lengths
		0xE0 | 0x01, // reserved(3) | numOfSequenceParameterSets(5) = 1
	}
	out = append(out, be16(uint16(len(sps)))...)
	out = append(out, sps...)
	out = append(out, 0x01) // numOfPictureParameterSets
	out = append(out, be16(uint16(len(pps)))...)
	out = append(out, pps...)
	return out
}

// buildEsds assembles a minimal MPEG-4 esds descriptor tree (ES_Descriptor
// > DecoderConfigDescriptor > DecoderSpecificInfo) wrapping asc.
func buildEsds(asc []byte) []byte {
	decSpecificInfo := append([]byte{0x05, byte(len(asc))}, asc...)

	decoderConfig := []byte{
		0x40,             // objectTypeIndication: MPEG-4 Audio
		0x15,             // streamType(6)=5 audio | upStream(1)=0 | reserved(1)=1
		0x00, 0x00, 0x00, // bufferSizeDB
		0x00, 0x00, 0x00, 0x00, // maxBitrate
		0x00, 0x00, 0x00, 0x00, // avgBitrate
	}
	decoderConfigDescr := append([]byte{0x04, byte(len(decoderConfig) + len(decSpecificInfo))}, decoderConfig...)
	decoderConfigDescr = append(decoderConfigDescr, decSpecificInfo...)

	esDescrPayload := append([]byte{0x00, 0x00, 0x00}, decoderConfigDescr...) // ES_ID(2) + flags(1)
	return append([]byte{0x03, byte(len(esDescrPayload))}, esDescrPayload...)
}

func trackDuration(samples []Sample) uint64 {
	var total uint64
	for _, s := range samples {
		total += uint64(s.Duration)
	}
	return total
}

// sampleRegion lays out samples contiguously starting at regionStart
// (the offset into the full mdat payload where this region begins) and
// returns the concatenated payload bytes plus each sample's offset into
// the full mdat payload.
func sampleRegion(samples []Sample, regionStart int64) ([]byte, []int64) {
	offsets := make([]int64, len(samples))
	var buf []byte
	offset := regionStart
	for i, s := range samples {
		offsets[i] = offset
		buf = append(buf, fillerBytes(s.Size, byte(i))...)
		offset += int64(s.Size)
	}
	return buf, offsets
}

// fillerBytes returns n deterministic bytes so tests can assert on sample
// content as well as sample boundaries.
func fillerBytes(n uint32, seed byte) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = seed + byte(i)
	}
	return out
}

func be32(v uint32) []byte {
	b := make([]byte, 4)
	be.PutUint32(b, v)
	return b
}

func be16(v uint16) []byte {
	b := make([]byte, 2)
	be.PutUint16(b, v)
	return b
}
