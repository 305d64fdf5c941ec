package bmff

import "fmt"

// ErrTruncated is returned when a box header cannot be fully read.
var ErrTruncated = fmt.Errorf("bmff: truncated box header")

// maxDepth bounds the container nesting stack; moov trees never nest this deep.
const maxDepth = 16

type readerFrame struct {
	end    int
	boxEnd int
}

// Reader walks a flat in-memory ISO-BMFF buffer box by box, descending
// into containers on demand. It never copies: Data/RawBox return slices
// into the backing buffer.
type Reader struct {
	buf []byte
	pos int
	end int

	boxType   Type
	boxSize   uint64
	boxStart  int
	boxEnd    int
	dataStart int

	version uint8
	flags   uint32

	stack [maxDepth]readerFrame
	depth int

	lastErr error
}

// NewReader creates a Reader over buf, starting at the top level.
func NewReader(buf []byte) Reader {
	return Reader{buf: buf, end: len(buf)}
}

// Next advances to the next sibling box at the current level. It returns
// false at a clean end of the current container (no error) or when a box
// header is truncated or overruns the container (also false; callers
// that must distinguish truncation call Err afterward).
func (r *Reader) Next() bool {
	r.lastErr = nil
	if r.boxEnd > r.pos {
		r.pos = r.boxEnd
	}
	if r.end-r.pos == 0 {
		return false
	}
	if r.end-r.pos < 8 {
		r.lastErr = ErrTruncated
		return false
	}

	r.boxStart = r.pos
	size := uint64(be.Uint32(r.buf[r.pos:]))
	copy(r.boxType[:], r.buf[r.pos+4:r.pos+8])
	ptr := r.pos + 8

	if size == 1 {
		if r.end-r.pos < 16 {
			r.lastErr = ErrTruncated
			return false
		}
		size = be.Uint64(r.buf[ptr:])
		ptr += 8
	}
	if size == 0 {
		size = uint64(r.end - r.boxStart)
	}
	if size < uint64(ptr-r.boxStart) {
		r.lastErr = fmt.Errorf("bmff: box %q size %d smaller than header", r.boxType, size)
		return false
	}

	r.boxSize = size
	r.boxEnd = r.boxStart + int(size)
	if r.boxEnd > r.end {
		r.lastErr = fmt.Errorf("bmff: box %q overruns container", r.boxType)
		return false
	}

	if isFullBox(r.boxType) {
		if r.boxEnd-ptr < 4 {
			r.lastErr = ErrTruncated
			return false
		}
		vf := be.Uint32(r.buf[ptr:])
		r.version = uint8(vf >> 24)
		r.flags = vf & 0x00ffffff
		ptr += 4
	} else {
		r.version, r.flags = 0, 0
	}

	r.dataStart = ptr
	return true
}

// Err returns the error, if any, that stopped the last Next call short of
// end-of-container. Nil means Next simply ran out of sibling boxes.
func (r *Reader) Err() error { return r.lastErr }

// Type returns the current box's 4-byte tag.
func (r *Reader) Type() Type { return r.boxType }

// Size returns the current box's total size including its header.
func (r *Reader) Size() uint64 { return r.boxSize }

// Version returns the full-box version field (0 for non-full boxes).
func (r *Reader) Version() uint8 { return r.version }

// Offset returns the start offset of the current box within the buffer.
func (r *Reader) Offset() int { return r.boxStart }

// Data returns the current box's content, after any size/type/version/flags header.
func (r *Reader) Data() []byte { return r.buf[r.dataStart:r.boxEnd] }

// RawBox returns the current box's bytes including its header.
func (r *Reader) RawBox() []byte { return r.buf[r.boxStart:r.boxEnd] }

// Enter descends into the current box to iterate its children. Call Skip
// first for boxes with fixed fields before their children (stsd's entry
// count, a sample entry's fixed header).
func (r *Reader) Enter() {
	r.stack[r.depth] = readerFrame{end: r.end, boxEnd: r.boxEnd}
	r.depth++
	r.end = r.boxEnd
	r.pos = r.dataStart
	r.boxEnd = r.dataStart
}

// Exit returns to the parent container; the next Next resumes iterating
// the parent's remaining siblings.
func (r *Reader) Exit() {
	r.depth--
	f := r.stack[r.depth]
	r.end = f.end
	r.pos = f.boxEnd
	r.boxEnd = f.boxEnd
}

// Skip advances the read position by n bytes within the current container,
// used after Enter to step past fixed-layout fields before child boxes.
func (r *Reader) Skip(n int) {
	r.pos += n
	r.boxEnd = r.pos
}

// FindChild scans the children of the box most recently Entered for the
// first one matching tag, leaving the reader positioned on it (caller may
// then read its Data/Version or Enter further). Returns false if absent;
// the reader is left at the end of the container either way.
func FindChild(r *Reader, tag Type) bool {
	for r.Next() {
		if r.Type() == tag {
			return true
		}
	}
	return false
}

// ReadMvhd extracts the movie timescale and duration from an mvhd box.
func (r *Reader) ReadMvhd() (timescale uint32, duration uint64) {
	data := r.Data()
	if r.Version() == 1 {
		timescale = be.Uint32(data[16:20])
		duration = be.Uint64(data[20:28])
	} else {
		timescale = be.Uint32(data[8:12])
		duration = uint64(be.Uint32(data[12:16]))
	}
	return
}

// ReadTkhd extracts the track id, width and height (as whole pixels,
// already shifted down from 16.16 fixed point) from a tkhd box.
func (r *Reader) ReadTkhd() (trackID uint32, width, height uint32) {
	data := r.Data()
	if r.Version() == 1 {
		trackID = be.Uint32(data[16:20])
		width = be.Uint32(data[84:88]) >> 16
		height = be.Uint32(data[88:92]) >> 16
	} else {
		trackID = be.Uint32(data[8:12])
		width = be.Uint32(data[72:76]) >> 16
		height = be.Uint32(data[76:80]) >> 16
	}
	return
}

// ReadMdhd extracts the track timescale and duration from an mdhd box.
func (r *Reader) ReadMdhd() (timescale uint32, duration uint64) {
	data := r.Data()
	if r.Version() == 1 {
		timescale = be.Uint32(data[16:20])
		duration = be.Uint64(data[20:28])
	} else {
		timescale = be.Uint32(data[8:12])
		duration = uint64(be.Uint32(data[12:16]))
	}
	return
}

// ReadHdlr extracts the 4-byte handler type ("vide", "soun", ...) from an hdlr box.
func (r *Reader) ReadHdlr() Type {
	data := r.Data()
	var t Type
	copy(t[:], data[4:8])
	return t
}

// ReadStts decodes an stts box into per-entry (count, delta) pairs.
func ReadStts(data []byte) []SttsEntry {
	if len(data) < 4 {
		return nil
	}
	count := be.Uint32(data[0:4])
	out := make([]SttsEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		off := 4 + int(i)*8
		if off+8 > len(data) {
			break
		}
		out = append(out, SttsEntry{Count: be.Uint32(data[off:]), Delta: be.Uint32(data[off+4:])})
	}
	return out
}

// SttsEntry is a time-to-sample run.
type SttsEntry struct {
	Count uint32
	Delta uint32
}

// ReadCtts decodes a ctts box. The offset field is always decoded as a
// signed 32-bit value whatever version is passed: that is the version-1
// encoding, and it agrees with version 0 for offsets below 2^31.
func ReadCtts(data []byte, version uint8) []CttsEntry {
	if len(data) < 4 {
		return nil
	}
	count := be.Uint32(data[0:4])
	out := make([]CttsEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		off := 4 + int(i)*8
		if off+8 > len(data) {
			break
		}
		offset := int32(be.Uint32(data[off+4:]))
		out = append(out, CttsEntry{Count: be.Uint32(data[off:]), Offset: offset})
	}
	return out
}

// CttsEntry is a composition-time-offset run.
type CttsEntry struct {
	Count  uint32
	Offset int32
}

// ReadStss decodes an stss box into a list of 1-based sync sample numbers.
func ReadStss(data []byte) []uint32 {
	if len(data) < 4 {
		return nil
	}
	count := be.Uint32(data[0:4])
	out := make([]uint32, 0, count)
	for i := uint32(0); i < count; i++ {
		off := 4 + int(i)*4
		if off+4 > len(data) {
			break
		}
		out = append(out, be.Uint32(data[off:]))
	}
	return out
}

// ReadStsz decodes an stsz box. If the returned uniformSize is nonzero,
// every sample has that size and sizes is nil; otherwise sizes holds one
// entry per sample.
func ReadStsz(data []byte) (uniformSize uint32, sizes []uint32) {
	if len(data) < 8 {
		return 0, nil
	}
	uniformSize = be.Uint32(data[0:4])
	count := be.Uint32(data[4:8])
	if uniformSize != 0 {
		return uniformSize, nil
	}
	sizes = make([]uint32, 0, count)
	for i := uint32(0); i < count; i++ {
		off := 8 + int(i)*4
		if off+4 > len(data) {
			break
		}
		sizes = append(sizes, be.Uint32(data[off:]))
	}
	return 0, sizes
}

// StscEntry is a sample-to-chunk run.
type StscEntry struct {
	FirstChunk      uint32
	SamplesPerChunk uint32
}

// ReadStsc decodes an stsc box.
func ReadStsc(data []byte) []StscEntry {
	if len(data) < 4 {
		return nil
	}
	count := be.Uint32(data[0:4])
	out := make([]StscEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		off := 4 + int(i)*12
		if off+12 > len(data) {
			break
		}
		out = append(out, StscEntry{
			FirstChunk:      be.Uint32(data[off:]),
			SamplesPerChunk: be.Uint32(data[off+4:]),
		})
	}
	return out
}

// ReadChunkOffsets decodes an stco (32-bit) or co64 (64-bit) box.
func ReadChunkOffsets(data []byte, is64 bool) []uint64 {
	if len(data) < 4 {
		return nil
	}
	count := be.Uint32(data[0:4])
	out := make([]uint64, 0, count)
	stride := 4
	if is64 {
		stride = 8
	}
	for i := uint32(0); i < count; i++ {
		off := 4 + int(i)*stride
		if off+stride > len(data) {
			break
		}
		if is64 {
			out = append(out, be.Uint64(data[off:]))
		} else {
			out = append(out, uint64(be.Uint32(data[off:])))
		}
	}
	return out
}

// VisualSampleEntryHeaderSize is the fixed portion of an avc1/hvc1 visual
// sample entry preceding its child boxes (avcC, ...).
const VisualSampleEntryHeaderSize = 78

// AudioSampleEntryHeaderSize is the fixed portion of an mp4a audio sample
// entry preceding its child boxes (esds).
const AudioSampleEntryHeaderSize = 28

// ReadAudioSampleEntryFixed extracts sample_rate (Hz, already shifted
// down from its 16.16 fixed-point storage) and channel count from the
// fixed header of an mp4a sample entry.
func ReadAudioSampleEntryFixed(data []byte) (sampleRate uint32, channels uint16) {
	channels = be.Uint16(data[16:18])
	sampleRate = be.Uint32(data[24:28]) >> 16
	return
}
