package bmff

// writerFrame records where a box's size field needs patching once its
// content is known.
type writerFrame struct {
	offset int
}

// Writer builds ISO-BMFF boxes bottom-up: StartBox/StartFullBox reserve a
// size field, the caller writes content (including nested boxes), and
// EndBox patches the size once the box's extent is known. This avoids
// ever re-copying a buffer to fix up sizes.
type Writer struct {
	buf   []byte
	stack [maxDepth]writerFrame
	depth int
}

// NewWriter creates a Writer with a pre-sized backing buffer. capacity bytes
// are reserved up front to avoid reallocation during a segment build;
// the writer still grows past it if needed.
func NewWriter(capacity int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity)}
}

// Bytes returns the bytes written so far.
func (w *Writer) Bytes() []byte { return w.buf }

// PutBytes appends raw bytes into the box currently being built, for
// callers splicing in pre-extracted payloads (avcC/esds contents copied
// verbatim from a source file).
func (w *Writer) PutBytes(p []byte) { w.putBytes(p) }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

func (w *Writer) putUint8(v byte)     { w.buf = append(w.buf, v) }
func (w *Writer) putUint16(v uint16)  { w.buf = be.AppendUint16(w.buf, v) }
func (w *Writer) putUint32(v uint32)  { w.buf = be.AppendUint32(w.buf, v) }
func (w *Writer) putUint64(v uint64)  { w.buf = be.AppendUint64(w.buf, v) }
func (w *Writer) putInt32(v int32)    { w.putUint32(uint32(v)) }
func (w *Writer) putZeros(n int)      { w.buf = append(w.buf, make([]byte, n)...) }
func (w *Writer) putBytes(p []byte)   { w.buf = append(w.buf, p...) }
func (w *Writer) putFixedString(s string, n int) {
	start := len(w.buf)
	w.putZeros(n)
	copy(w.buf[start:start+n], s)
}

// StartBox opens a box of type t; call EndBox once its content is written.
func (w *Writer) StartBox(t Type) {
	w.stack[w.depth] = writerFrame{offset: len(w.buf)}
	w.depth++
	w.putUint32(0) // size placeholder, patched in EndBox
	w.putBytes(t[:])
}

// StartFullBox opens a full box (version + flags header) of type t.
func (w *Writer) StartFullBox(t Type, version uint8, flags uint32) {
	w.StartBox(t)
	w.putUint32((uint32(version) << 24) | (flags & 0x00ffffff))
}

// EndBox closes the most recently opened box, patching its size field.
func (w *Writer) EndBox() {
	w.depth--
	f := w.stack[w.depth]
	size := uint32(len(w.buf) - f.offset)
	be.PutUint32(w.buf[f.offset:], size)
}

// WriteFtyp writes a complete ftyp box.
func (w *Writer) WriteFtyp(major [4]byte, minorVersion uint32, compatible [][4]byte) {
	w.StartBox(TypeFtyp)
	w.putBytes(major[:])
	w.putUint32(minorVersion)
	for _, c := range compatible {
		w.putBytes(c[:])
	}
	w.EndBox()
}

// WriteMvhd writes a complete mvhd box (version 1, 64-bit times, to
// comfortably hold long-running movies without overflow checks).
func (w *Writer) WriteMvhd(timescale uint32, duration uint64, nextTrackID uint32) {
	w.StartFullBox(TypeMvhd, 1, 0)
	w.putUint64(0) // creation time
	w.putUint64(0) // modification time
	w.putUint32(timescale)
	w.putUint64(duration)
	w.putUint32(0x00010000) // rate 1.0
	w.putUint16(0x0100)     // volume 1.0
	w.putZeros(10)          // reserved
	writeIdentityMatrix(w)
	w.putZeros(24) // pre_defined
	w.putUint32(nextTrackID)
	w.EndBox()
}

// WriteTkhd writes a complete tkhd box (version 1).
func (w *Writer) WriteTkhd(trackID uint32, duration uint64, width, height uint32) {
	const flags = 0x000007 // track enabled | in movie | in preview
	w.StartFullBox(TypeTkhd, 1, flags)
	w.putUint64(0) // creation time
	w.putUint64(0) // modification time
	w.putUint32(trackID)
	w.putUint32(0) // reserved
	w.putUint64(duration)
	w.putZeros(8)  // reserved
	w.putUint16(0) // layer
	w.putUint16(0) // alternate group
	w.putUint16(0) // volume (always 0, for audio tracks too)
	w.putUint16(0) // reserved
	writeIdentityMatrix(w)
	w.putUint32(width << 16)
	w.putUint32(height << 16)
	w.EndBox()
}

// WriteMdhd writes a complete mdhd box (version 1).
func (w *Writer) WriteMdhd(timescale uint32, duration uint64) {
	w.StartFullBox(TypeMdhd, 1, 0)
	w.putUint64(0) // creation time
	w.putUint64(0) // modification time
	w.putUint32(timescale)
	w.putUint64(duration)
	w.putUint16(0x55c4) // language "und"
	w.putUint16(0)      // quality
	w.EndBox()
}

// WriteHdlr writes a complete hdlr box for the given handler type ("vide" or "soun").
func (w *Writer) WriteHdlr(handlerType Type, name string) {
	w.StartFullBox(TypeHdlr, 0, 0)
	w.putUint32(0) // pre_defined
	w.putBytes(handlerType[:])
	w.putZeros(12) // reserved
	w.putBytes([]byte(name))
	w.putUint8(0)
	w.EndBox()
}

// WriteVmhd writes a complete vmhd box.
func (w *Writer) WriteVmhd() {
	w.StartFullBox(TypeVmhd, 0, 1)
	w.putUint16(0) // graphicsmode
	w.putZeros(6)  // opcolor
	w.EndBox()
}

// WriteSmhd writes a complete smhd box.
func (w *Writer) WriteSmhd() {
	w.StartFullBox(TypeSmhd, 0, 0)
	w.putUint16(0) // balance
	w.putUint16(0) // reserved
	w.EndBox()
}

// WriteMinimalDinf writes a dinf box containing a single self-contained
// (flags=1) url entry, the minimal data-reference every stbl needs.
func (w *Writer) WriteMinimalDinf() {
	w.StartBox(TypeDinf)
	w.StartFullBox(TypeDref, 0, 0)
	w.putUint32(1) // entry_count
	w.StartFullBox(TypeUrl, 0, 1)
	w.EndBox()
	w.EndBox()
	w.EndBox()
}

// WriteEmptyStbl writes a segment-base-only stbl: stsd with the caller's
// sample entry bytes, and empty stts/stsc/stsz/stco tables, since every
// sample lives in moof/mdat boxes, never in this init segment.
func (w *Writer) WriteEmptyStbl(sampleEntry []byte) {
	w.StartBox(TypeStbl)
	w.StartFullBox(TypeStsd, 0, 0)
	w.putUint32(1) // entry_count
	w.putBytes(sampleEntry)
	w.EndBox()
	w.StartFullBox(TypeStts, 0, 0)
	w.putUint32(0)
	w.EndBox()
	w.StartFullBox(TypeStsc, 0, 0)
	w.putUint32(0)
	w.EndBox()
	w.StartFullBox(TypeStsz, 0, 0)
	w.putUint32(0)
	w.putUint32(0)
	w.EndBox()
	w.StartFullBox(TypeStco, 0, 0)
	w.putUint32(0)
	w.EndBox()
	w.EndBox()
}

// WriteVisualSampleEntryHeader writes the 78-byte fixed header of an
// avc1 visual sample entry. The caller has already opened the avc1 box
// and writes avcC (and ends the box) after this call.
func (w *Writer) WriteVisualSampleEntryHeader(width, height uint16) {
	w.putZeros(6)
	w.putUint16(1)  // data_reference_index
	w.putZeros(16)  // pre_defined + reserved
	w.putUint16(width)
	w.putUint16(height)
	w.putUint32(0x00480000) // horizresolution 72dpi
	w.putUint32(0x00480000) // vertresolution 72dpi
	w.putZeros(4)           // reserved
	w.putUint16(1)          // frame_count
	w.putFixedString("", 32) // compressorname (length byte + 31 bytes, left empty)
	w.putUint16(0x0018) // depth
	w.putUint16(0xffff) // pre_defined = -1
}

// WriteAudioSampleEntryHeader writes the 28-byte fixed header of an mp4a
// audio sample entry. The caller writes esds (and ends the box) after.
func (w *Writer) WriteAudioSampleEntryHeader(channels, sampleSize uint16, sampleRate uint32) {
	w.putZeros(6)
	w.putUint16(1) // data_reference_index
	w.putZeros(8)  // reserved
	w.putUint16(channels)
	w.putUint16(sampleSize)
	w.putZeros(4)               // pre_defined + reserved
	w.putUint32(sampleRate << 16) // 16.16 fixed point
}

// WriteMehd writes a complete mehd box.
func (w *Writer) WriteMehd(fragmentDuration uint64) {
	w.StartFullBox(TypeMehd, 1, 0)
	w.putUint64(fragmentDuration)
	w.EndBox()
}

// WriteTrex writes a complete trex box with all-zero defaults; every
// sample's duration/size/flags is always carried explicitly in its trun.
func (w *Writer) WriteTrex(trackID uint32) {
	w.StartFullBox(TypeTrex, 0, 0)
	w.putUint32(trackID)
	w.putUint32(1) // default_sample_description_index
	w.putUint32(0) // default_sample_duration
	w.putUint32(0) // default_sample_size
	w.putUint32(0) // default_sample_flags
	w.EndBox()
}

// WriteMfhd writes a complete mfhd box.
func (w *Writer) WriteMfhd(sequenceNumber uint32) {
	w.StartFullBox(TypeMfhd, 0, 0)
	w.putUint32(sequenceNumber)
	w.EndBox()
}

// TfhdDefaultBaseIsMoof is the tfhd flag that makes trun data offsets
// relative to the start of the containing moof rather than to a base
// data offset carried elsewhere.
const TfhdDefaultBaseIsMoof = 0x020000

// WriteTfhd writes a complete tfhd box with only default-base-is-moof set.
func (w *Writer) WriteTfhd(trackID uint32) {
	w.StartFullBox(TypeTfhd, 0, TfhdDefaultBaseIsMoof)
	w.putUint32(trackID)
	w.EndBox()
}

// WriteTfdt writes a complete tfdt box (version 1, 64-bit base decode time).
func (w *Writer) WriteTfdt(baseMediaDecodeTime uint64) {
	w.StartFullBox(TypeTfdt, 1, 0)
	w.putUint64(baseMediaDecodeTime)
	w.EndBox()
}

// Trun flags used by the video and audio trun variants this engine emits.
const (
	TrunDataOffsetPresent                  = 0x000001
	TrunSampleDurationPresent              = 0x000100
	TrunSampleSizePresent                  = 0x000200
	TrunSampleFlagsPresent                 = 0x000400
	TrunSampleCompositionTimeOffsetPresent = 0x000800
)

// Sample flags used for trun's per-sample sample_flags field.
const (
	SampleFlagsSync    = 0x02000000 // I-frame / sync sample
	SampleFlagsNonSync = 0x01010000 // non-sync sample, not independently decodable
)

// TrunEntry is one sample row of a trun box; fields not selected by flags
// passed to WriteTrun are simply omitted from the encoding.
type TrunEntry struct {
	Duration              uint32
	Size                  uint32
	Flags                 uint32
	CompositionTimeOffset int32
}

// WriteTrun writes a complete trun box (version 1, so composition time
// offsets are signed). When flags select a data offset, a zero placeholder
// is written and its absolute position returned (-1 otherwise); the caller
// patches it via PatchInt32At once the moof's total length is known.
func (w *Writer) WriteTrun(flags uint32, entries []TrunEntry) (dataOffsetFieldPos int) {
	w.StartFullBox(TypeTrun, 1, flags)
	w.putUint32(uint32(len(entries)))
	dataOffsetFieldPos = -1
	if flags&TrunDataOffsetPresent != 0 {
		dataOffsetFieldPos = len(w.buf)
		w.putInt32(0) // placeholder, patched by PatchInt32At
	}
	for _, e := range entries {
		if flags&TrunSampleDurationPresent != 0 {
			w.putUint32(e.Duration)
		}
		if flags&TrunSampleSizePresent != 0 {
			w.putUint32(e.Size)
		}
		if flags&TrunSampleFlagsPresent != 0 {
			w.putUint32(e.Flags)
		}
		if flags&TrunSampleCompositionTimeOffsetPresent != 0 {
			w.putInt32(e.CompositionTimeOffset)
		}
	}
	w.EndBox()
	return dataOffsetFieldPos
}

// PatchInt32At overwrites a signed 32-bit field previously reserved (e.g.
// the data_offset placeholder returned by WriteTrun) now that its value
// is known. pos is an absolute offset into Bytes(), not relative to any
// open box.
func (w *Writer) PatchInt32At(pos int, v int32) {
	be.PutUint32(w.buf[pos:], uint32(v))
}

// WriteMdatHeader writes only an mdat box header (8 bytes, or 16 with a
// 64-bit extended size when the payload does not fit in 32 bits). The
// payload itself is never buffered here; it is streamed separately from
// the source file at serve time.
func WriteMdatHeader(payloadLen uint64) []byte {
	total := payloadLen + 8
	if total <= uint32Max {
		hdr := make([]byte, 8)
		be.PutUint32(hdr[0:4], uint32(total))
		copy(hdr[4:8], TypeMdat[:])
		return hdr
	}
	hdr := make([]byte, 16)
	be.PutUint32(hdr[0:4], 1)
	copy(hdr[4:8], TypeMdat[:])
	be.PutUint64(hdr[8:16], payloadLen+16)
	return hdr
}

func writeIdentityMatrix(w *Writer) {
	w.putUint32(0x00010000)
	w.putZeros(4)
	w.putZeros(4)
	w.putZeros(4)
	w.putUint32(0x00010000)
	w.putZeros(4)
	w.putZeros(4)
	w.putZeros(4)
	w.putUint32(0x40000000)
}
