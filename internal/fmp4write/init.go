// Package fmp4write builds the two kinds of byte blobs the serving layer
// hands out: the ftyp+moov init segment (once per prepared media) and the
// moof+mdat header pair for each media segment (once per segment, at
// plan time, never rebuilt at serve time).
package fmp4write

import (
	"github.com/mediacore/hlsengine/internal/bmff"
	"github.com/mediacore/hlsengine/internal/mp4meta"
)

var (
	brandIsom = [4]byte{'i', 's', 'o', 'm'}
	brandIso6 = [4]byte{'i', 's', 'o', '6'}
	brandMp41 = [4]byte{'m', 'p', '4', '1'}
)

// BuildInitSegment constructs the ftyp+moov prefix a player loads once.
// The stbl inside each trak is segment-base-only: its sample tables are
// empty since every sample lives in a later moof/mdat.
func BuildInitSegment(meta *mp4meta.Mp4Metadata, movieTimescale uint32) []byte {
	w := bmff.NewWriter(4096)

	w.WriteFtyp(brandIsom, 0, [][4]byte{brandIsom, brandIso6, brandMp41})

	movieDuration := scaleDuration(meta.VideoTrack.DurationTicks, meta.VideoTrack.Timescale, movieTimescale)

	w.StartBox(bmff.TypeMoov)
	nextTrackID := meta.VideoTrack.TrackID + 1
	if meta.AudioTrack != nil && meta.AudioTrack.TrackID >= nextTrackID {
		nextTrackID = meta.AudioTrack.TrackID + 1
	}
	w.WriteMvhd(movieTimescale, movieDuration, nextTrackID)

	writeVideoTrak(w, &meta.VideoTrack)
	if meta.AudioTrack != nil {
		writeAudioTrak(w, meta.AudioTrack)
	}

	w.StartBox(bmff.TypeMvex)
	w.WriteTrex(meta.VideoTrack.TrackID)
	if meta.AudioTrack != nil {
		w.WriteTrex(meta.AudioTrack.TrackID)
	}
	w.EndBox() // mvex
	w.EndBox() // moov

	return w.Bytes()
}

func writeVideoTrak(w *bmff.Writer, t *mp4meta.TrackInfo) {
	w.StartBox(bmff.TypeTrak)
	w.WriteTkhd(t.TrackID, t.DurationTicks, t.Width, t.Height)

	w.StartBox(bmff.TypeMdia)
	w.WriteMdhd(t.Timescale, t.DurationTicks)
	w.WriteHdlr(bmff.Type{'v', 'i', 'd', 'e'}, "VideoHandler")

	w.StartBox(bmff.TypeMinf)
	w.WriteVmhd()
	w.WriteMinimalDinf()

	entry := buildAvc1SampleEntry(t)
	w.WriteEmptyStbl(entry)
	w.EndBox() // minf
	w.EndBox() // mdia
	w.EndBox() // trak
}

func writeAudioTrak(w *bmff.Writer, t *mp4meta.TrackInfo) {
	w.StartBox(bmff.TypeTrak)
	w.WriteTkhd(t.TrackID, t.DurationTicks, 0, 0)

	w.StartBox(bmff.TypeMdia)
	w.WriteMdhd(t.Timescale, t.DurationTicks)
	w.WriteHdlr(bmff.Type{'s', 'o', 'u', 'n'}, "SoundHandler")

	w.StartBox(bmff.TypeMinf)
	w.WriteSmhd()
	w.WriteMinimalDinf()

	entry := buildMp4aSampleEntry(t)
	w.WriteEmptyStbl(entry)
	w.EndBox() // minf
	w.EndBox() // mdia
	w.EndBox() // trak
}

// buildAvc1SampleEntry serializes a standalone avc1 box (header + fixed
// geometry fields + avcC child, copied verbatim from the source file)
// into its own buffer so it can be handed to WriteEmptyStbl as the
// stsd's single entry.
func buildAvc1SampleEntry(t *mp4meta.TrackInfo) []byte {
	w := bmff.NewWriter(128 + len(t.CodecPrivateBytes))
	w.StartBox(bmff.Type{'a', 'v', 'c', '1'})
	w.WriteVisualSampleEntryHeader(uint16(t.Width), uint16(t.Height))
	w.StartBox(bmff.TypeAvcC)
	w.PutBytes(t.CodecPrivateBytes)
	w.EndBox()
	w.EndBox()
	return w.Bytes()
}

func buildMp4aSampleEntry(t *mp4meta.TrackInfo) []byte {
	w := bmff.NewWriter(64 + len(t.CodecPrivateBytes))
	w.StartBox(bmff.Type{'m', 'p', '4', 'a'})
	w.WriteAudioSampleEntryHeader(t.Channels, 16, t.SampleRate)
	w.StartFullBox(bmff.TypeEsds, 0, 0)
	w.PutBytes(t.CodecPrivateBytes)
	w.EndBox()
	w.EndBox()
	return w.Bytes()
}

func scaleDuration(ticks uint64, from, to uint32) uint64 {
	if from == 0 {
		return 0
	}
	return ticks * uint64(to) / uint64(from)
}
