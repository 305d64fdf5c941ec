package fmp4write

import "github.com/mediacore/hlsengine/internal/bmff"

// TrackFragment is one track's contribution to a single moof: the
// sample rows for its trun plus the total byte size of its sample data
// inside the shared mdat, used to compute data_offset.
type TrackFragment struct {
	TrackID       uint32
	IsVideo       bool // selects the video trun flag set vs the audio one
	BaseDecodeTime uint64
	Entries       []bmff.TrunEntry
	DataSize      int64
}

// BuildMoof serializes a complete moof box for one or two tracks (video
// always first, audio second when present) and returns it alongside the
// mdat header that must immediately follow it. Each TrackFragment's
// data_offset is computed and patched in place: the first fragment's
// sample data starts right after the mdat header, and each subsequent
// fragment's starts after the previous fragment's data.
func BuildMoof(sequenceNumber uint32, fragments []TrackFragment) (moofBytes, mdatHeaderBytes []byte) {
	w := bmff.NewWriter(1024)

	w.StartBox(bmff.TypeMoof)
	w.WriteMfhd(sequenceNumber)

	patchPositions := make([]int, len(fragments))
	for i, frag := range fragments {
		w.StartBox(bmff.TypeTraf)
		w.WriteTfhd(frag.TrackID)
		w.WriteTfdt(frag.BaseDecodeTime)

		flags := trunFlagsFor(frag.IsVideo)
		patchPositions[i] = w.WriteTrun(flags, frag.Entries)
		w.EndBox() // traf
	}
	w.EndBox() // moof

	moofLen := int64(w.Len())

	var totalDataSize int64
	for _, frag := range fragments {
		totalDataSize += frag.DataSize
	}
	mdatHeaderBytes = bmff.WriteMdatHeader(uint64(totalDataSize))

	var cumulative int64
	for i, frag := range fragments {
		offset := int32(moofLen + int64(len(mdatHeaderBytes)) + cumulative)
		if patchPositions[i] >= 0 {
			w.PatchInt32At(patchPositions[i], offset)
		}
		cumulative += frag.DataSize
	}

	return w.Bytes(), mdatHeaderBytes
}

// trunFlagsFor returns the trun flag set for a video or audio track, per
// the fixed field layout each carries: video needs sample size, sync
// flags and composition offsets; audio only needs size and duration.
func trunFlagsFor(isVideo bool) uint32 {
	if isVideo {
		return bmff.TrunDataOffsetPresent |
			bmff.TrunSampleSizePresent |
			bmff.TrunSampleFlagsPresent |
			bmff.TrunSampleCompositionTimeOffsetPresent
	}
	return bmff.TrunDataOffsetPresent |
		bmff.TrunSampleSizePresent |
		bmff.TrunSampleDurationPresent
}
