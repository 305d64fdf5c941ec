package segplan

import (
	"sort"

	"github.com/mediacore/hlsengine/internal/bmff"
	"github.com/mediacore/hlsengine/internal/engineerr"
	"github.com/mediacore/hlsengine/internal/fmp4write"
	"github.com/mediacore/hlsengine/internal/mp4meta"
)

// DefaultTargetDurationSecs is the nominal segment length the planner
// aims for; actual segment durations vary to stay keyframe-aligned.
const DefaultTargetDurationSecs = 6.0

// Plan partitions meta's video track into keyframe-aligned segments near
// targetDurationSecs each, matches audio samples to each segment's time
// range, and precomputes every segment's moof/mdat-header bytes.
func Plan(meta *mp4meta.Mp4Metadata, targetDurationSecs float64) ([]PrecomputedSegment, error) {
	video := meta.VideoTrack
	samples := video.Samples
	if len(samples) == 0 {
		return nil, engineerr.ErrEmptyVideoTrack
	}

	keyframes := syncIndices(samples)
	if len(keyframes) == 0 {
		return nil, engineerr.ErrNoKeyframes
	}

	boundaries := segmentBoundaries(samples, keyframes, targetDurationSecs, video.Timescale)

	var audio *mp4meta.TrackInfo
	if meta.AudioTrack != nil {
		audio = meta.AudioTrack
	}
	audioCursor := 0

	segments := make([]PrecomputedSegment, 0, len(boundaries))
	for i, start := range boundaries {
		end := len(samples)
		if i+1 < len(boundaries) {
			end = boundaries[i+1]
		}
		videoSlice := samples[start:end]

		startSecs := float64(videoSlice[0].DecodeTimestamp) / float64(video.Timescale)
		var endSecs float64
		if i+1 < len(boundaries) {
			endSecs = float64(samples[end].DecodeTimestamp) / float64(video.Timescale)
		} else {
			last := videoSlice[len(videoSlice)-1]
			endSecs = float64(last.DecodeTimestamp+uint64(last.Duration)) / float64(video.Timescale)
		}

		var audioSlice []mp4meta.ResolvedSample
		if audio != nil {
			audioSlice, audioCursor = selectAudioRange(audio.Samples, audioCursor, startSecs, endSecs, audio.Timescale)
		}

		seg := buildSegment(i, startSecs, endSecs-startSecs, &video, videoSlice, audio, audioSlice)
		segments = append(segments, seg)
	}

	return segments, nil
}

func syncIndices(samples []mp4meta.ResolvedSample) []int {
	out := make([]int, 0, len(samples)/30+1)
	for i, s := range samples {
		if s.IsSync {
			out = append(out, i)
		}
	}
	return out
}

// segmentBoundaries walks keyframes left to right, picking the next
// segment start as the keyframe whose DTS is closest to the current
// start plus targetDurationSecs, biasing toward the earlier keyframe on
// a tie. The walk always advances, so total work is linear in the
// number of keyframes.
func segmentBoundaries(samples []mp4meta.ResolvedSample, keyframes []int, targetDurationSecs float64, timescale uint32) []int {
	targetTicks := uint64(targetDurationSecs * float64(timescale))

	boundaries := []int{samples[keyframes[0]].Index}
	ki := 0
	for ki < len(keyframes)-1 {
		startDTS := samples[keyframes[ki]].DecodeTimestamp
		targetDTS := startDTS + targetTicks

		j := ki + 1
		for j+1 < len(keyframes) && samples[keyframes[j]].DecodeTimestamp < targetDTS {
			j++
		}

		best := j
		if j > ki+1 {
			distJ := absDiffU64(samples[keyframes[j]].DecodeTimestamp, targetDTS)
			distPrev := absDiffU64(samples[keyframes[j-1]].DecodeTimestamp, targetDTS)
			if distPrev <= distJ {
				best = j - 1
			}
		}

		boundaries = append(boundaries, samples[keyframes[best]].Index)
		ki = best
	}
	return boundaries
}

func absDiffU64(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}

// selectAudioRange returns the audio samples with DTS in [startSecs,
// endSecs) on the audio timeline, scanning forward from cursor (audio
// samples are DTS-ordered, so the cursor never needs to rewind across
// segments). Returns the slice and the cursor position to resume from.
//
// Ticks are truncated, not rounded, to match segment_map/builder.rs's
// `as u64` cast in the original implementation this planner is grounded
// on.
func selectAudioRange(audioSamples []mp4meta.ResolvedSample, cursor int, startSecs, endSecs float64, audioTimescale uint32) ([]mp4meta.ResolvedSample, int) {
	startTick := uint64(startSecs * float64(audioTimescale))
	endTick := uint64(endSecs * float64(audioTimescale))

	for cursor < len(audioSamples) && audioSamples[cursor].DecodeTimestamp < startTick {
		cursor++
	}
	from := cursor
	to := cursor
	for to < len(audioSamples) && audioSamples[to].DecodeTimestamp < endTick {
		to++
	}
	return audioSamples[from:to], to
}

func buildSegment(index int, startSecs, durationSecs float64, video *mp4meta.TrackInfo, videoSamples []mp4meta.ResolvedSample, audio *mp4meta.TrackInfo, audioSamples []mp4meta.ResolvedSample) PrecomputedSegment {
	videoRanges, videoSize := buildRanges(videoSamples)

	var fragments []fmp4write.TrackFragment
	fragments = append(fragments, fmp4write.TrackFragment{
		TrackID:        video.TrackID,
		IsVideo:        true,
		BaseDecodeTime: videoSamples[0].DecodeTimestamp,
		Entries:        videoTrunEntries(videoSamples),
		DataSize:       videoSize,
	})

	allRanges := videoRanges
	dataLength := videoSize

	if audio != nil && len(audioSamples) > 0 {
		audioRanges, audioSize := buildRanges(audioSamples)
		fragments = append(fragments, fmp4write.TrackFragment{
			TrackID:        audio.TrackID,
			IsVideo:        false,
			BaseDecodeTime: audioSamples[0].DecodeTimestamp,
			Entries:        audioTrunEntries(audioSamples),
			DataSize:       audioSize,
		})
		allRanges = append(allRanges, audioRanges...)
		dataLength += audioSize
	}

	moofBytes, mdatHeaderBytes := fmp4write.BuildMoof(uint32(index+1), fragments)

	return PrecomputedSegment{
		Index:           index,
		StartTimeSecs:   startSecs,
		DurationSecs:    durationSecs,
		MoofBytes:       moofBytes,
		MdatHeaderBytes: mdatHeaderBytes,
		DataRanges:      allRanges,
		DataLength:      dataLength,
	}
}

func videoTrunEntries(samples []mp4meta.ResolvedSample) []bmff.TrunEntry {
	out := make([]bmff.TrunEntry, len(samples))
	for i, s := range samples {
		flags := uint32(bmff.SampleFlagsNonSync)
		if s.IsSync {
			flags = bmff.SampleFlagsSync
		}
		out[i] = bmff.TrunEntry{
			Size:                  s.Size,
			Flags:                 flags,
			CompositionTimeOffset: s.CompositionOffset,
		}
	}
	return out
}

func audioTrunEntries(samples []mp4meta.ResolvedSample) []bmff.TrunEntry {
	out := make([]bmff.TrunEntry, len(samples))
	for i, s := range samples {
		out[i] = bmff.TrunEntry{Duration: s.Duration, Size: s.Size}
	}
	return out
}

// buildRanges converts a sample slice's file positions into a sorted,
// merged DataRange list plus the total byte length they cover.
func buildRanges(samples []mp4meta.ResolvedSample) ([]DataRange, int64) {
	if len(samples) == 0 {
		return nil, 0
	}
	raw := make([]DataRange, len(samples))
	var total int64
	for i, s := range samples {
		raw[i] = DataRange{FileOffset: s.FileOffset, Length: int64(s.Size)}
		total += int64(s.Size)
	}
	sort.Slice(raw, func(a, b int) bool { return raw[a].FileOffset < raw[b].FileOffset })

	merged := raw[:1]
	for _, r := range raw[1:] {
		last := &merged[len(merged)-1]
		if r.FileOffset <= last.FileOffset+last.Length {
			if end := r.FileOffset + r.Length; end > last.FileOffset+last.Length {
				last.Length = end - last.FileOffset
			}
			continue
		}
		merged = append(merged, r)
	}
	return merged, total
}
