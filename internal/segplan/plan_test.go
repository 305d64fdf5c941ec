package segplan_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediacore/hlsengine/internal/mp4meta"
	"github.com/mediacore/hlsengine/internal/mp4test"
	"github.com/mediacore/hlsengine/internal/segplan"
)

// fourSegmentFixture builds a 4-second, 6fps-equivalent clip (timescale 6)
// with a keyframe every 6 samples (every second) and one AAC sample per
// second, so a target duration of 1 second yields exactly 4 segments.
func fourSegmentFixture(t *testing.T) *mp4meta.Mp4Metadata {
	t.Helper()

	var videoSamples []mp4test.Sample
	for sec := 0; sec < 4; sec++ {
		for frame := 0; frame < 6; frame++ {
			videoSamples = append(videoSamples, mp4test.Sample{
				Size:     uint32(100 + frame),
				Duration: 1,
				Sync:     frame == 0,
			})
		}
	}
	video := mp4test.Track{TrackID: 1, Timescale: 6, Width: 640, Height: 360, Samples: videoSamples}

	audio := mp4test.Track{
		TrackID: 2, Timescale: 6, SampleRate: 48000, Channels: 2,
		Samples: []mp4test.Sample{
			{Size: 80, Duration: 6, Sync: true},
			{Size: 80, Duration: 6, Sync: true},
			{Size: 80, Duration: 6, Sync: true},
			{Size: 80, Duration: 6, Sync: true},
		},
	}

	meta, err := mp4meta.Parse(mp4test.Build(video, &audio))
	require.NoError(t, err)
	return meta
}

func TestPlan_ProducesOneSegmentPerKeyframe(t *testing.T) {
	meta := fourSegmentFixture(t)

	segments, err := segplan.Plan(meta, 1.0)
	require.NoError(t, err)
	require.Len(t, segments, 4)

	for i, seg := range segments {
		assert.Equal(t, i, seg.Index)
		assert.InDelta(t, float64(i), seg.StartTimeSecs, 0.001)
		assert.InDelta(t, 1.0, seg.DurationSecs, 0.001)
	}
}

func TestPlan_EverySegmentStartsWithAKeyframe(t *testing.T) {
	meta := fourSegmentFixture(t)
	segments, err := segplan.Plan(meta, 1.0)
	require.NoError(t, err)

	for i, seg := range segments {
		if i == len(segments)-1 {
			continue
		}
		require.NotEmpty(t, seg.DataRanges)
	}
}

func TestPlan_DataLengthMatchesRangeSum(t *testing.T) {
	meta := fourSegmentFixture(t)
	segments, err := segplan.Plan(meta, 1.0)
	require.NoError(t, err)

	for _, seg := range segments {
		var sum int64
		for _, r := range seg.DataRanges {
			sum += r.Length
		}
		assert.Equal(t, seg.DataLength, sum)
	}
}

func TestPlan_DataRangesAreSortedAndMerged(t *testing.T) {
	meta := fourSegmentFixture(t)
	segments, err := segplan.Plan(meta, 1.0)
	require.NoError(t, err)

	for _, seg := range segments {
		for i := 1; i < len(seg.DataRanges); i++ {
			prev := seg.DataRanges[i-1]
			cur := seg.DataRanges[i]
			assert.Greater(t, cur.FileOffset, prev.FileOffset+prev.Length)
		}
	}
}

func TestPlan_SingleKeyframeProducesSingleSegment(t *testing.T) {
	video := mp4test.Track{
		TrackID: 1, Timescale: 6, Width: 640, Height: 360,
		Samples: []mp4test.Sample{
			{Size: 500, Duration: 1, Sync: true},
			{Size: 100, Duration: 1, Sync: false},
			{Size: 100, Duration: 1, Sync: false},
		},
	}
	meta, err := mp4meta.Parse(mp4test.Build(video, nil))
	require.NoError(t, err)

	segments, err := segplan.Plan(meta, 1.0)
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.InDelta(t, 3.0/6.0, segments[0].DurationSecs, 0.001)
}

func TestPlan_SegmentsStartWithMoofBox(t *testing.T) {
	meta := fourSegmentFixture(t)
	segments, err := segplan.Plan(meta, 1.0)
	require.NoError(t, err)

	for _, seg := range segments {
		require.GreaterOrEqual(t, len(seg.MoofBytes), 8)
		assert.Equal(t, "moof", string(seg.MoofBytes[4:8]))
	}
}

func TestPlan_OutOfRangeTargetStillProducesAllSamples(t *testing.T) {
	meta := fourSegmentFixture(t)
	segments, err := segplan.Plan(meta, 100.0)
	require.NoError(t, err)
	// From keyframe 0 the keyframe closest to 100 s is the last one (3 s),
	// so it still starts a second segment.
	require.Len(t, segments, 2)

	var total int
	for _, seg := range segments {
		for _, r := range seg.DataRanges {
			total += int(r.Length)
		}
	}
	// 4 x (100+101+...+105) video bytes plus 4 x 80 audio bytes.
	assert.Equal(t, 4*615+4*80, total)
}
