package mp4meta_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediacore/hlsengine/internal/engineerr"
	"github.com/mediacore/hlsengine/internal/mp4meta"
	"github.com/mediacore/hlsengine/internal/mp4test"
)

func fourKeyframeFixture() []byte {
	video := mp4test.Track{
		TrackID:   1,
		Timescale: 6,
		Width:     640,
		Height:    360,
		Samples: []mp4test.Sample{
			{Size: 500, Duration: 1, Sync: true},
			{Size: 100, Duration: 1, Sync: false},
			{Size: 100, Duration: 1, Sync: false},
			{Size: 100, Duration: 1, Sync: false},
			{Size: 100, Duration: 1, Sync: false},
			{Size: 100, Duration: 1, Sync: false},
			{Size: 500, Duration: 1, Sync: true},
			{Size: 100, Duration: 1, Sync: false},
			{Size: 100, Duration: 1, Sync: false},
			{Size: 100, Duration: 1, Sync: false},
			{Size: 100, Duration: 1, Sync: false},
			{Size: 100, Duration: 1, Sync: false},
			{Size: 500, Duration: 1, Sync: true},
			{Size: 100, Duration: 1, Sync: false},
			{Size: 100, Duration: 1, Sync: false},
			{Size: 100, Duration: 1, Sync: false},
			{Size: 100, Duration: 1, Sync: false},
			{Size: 100, Duration: 1, Sync: false},
			{Size: 500, Duration: 1, Sync: true},
			{Size: 100, Duration: 1, Sync: false},
			{Size: 100, Duration: 1, Sync: false},
			{Size: 100, Duration: 1, Sync: false},
			{Size: 100, Duration: 1, Sync: false},
			{Size: 100, Duration: 1, Sync: false},
		},
	}
	audio := mp4test.Track{
		TrackID:    2,
		Timescale:  6,
		SampleRate: 48000,
		Channels:   2,
		Samples: []mp4test.Sample{
			{Size: 80, Duration: 6, Sync: true},
			{Size: 80, Duration: 6, Sync: true},
			{Size: 80, Duration: 6, Sync: true},
			{Size: 80, Duration: 6, Sync: true},
		},
	}
	return mp4test.Build(video, &audio)
}

func TestParse_ResolvesVideoAndAudioTracks(t *testing.T) {
	meta, err := mp4meta.Parse(fourKeyframeFixture())
	require.NoError(t, err)

	assert.Equal(t, uint32(640), meta.VideoTrack.Width)
	assert.Equal(t, uint32(360), meta.VideoTrack.Height)
	assert.Len(t, meta.VideoTrack.Samples, 24)
	assert.InDelta(t, 4.0, meta.DurationSecs, 0.001)

	require.NotNil(t, meta.AudioTrack)
	assert.Equal(t, uint32(48000), meta.AudioTrack.SampleRate)
	assert.Equal(t, uint16(2), meta.AudioTrack.Channels)
	assert.Len(t, meta.AudioTrack.Samples, 4)
}

func TestParse_SyncFlagsAndOffsetsAreResolved(t *testing.T) {
	meta, err := mp4meta.Parse(fourKeyframeFixture())
	require.NoError(t, err)

	samples := meta.VideoTrack.Samples
	for i, s := range samples {
		assert.Equal(t, i, s.Index)
		assert.Equal(t, i%6 == 0, s.IsSync, "sample %d sync flag", i)
	}

	// Samples are laid out contiguously in file order, sizes matching the
	// fixture's declared sizes.
	for i := 1; i < len(samples); i++ {
		assert.Equal(t, samples[i-1].FileOffset+int64(samples[i-1].Size), samples[i].FileOffset)
	}
}

func TestParse_IsDeterministic(t *testing.T) {
	buf := fourKeyframeFixture()
	first, err := mp4meta.Parse(buf)
	require.NoError(t, err)
	second, err := mp4meta.Parse(buf)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestParse_NoMoov(t *testing.T) {
	_, err := mp4meta.Parse([]byte{0, 0, 0, 8, 'f', 't', 'y', 'p'})
	assert.ErrorIs(t, err, engineerr.ErrNoMoov)
}

func TestParse_EmptyVideoTrack(t *testing.T) {
	audio := mp4test.Track{
		TrackID:    1,
		Timescale:  6,
		SampleRate: 48000,
		Channels:   2,
		Samples:    []mp4test.Sample{{Size: 80, Duration: 6, Sync: true}},
	}
	buf := mp4test.Build(mp4test.Track{
		TrackID:   2,
		Timescale: 6,
		Width:     640,
		Height:    360,
		Samples:   nil,
	}, &audio)

	_, err := mp4meta.Parse(buf)
	assert.Error(t, err)
}
