package fmp4write_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediacore/hlsengine/internal/bmff"
	"github.com/mediacore/hlsengine/internal/fmp4write"
	"github.com/mediacore/hlsengine/internal/mp4meta"
	"github.com/mediacore/hlsengine/internal/mp4test"
)

func parsedFixture(t *testing.T) *mp4meta.Mp4Metadata {
	t.Helper()
	video := mp4test.Track{
		TrackID: 1, Timescale: 6, Width: 640, Height: 360,
		Samples: []mp4test.Sample{
			{Size: 500, Duration: 1, Sync: true},
			{Size: 100, Duration: 1, Sync: false},
		},
	}
	audio := mp4test.Track{
		TrackID: 2, Timescale: 6, SampleRate: 48000, Channels: 2,
		Samples: []mp4test.Sample{{Size: 80, Duration: 2, Sync: true}},
	}
	meta, err := mp4meta.Parse(mp4test.Build(video, &audio))
	require.NoError(t, err)
	return meta
}

func TestBuildInitSegment_StartsWithFtyp(t *testing.T) {
	meta := parsedFixture(t)
	init := fmp4write.BuildInitSegment(meta, 1000)

	require.GreaterOrEqual(t, len(init), 8)
	assert.Equal(t, "ftyp", string(init[4:8]))
}

func TestBuildInitSegment_IsDeterministic(t *testing.T) {
	meta := parsedFixture(t)
	first := fmp4write.BuildInitSegment(meta, 1000)
	second := fmp4write.BuildInitSegment(meta, 1000)
	assert.Equal(t, first, second)
}

func TestBuildMoof_PatchesDataOffsetsSequentially(t *testing.T) {
	fragments := []fmp4write.TrackFragment{
		{
			TrackID: 1, IsVideo: true, BaseDecodeTime: 0,
			Entries:  []bmff.TrunEntry{{Size: 500, Flags: bmff.SampleFlagsSync}, {Size: 100, Flags: bmff.SampleFlagsNonSync}},
			DataSize: 600,
		},
		{
			TrackID: 2, IsVideo: false, BaseDecodeTime: 0,
			Entries:  []bmff.TrunEntry{{Size: 80, Duration: 2}},
			DataSize: 80,
		},
	}

	moof, mdatHeader := fmp4write.BuildMoof(1, fragments)

	require.GreaterOrEqual(t, len(moof), 8)
	assert.Equal(t, "moof", string(moof[4:8]))
	assert.Equal(t, "mdat", string(mdatHeader[4:8]))

	var total int64
	for _, f := range fragments {
		total += f.DataSize
	}
	require.Len(t, mdatHeader, 8)
	encodedSize := uint32(mdatHeader[0])<<24 | uint32(mdatHeader[1])<<16 | uint32(mdatHeader[2])<<8 | uint32(mdatHeader[3])
	assert.Equal(t, uint32(total+8), encodedSize)
}
