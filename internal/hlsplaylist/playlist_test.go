package hlsplaylist_test

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mediacore/hlsengine/internal/hlsplaylist"
	"github.com/mediacore/hlsengine/internal/segplan"
)

func fourSegments() []segplan.PrecomputedSegment {
	return []segplan.PrecomputedSegment{
		{Index: 0, DurationSecs: 5.8},
		{Index: 1, DurationSecs: 6.0},
		{Index: 2, DurationSecs: 6.0},
		{Index: 3, DurationSecs: 4.2},
	}
}

func TestBuild_ContainsHeaderAndEndlist(t *testing.T) {
	text := hlsplaylist.Build(fourSegments())
	assert.True(t, strings.HasPrefix(text, "#EXTM3U\n"))
	assert.True(t, strings.HasSuffix(text, "#EXT-X-ENDLIST\n"))
	assert.Contains(t, text, "#EXT-X-MAP:URI=\"init.mp4\"\n")
}

func TestBuild_ListsEverySegmentInOrder(t *testing.T) {
	text := hlsplaylist.Build(fourSegments())
	for i := 0; i < 4; i++ {
		assert.Contains(t, text, "segment_"+strconv.Itoa(i)+".m4s")
	}
	// segment_0 must appear before segment_3.
	assert.Less(t, strings.Index(text, "segment_0.m4s"), strings.Index(text, "segment_3.m4s"))
}

func TestTargetDurationSeconds_IsCeilOfMax(t *testing.T) {
	assert.Equal(t, 6, hlsplaylist.TargetDurationSeconds(fourSegments()))
}

func TestBuild_EmptySegmentList(t *testing.T) {
	text := hlsplaylist.Build(nil)
	assert.Contains(t, text, "#EXT-X-TARGETDURATION:0\n")
	assert.True(t, strings.HasSuffix(text, "#EXT-X-ENDLIST\n"))
}

