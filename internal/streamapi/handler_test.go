package streamapi

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mediacore/hlsengine/internal/engineerr"
)

func TestParseRange_FullyQualified(t *testing.T) {
	start, end, err := parseRange("bytes=0-1023", 10000)
	assert.NoError(t, err)
	assert.EqualValues(t, 0, start)
	assert.EqualValues(t, 1023, end)
}

func TestParseRange_SingleByte(t *testing.T) {
	start, end, err := parseRange("bytes=0-0", 10000)
	assert.NoError(t, err)
	assert.EqualValues(t, 0, start)
	assert.EqualValues(t, 0, end)
}

func TestParseRange_OpenEnded(t *testing.T) {
	start, end, err := parseRange("bytes=100-", 1000)
	assert.NoError(t, err)
	assert.EqualValues(t, 100, start)
	assert.EqualValues(t, 999, end)
}

func TestParseRange_SuffixRange(t *testing.T) {
	start, end, err := parseRange("bytes=-100", 1000)
	assert.NoError(t, err)
	assert.EqualValues(t, 900, start)
	assert.EqualValues(t, 999, end)
}

func TestParseRange_SuffixRangeLargerThanFile(t *testing.T) {
	start, end, err := parseRange("bytes=-10000", 1000)
	assert.NoError(t, err)
	assert.EqualValues(t, 0, start)
	assert.EqualValues(t, 999, end)
}

func TestParseRange_EndBeyondSizeClampsToLastByte(t *testing.T) {
	start, end, err := parseRange("bytes=0-99999", 1000)
	assert.NoError(t, err)
	assert.EqualValues(t, 0, start)
	assert.EqualValues(t, 999, end)
}

func TestParseRange_StartAtOrBeyondSizeIsUnsatisfiable(t *testing.T) {
	_, _, err := parseRange("bytes=1000-", 1000)
	assert.ErrorIs(t, err, engineerr.ErrRangeNotSatisfiable)
}

func TestParseRange_MalformedHeader(t *testing.T) {
	for _, header := range []string{"", "foo", "bytes=", "bytes=abc-def", "bytes=10-5"} {
		_, _, err := parseRange(header, 1000)
		assert.ErrorIsf(t, err, engineerr.ErrRangeNotSatisfiable, "header %q", header)
	}
}

func TestTargetSeconds_FallsBackToDefault(t *testing.T) {
	h := &Handler{}
	assert.Greater(t, h.targetSeconds(), 0.0)

	h2 := &Handler{TargetSegmentSeconds: 4.5}
	assert.Equal(t, 4.5, h2.targetSeconds())
}
