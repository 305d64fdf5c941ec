// Package hlsplaylist renders the VOD media playlist text byte-exactly
// from a set of precomputed segments, with no templating engine: the
// format is small and fixed enough that a strings.Builder is clearer
// than a text/template.
package hlsplaylist

import (
	"fmt"
	"math"
	"strings"

	"github.com/mediacore/hlsengine/internal/segplan"
)

// Build renders the #EXTM3U VOD playlist referencing "init.mp4" and one
// "segment_<i>.m4s" entry per segment, in index order.
func Build(segments []segplan.PrecomputedSegment) string {
	var maxDuration float64
	for _, s := range segments {
		if s.DurationSecs > maxDuration {
			maxDuration = s.DurationSecs
		}
	}
	targetDuration := int(math.Ceil(maxDuration))

	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:7\n")
	fmt.Fprintf(&b, "#EXT-X-TARGETDURATION:%d\n", targetDuration)
	b.WriteString("#EXT-X-MEDIA-SEQUENCE:0\n")
	b.WriteString("#EXT-X-PLAYLIST-TYPE:VOD\n")
	b.WriteString("#EXT-X-MAP:URI=\"init.mp4\"\n")
	for _, s := range segments {
		fmt.Fprintf(&b, "#EXTINF:%.6f,\n", s.DurationSecs)
		fmt.Fprintf(&b, "segment_%d.m4s\n", s.Index)
	}
	b.WriteString("#EXT-X-ENDLIST\n")
	return b.String()
}

// TargetDurationSeconds returns ceil(max(segment durations)), the value
// Build emits as #EXT-X-TARGETDURATION, exposed separately so callers
// assembling PreparedMedia don't need to re-scan the playlist text.
func TargetDurationSeconds(segments []segplan.PrecomputedSegment) int {
	var maxDuration float64
	for _, s := range segments {
		if s.DurationSecs > maxDuration {
			maxDuration = s.DurationSecs
		}
	}
	return int(math.Ceil(maxDuration))
}
