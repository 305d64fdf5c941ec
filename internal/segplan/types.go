// Package segplan partitions a parsed MP4's video samples into
// keyframe-aligned segments targeting a fixed duration, matches audio
// samples to each segment's time range, and precomputes every segment's
// moof and mdat-header bytes so the serving layer never re-muxes
// anything at request time.
package segplan

// DataRange is a contiguous run of bytes in the source file to be
// transmitted verbatim as part of a segment's sample data.
type DataRange struct {
	FileOffset int64
	Length     int64
}

// PrecomputedSegment is everything the serving layer needs to answer a
// segment_:n.m4s request: two small in-memory byte blobs followed by a
// list of byte ranges to copy straight from the source file.
type PrecomputedSegment struct {
	Index            int
	StartTimeSecs    float64
	DurationSecs     float64
	MoofBytes        []byte
	MdatHeaderBytes  []byte
	DataRanges       []DataRange
	DataLength       int64
}
