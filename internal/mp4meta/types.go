// Package mp4meta parses the moov atom of a faststart MP4 into a flat,
// immutable description of its tracks and samples: resolving the
// sample-table boxes into a per-sample vector of (file offset, size,
// timestamps, sync flag) and extracting the raw avcC/esds codec
// configuration each track's stsd entry carries.
package mp4meta

// ResolvedSample is one decodable unit (video frame or AAC frame)
// located precisely within the source file.
type ResolvedSample struct {
	Index              int
	FileOffset         int64
	Size               uint32
	DecodeTimestamp    uint64 // track timescale ticks
	Duration           uint32 // track timescale ticks
	CompositionOffset  int32  // signed ticks, PTS = DTS + CompositionOffset
	IsSync             bool
}

// TrackInfo describes one decoded track plus its resolved sample vector.
type TrackInfo struct {
	TrackID           uint32
	HandlerType       string // "video" or "audio"
	Timescale         uint32
	DurationTicks     uint64
	Width, Height     uint32 // video only
	SampleRate        uint32 // audio only, Hz
	Channels          uint16 // audio only
	CodecPrivateBytes []byte // raw avcC or esds contents, excluding box header
	Samples           []ResolvedSample
}

// Mp4Metadata is the full result of parsing one source file's moov atom.
type Mp4Metadata struct {
	VideoTrack  TrackInfo
	AudioTrack  *TrackInfo // nil if the file has no audio track
	DurationSecs float64
}
