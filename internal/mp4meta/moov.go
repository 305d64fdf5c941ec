package mp4meta

import (
	"fmt"

	"github.com/mediacore/hlsengine/internal/bmff"
	"github.com/mediacore/hlsengine/internal/engineerr"
)

// Parse walks the top level of a faststart MP4 buffer, locates its
// single moov box, and resolves both tracks into an Mp4Metadata. buf
// must hold the entire file contents (or at minimum everything up to
// and including moov; sample data itself is referenced by offset, not
// copied).
func Parse(buf []byte) (*Mp4Metadata, error) {
	r := bmff.NewReader(buf)

	var moovOffset = -1
	var moovData []byte
	sawMdatBeforeMoov := false

	for r.Next() {
		switch r.Type() {
		case bmff.TypeMoov:
			if moovOffset >= 0 {
				return nil, fmt.Errorf("%w: multiple moov boxes", engineerr.ErrInvalidMp4)
			}
			moovOffset = r.Offset()
			moovData = r.RawBox()
		case bmff.TypeMdat:
			if moovOffset < 0 {
				sawMdatBeforeMoov = true
			}
		}
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", engineerr.ErrInvalidMp4, err)
	}
	if moovOffset < 0 {
		return nil, engineerr.ErrNoMoov
	}
	if sawMdatBeforeMoov {
		return nil, engineerr.ErrMoovAfterMdat
	}

	moov := bmff.NewReader(moovData)
	moov.Next() // position on the moov box itself

	var durationSecs float64
	var videoTrack *TrackInfo
	var audioTrack *TrackInfo

	moov.Enter()
	for moov.Next() {
		switch moov.Type() {
		case bmff.TypeMvhd:
			timescale, duration := moov.ReadMvhd()
			if timescale > 0 {
				durationSecs = float64(duration) / float64(timescale)
			}
		case bmff.TypeTrak:
			info, handler, err := parseTrak(&moov)
			if err != nil {
				return nil, err
			}
			switch handler {
			case "vide":
				if videoTrack == nil {
					videoTrack = info
				}
			case "soun":
				if audioTrack == nil {
					audioTrack = info
				}
			}
		}
	}
	moov.Exit()
	if err := moov.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", engineerr.ErrInvalidMp4, err)
	}

	if videoTrack == nil {
		return nil, engineerr.ErrNoVideoTrack
	}
	if len(videoTrack.Samples) == 0 {
		return nil, engineerr.ErrEmptyVideoTrack
	}
	if !hasSyncSample(videoTrack.Samples) {
		return nil, engineerr.ErrNoKeyframes
	}

	return &Mp4Metadata{
		VideoTrack:   *videoTrack,
		AudioTrack:   audioTrack,
		DurationSecs: durationSecs,
	}, nil
}

// parseTrak descends into a single trak box and resolves it into a
// TrackInfo plus its raw handler type ("vide", "soun" or anything else,
// which the caller ignores).
func parseTrak(r *bmff.Reader) (*TrackInfo, string, error) {
	var info TrackInfo
	var handler string

	r.Enter()
	for r.Next() {
		switch r.Type() {
		case bmff.TypeTkhd:
			trackID, width, height := r.ReadTkhd()
			info.TrackID = trackID
			info.Width, info.Height = width, height
		case bmff.TypeMdia:
			if err := parseMdia(r, &info, &handler); err != nil {
				r.Exit()
				return nil, "", err
			}
		}
	}
	err := r.Err()
	r.Exit()
	if err != nil {
		return nil, "", fmt.Errorf("%w: trak: %v", engineerr.ErrInvalidMp4, err)
	}
	switch handler {
	case "vide":
		info.HandlerType = "video"
	case "soun":
		info.HandlerType = "audio"
	default:
		info.HandlerType = handler
	}
	return &info, handler, nil
}

func parseMdia(r *bmff.Reader, info *TrackInfo, handler *string) error {
	r.Enter()
	defer r.Exit()

	for r.Next() {
		switch r.Type() {
		case bmff.TypeMdhd:
			timescale, duration := r.ReadMdhd()
			info.Timescale = timescale
			info.DurationTicks = duration
		case bmff.TypeHdlr:
			*handler = r.ReadHdlr().String()
		case bmff.TypeMinf:
			if err := parseMinf(r, info, *handler); err != nil {
				return err
			}
		}
	}
	return r.Err()
}

func parseMinf(r *bmff.Reader, info *TrackInfo, handler string) error {
	r.Enter()
	defer r.Exit()

	for r.Next() {
		if r.Type() != bmff.TypeStbl {
			continue
		}
		if err := parseStbl(r, info, handler); err != nil {
			return err
		}
	}
	return r.Err()
}

func parseStbl(r *bmff.Reader, info *TrackInfo, handler string) error {
	// Peek the stbl's stsd first to get codec config, then resolve samples.
	// stbl's children are read twice (two passes over the same Reader
	// position range) since Next() is a single forward cursor: capture
	// the raw stbl bytes and spin up independent readers per pass.
	stblData := r.RawBox()
	boxReader := bmff.NewReader(stblData)
	boxReader.Next() // position on the stbl box itself

	stsdReader := bmff.NewReader(stblData)
	stsdReader.Next()
	stsdReader.Enter()
	var stsdData []byte
	for stsdReader.Next() {
		if stsdReader.Type() == bmff.TypeStsd {
			stsdData = stsdReader.RawBox()
			break
		}
	}
	stsdReader.Exit()
	if stsdData == nil {
		return fmt.Errorf("%w: stbl missing stsd", engineerr.ErrInvalidMp4)
	}
	stsdBoxReader := bmff.NewReader(stsdData)
	stsdBoxReader.Next()

	switch handler {
	case "vide":
		entry, err := parseVideoStsd(&stsdBoxReader)
		if err != nil {
			return err
		}
		info.CodecPrivateBytes = entry.avcC
		if info.Width == 0 {
			info.Width = entry.width
		}
		if info.Height == 0 {
			info.Height = entry.height
		}
	case "soun":
		entry, err := parseAudioStsd(&stsdBoxReader)
		if err != nil {
			return err
		}
		info.CodecPrivateBytes = entry.esds
		info.SampleRate = entry.sampleRate
		info.Channels = entry.channels
	}

	samples, err := resolveSamples(&boxReader)
	if err != nil {
		return fmt.Errorf("%w: %v", engineerr.ErrInvalidMp4, err)
	}
	info.Samples = samples
	return nil
}

func hasSyncSample(samples []ResolvedSample) bool {
	for _, s := range samples {
		if s.IsSync {
			return true
		}
	}
	return false
}
