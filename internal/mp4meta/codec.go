package mp4meta

import (
	"fmt"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"

	"github.com/mediacore/hlsengine/internal/bmff"
	"github.com/mediacore/hlsengine/internal/engineerr"
)

// videoSampleEntry describes the first avc1 sample entry found in an
// stsd box: its fixed geometry header plus the raw avcC payload.
type videoSampleEntry struct {
	width, height uint32
	avcC          []byte
}

// audioSampleEntry describes the first mp4a sample entry found in an
// stsd box: its fixed rate/channel header plus the raw esds payload.
type audioSampleEntry struct {
	sampleRate uint32
	channels   uint16
	esds       []byte
}

// parseVideoStsd scans an stsd box for its first avc1 entry and
// extracts its avcC codec configuration, cross-validated against the
// embedded SPS.
func parseVideoStsd(r *bmff.Reader) (*videoSampleEntry, error) {
	r.Enter()
	defer r.Exit()
	r.Skip(4) // stsd data starts at entry_count; version/flags already consumed

	for r.Next() {
		if r.Type() != bmff.TypeAvc1 {
			continue
		}
		data := r.Data()
		if len(data) < bmff.VisualSampleEntryHeaderSize {
			return nil, fmt.Errorf("%w: avc1 entry too short", engineerr.ErrInvalidMp4)
		}
		width := uint32(be16(data[24:26]))
		height := uint32(be16(data[26:28]))

		inner := bmff.NewReader(data[bmff.VisualSampleEntryHeaderSize:])
		var avcC []byte
		for inner.Next() {
			if inner.Type() == bmff.TypeAvcC {
				avcC = append([]byte(nil), inner.Data()...)
				break
			}
		}
		if avcC == nil {
			return nil, fmt.Errorf("%w: avc1 entry has no avcC", engineerr.ErrUnsupportedCodec)
		}
		if err := validateAvcC(avcC); err != nil {
			return nil, err
		}
		return &videoSampleEntry{width: width, height: height, avcC: avcC}, nil
	}
	return nil, fmt.Errorf("%w: no avc1 sample entry", engineerr.ErrUnsupportedCodec)
}

// parseAudioStsd scans an stsd box for its first mp4a entry and
// extracts its esds codec configuration, cross-validated against the
// embedded AudioSpecificConfig.
func parseAudioStsd(r *bmff.Reader) (*audioSampleEntry, error) {
	r.Enter()
	defer r.Exit()
	r.Skip(4) // stsd data starts at entry_count; version/flags already consumed

	for r.Next() {
		if r.Type() != bmff.TypeMp4a {
			continue
		}
		data := r.Data()
		if len(data) < bmff.AudioSampleEntryHeaderSize {
			return nil, fmt.Errorf("%w: mp4a entry too short", engineerr.ErrInvalidMp4)
		}
		sampleRate, channels := bmff.ReadAudioSampleEntryFixed(data)

		inner := bmff.NewReader(data[bmff.AudioSampleEntryHeaderSize:])
		var esds []byte
		for inner.Next() {
			if inner.Type() == bmff.TypeEsds {
				esds = append([]byte(nil), inner.Data()...)
				break
			}
		}
		if esds == nil {
			return nil, fmt.Errorf("%w: mp4a entry has no esds", engineerr.ErrUnsupportedCodec)
		}
		asc, err := extractAudioSpecificConfig(esds)
		if err != nil {
			return nil, err
		}
		var cfg mpeg4audio.AudioSpecificConfig
		if err := cfg.Unmarshal(asc); err != nil {
			return nil, fmt.Errorf("%w: AudioSpecificConfig: %v", engineerr.ErrUnsupportedCodec, err)
		}
		return &audioSampleEntry{sampleRate: sampleRate, channels: channels, esds: esds}, nil
	}
	return nil, fmt.Errorf("%w: no mp4a sample entry", engineerr.ErrUnsupportedCodec)
}

// validateAvcC parses the avcC record's first SPS with mediacommon's
// h264 decoder, rejecting containers whose codec config doesn't
// actually describe valid H.264.
func validateAvcC(avcC []byte) error {
	if len(avcC) < 7 {
		return fmt.Errorf("%w: avcC record too short", engineerr.ErrInvalidMp4)
	}
	numSPS := int(avcC[5] & 0x1f)
	pos := 6
	for i := 0; i < numSPS; i++ {
		if pos+2 > len(avcC) {
			return fmt.Errorf("%w: avcC SPS length truncated", engineerr.ErrInvalidMp4)
		}
		spsLen := int(be16(avcC[pos : pos+2]))
		pos += 2
		if pos+spsLen > len(avcC) {
			return fmt.Errorf("%w: avcC SPS data truncated", engineerr.ErrInvalidMp4)
		}
		if i == 0 {
			var sps h264.SPS
			if err := sps.Unmarshal(avcC[pos : pos+spsLen]); err != nil {
				return fmt.Errorf("%w: SPS: %v", engineerr.ErrUnsupportedCodec, err)
			}
		}
		pos += spsLen
	}
	return nil
}

// extractAudioSpecificConfig walks an esds box's MPEG-4 descriptor tree
// to the DecoderSpecificInfo payload carrying the raw AudioSpecificConfig.
func extractAudioSpecificConfig(esds []byte) ([]byte, error) {
	// esds full-box header (version+flags) already stripped by Reader.Data.
	pos := 0
	readDescriptor := func() (tag byte, payload []byte, ok bool) {
		if pos >= len(esds) {
			return 0, nil, false
		}
		tag = esds[pos]
		pos++
		var length int
		for i := 0; i < 4; i++ {
			if pos >= len(esds) {
				return 0, nil, false
			}
			b := esds[pos]
			pos++
			length = (length << 7) | int(b&0x7f)
			if b&0x80 == 0 {
				break
			}
		}
		if pos+length > len(esds) {
			return 0, nil, false
		}
		payload = esds[pos : pos+length]
		return tag, payload, true
	}

	const esDescrTag, decoderConfigDescrTag, decSpecificInfoTag = 0x03, 0x04, 0x05

	tag, payload, ok := readDescriptor()
	if !ok || tag != esDescrTag || len(payload) < 3 {
		return nil, fmt.Errorf("%w: esds missing ES_Descriptor", engineerr.ErrInvalidMp4)
	}
	// ES_Descriptor: ES_ID(2) + flags(1), then optional fields gated by the
	// top 3 flag bits (streamDependence, URL, OCRstream).
	esFlags := payload[2]
	off := 3
	if esFlags&0x80 != 0 { // streamDependenceFlag
		off += 2
	}
	if esFlags&0x40 != 0 { // URL_Flag
		if off >= len(payload) {
			return nil, fmt.Errorf("%w: ES_Descriptor URL length truncated", engineerr.ErrInvalidMp4)
		}
		off += 1 + int(payload[off])
	}
	if esFlags&0x20 != 0 { // OCRstreamFlag
		off += 2
	}
	if off > len(payload) {
		return nil, fmt.Errorf("%w: ES_Descriptor truncated", engineerr.ErrInvalidMp4)
	}
	pos = 0
	esds = payload[off:]
	tag, payload, ok = readDescriptor()
	if !ok || tag != decoderConfigDescrTag {
		return nil, fmt.Errorf("%w: esds missing DecoderConfigDescriptor", engineerr.ErrInvalidMp4)
	}
	// DecoderConfigDescriptor: objectTypeIndication(1) + 4 flag/buffer bytes(4) + maxBitrate(4) + avgBitrate(4)
	if len(payload) < 13 {
		return nil, fmt.Errorf("%w: DecoderConfigDescriptor too short", engineerr.ErrInvalidMp4)
	}
	pos = 0
	esds = payload[13:]
	tag, payload, ok = readDescriptor()
	if !ok || tag != decSpecificInfoTag {
		return nil, fmt.Errorf("%w: esds missing DecoderSpecificInfo", engineerr.ErrInvalidMp4)
	}
	return payload, nil
}

func be16(b []byte) uint16 { return uint16(b[0])<<8 | uint16(b[1]) }
