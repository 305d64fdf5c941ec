// Package engineerr defines the sentinel errors shared across the box
// parser, moov parser, segment planner and cache, plus the HTTP status
// each maps to. Centralizing the mapping keeps status-code decisions out
// of individual handlers.
package engineerr

import (
	"errors"
	"net/http"
)

// Sentinel errors returned by the parsing and planning pipeline. Wrap
// with fmt.Errorf("...: %w", ErrX) to attach detail while preserving
// errors.Is matching.
var (
	ErrNotFound            = errors.New("media file not found")
	ErrInvalidMp4          = errors.New("invalid mp4: malformed box structure")
	ErrNoMoov              = errors.New("no moov box present")
	ErrMoovAfterMdat       = errors.New("moov box follows mdat: not faststart")
	ErrNoVideoTrack        = errors.New("no video track present")
	ErrNoKeyframes         = errors.New("video track has no sync samples")
	ErrEmptyVideoTrack     = errors.New("video track has no samples")
	ErrUnsupportedCodec    = errors.New("unsupported container or codec")
	ErrSegmentOutOfRange   = errors.New("segment index out of range")
	ErrRangeNotSatisfiable = errors.New("requested byte range not satisfiable")
	ErrCacheBusy           = errors.New("prepared media build failed transiently")
)

// HTTPStatus maps a (possibly wrapped) engine error to the status code
// the serving layer should respond with, defaulting to 500 for anything
// it doesn't recognize (treated as an I/O or internal failure).
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrSegmentOutOfRange):
		return http.StatusNotFound
	case errors.Is(err, ErrRangeNotSatisfiable):
		return http.StatusRequestedRangeNotSatisfiable
	case errors.Is(err, ErrInvalidMp4),
		errors.Is(err, ErrNoMoov),
		errors.Is(err, ErrMoovAfterMdat),
		errors.Is(err, ErrNoVideoTrack),
		errors.Is(err, ErrNoKeyframes),
		errors.Is(err, ErrEmptyVideoTrack),
		errors.Is(err, ErrUnsupportedCodec):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrCacheBusy):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
