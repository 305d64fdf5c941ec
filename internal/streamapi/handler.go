// Package streamapi implements the HTTP routes that serve HLS playlists,
// init segments, media segments and direct byte-range downloads for a
// catalogued media file, backed by mediacache.Cache and segplan-derived
// PrecomputedSegments.
package streamapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mediacore/hlsengine/internal/catalog"
	"github.com/mediacore/hlsengine/internal/engineerr"
	"github.com/mediacore/hlsengine/internal/fmp4write"
	"github.com/mediacore/hlsengine/internal/hlsplaylist"
	"github.com/mediacore/hlsengine/internal/mediacache"
	"github.com/mediacore/hlsengine/internal/mp4meta"
	"github.com/mediacore/hlsengine/internal/segplan"
)

// movieTimescale is the init segment's mvhd timescale; track timescales
// are carried unchanged from the source file's mdhd boxes.
const movieTimescale = 1000

// Handler serves the four HLS/direct-stream routes under
// /api/stream/:mfid/*, preparing (and caching) each file's segmentation
// plan on first access.
type Handler struct {
	Catalog  catalog.MediaResolver
	Cache    *mediacache.Cache
	TargetSegmentSeconds float64
	Logger   *slog.Logger
}

// Mount registers the four routes onto r, rooted at "/api/stream".
func (h *Handler) Mount(r chi.Router) {
	r.Route("/api/stream/{mfid}", func(r chi.Router) {
		r.Get("/index.m3u8", h.servePlaylist)
		r.Get("/init.mp4", h.serveInit)
		r.Get("/segment_{n}.m4s", h.serveSegment)
		r.Get("/direct", h.serveDirect)
	})
}

func (h *Handler) prepare(ctx context.Context, mfid string) (*mediacache.PreparedMedia, error) {
	path, container, videoCodec, err := h.Catalog.Resolve(ctx, catalog.MediaFileID(mfid))
	if err != nil {
		return nil, err
	}
	_ = container
	_ = videoCodec

	return h.Cache.GetOrInsert(ctx, mfid, func(ctx context.Context) (*mediacache.PreparedMedia, error) {
		return buildPreparedMedia(ctx, path, h.targetSeconds())
	})
}

func (h *Handler) targetSeconds() float64 {
	if h.TargetSegmentSeconds > 0 {
		return h.TargetSegmentSeconds
	}
	return segplan.DefaultTargetDurationSecs
}

// buildPreparedMedia parses path, plans its segments and builds its init
// segment. It checks ctx between each stage so a client that has already
// disconnected (or a build that has exceeded its request's deadline)
// aborts promptly instead of finishing pointless work; mediacache.Cache
// turns that ctx error into engineerr.ErrCacheBusy rather than caching
// it as a permanent parse failure.
func buildPreparedMedia(ctx context.Context, path string, targetSeconds float64) (*mediacache.PreparedMedia, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading source file: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	meta, err := mp4meta.Parse(buf)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	segments, err := segplan.Plan(meta, targetSeconds)
	if err != nil {
		return nil, err
	}

	init := fmp4write.BuildInitSegment(meta, movieTimescale)

	return &mediacache.PreparedMedia{
		FilePath:              path,
		Width:                 meta.VideoTrack.Width,
		Height:                meta.VideoTrack.Height,
		DurationSecs:          meta.DurationSecs,
		InitSegmentBytes:      init,
		VariantPlaylistText:   hlsplaylist.Build(segments),
		Segments:              segments,
		TargetDurationSeconds: hlsplaylist.TargetDurationSeconds(segments),
	}, nil
}

func (h *Handler) servePlaylist(w http.ResponseWriter, r *http.Request) {
	mfid := chi.URLParam(r, "mfid")
	media, err := h.prepare(r.Context(), mfid)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/vnd.apple.mpegurl")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(media.VariantPlaylistText))
}

func (h *Handler) serveInit(w http.ResponseWriter, r *http.Request) {
	mfid := chi.URLParam(r, "mfid")
	media, err := h.prepare(r.Context(), mfid)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Length", strconv.Itoa(len(media.InitSegmentBytes)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(media.InitSegmentBytes)
}

func (h *Handler) serveSegment(w http.ResponseWriter, r *http.Request) {
	mfid := chi.URLParam(r, "mfid")
	media, err := h.prepare(r.Context(), mfid)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	n, err := strconv.Atoi(chi.URLParam(r, "n"))
	if err != nil || n < 0 || n >= len(media.Segments) {
		h.writeError(w, r, engineerr.ErrSegmentOutOfRange)
		return
	}
	seg := media.Segments[n]

	contentLength := int64(len(seg.MoofBytes)) + int64(len(seg.MdatHeaderBytes)) + seg.DataLength
	w.Header().Set("Content-Type", "video/iso.segment")
	w.Header().Set("Content-Length", strconv.FormatInt(contentLength, 10))
	w.WriteHeader(http.StatusOK)

	if err := streamSegment(w, media.FilePath, seg); err != nil {
		h.Logger.ErrorContext(r.Context(), "segment stream failed",
			slog.String("mfid", mfid), slog.Int("segment", n), slog.String("error", err.Error()))
	}
}

// streamSegment writes moof || mdat_header || each data range's bytes, in
// order, reading the source file once per contiguous range.
func streamSegment(w http.ResponseWriter, filePath string, seg segplan.PrecomputedSegment) error {
	if _, err := w.Write(seg.MoofBytes); err != nil {
		return err
	}
	if _, err := w.Write(seg.MdatHeaderBytes); err != nil {
		return err
	}
	if len(seg.DataRanges) == 0 {
		return nil
	}

	f, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer f.Close()

	for _, rng := range seg.DataRanges {
		if _, err := io.CopyN(w, io.NewSectionReader(f, rng.FileOffset, rng.Length), rng.Length); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) serveDirect(w http.ResponseWriter, r *http.Request) {
	mfid := chi.URLParam(r, "mfid")
	path, _, _, err := h.Catalog.Resolve(r.Context(), catalog.MediaFileID(mfid))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	size := info.Size()

	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", "video/mp4")

	rangeHeader := r.Header.Get("Range")
	if rangeHeader == "" {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		_, _ = io.Copy(w, f)
		return
	}

	start, end, err := parseRange(rangeHeader, size)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	length := end - start + 1
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(http.StatusPartialContent)
	_, _ = io.CopyN(w, io.NewSectionReader(f, start, length), length)
}

// parseRange parses a single-range "bytes=A-B" header against a resource
// of the given size. A-only ("bytes=A-") means "to end of file".
func parseRange(header string, size int64) (start, end int64, err error) {
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return 0, 0, engineerr.ErrRangeNotSatisfiable
	}
	spec := strings.TrimPrefix(header, prefix)
	spec = strings.Split(spec, ",")[0]

	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return 0, 0, engineerr.ErrRangeNotSatisfiable
	}

	if parts[0] == "" {
		// suffix range: "bytes=-N" means the last N bytes.
		n, perr := strconv.ParseInt(parts[1], 10, 64)
		if perr != nil || n <= 0 {
			return 0, 0, engineerr.ErrRangeNotSatisfiable
		}
		if n > size {
			n = size
		}
		return size - n, size - 1, nil
	}

	start, err = strconv.ParseInt(parts[0], 10, 64)
	if err != nil || start < 0 || start >= size {
		return 0, 0, engineerr.ErrRangeNotSatisfiable
	}

	if parts[1] == "" {
		return start, size - 1, nil
	}

	end, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil || end < start {
		return 0, 0, engineerr.ErrRangeNotSatisfiable
	}
	if end >= size {
		end = size - 1
	}
	return start, end, nil
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := engineerr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.Logger.ErrorContext(r.Context(), "stream request failed", slog.String("error", err.Error()))
	}
	if errors.Is(err, os.ErrNotExist) {
		status = http.StatusNotFound
	}
	if errors.Is(err, engineerr.ErrCacheBusy) {
		w.Header().Set("Retry-After", "1")
	}
	http.Error(w, err.Error(), status)
}
