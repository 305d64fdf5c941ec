// Package catalog is a minimal stand-in for the out-of-scope media
// catalog: a GORM-backed directory mapping a media file id to the path
// and codec identifiers the engine needs to decide whether it can serve
// the file at all.
package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"

	"github.com/mediacore/hlsengine/internal/engineerr"
	"github.com/mediacore/hlsengine/internal/mediacache"
)

// MediaFileID is a ULID-encoded catalog identity.
type MediaFileID string

// MediaFileRecord is the GORM model backing Resolve/Register.
type MediaFileRecord struct {
	ID         string `gorm:"primaryKey"`
	Path       string
	Container  string
	VideoCodec string
	AudioCodec string
	SizeBytes  int64
	CreatedAt  time.Time
}

// MediaResolver is the interface the HTTP serving layer depends on, so
// a real catalog service can be substituted for Catalog without
// touching component I.
type MediaResolver interface {
	Resolve(ctx context.Context, id MediaFileID) (path, container, videoCodec string, err error)
}

// Catalog is the default MediaResolver, backed by a SQL database
// through GORM (sqlite by default, mysql/postgres selectable).
type Catalog struct {
	db    *gorm.DB
	cache *mediacache.Cache
}

// New wraps db as a Catalog. cache is optional; when non-nil,
// Invalidate also drops the corresponding PreparedMedia entry.
func New(db *gorm.DB, cache *mediacache.Cache) *Catalog {
	return &Catalog{db: db, cache: cache}
}

// Migrate creates the catalog table if it does not already exist.
func (c *Catalog) Migrate() error {
	return c.db.AutoMigrate(&MediaFileRecord{})
}

// Resolve looks up id and validates it is a container/codec combination
// this engine can serve; anything else is UnsupportedCodec, per
// spec.md's catalog.resolve contract.
func (c *Catalog) Resolve(ctx context.Context, id MediaFileID) (path, container, videoCodec string, err error) {
	var rec MediaFileRecord
	if err := c.db.WithContext(ctx).First(&rec, "id = ?", string(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", "", "", engineerr.ErrNotFound
		}
		return "", "", "", err
	}
	if rec.Container != "mp4" || rec.VideoCodec != "h264" {
		return "", "", "", engineerr.ErrUnsupportedCodec
	}
	return rec.Path, rec.Container, rec.VideoCodec, nil
}

// Register inserts rec, assigning it a fresh ULID if ID is empty, and
// returns the id it was stored under.
func (c *Catalog) Register(ctx context.Context, rec MediaFileRecord) (MediaFileID, error) {
	if rec.ID == "" {
		rec.ID = ulid.Make().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if err := c.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return "", err
	}
	return MediaFileID(rec.ID), nil
}

// Invalidate drops id's catalog row and, if a cache was supplied,
// its prepared-media entry — the out-of-band signal spec.md §6
// describes for replaced or removed media files.
func (c *Catalog) Invalidate(ctx context.Context, id MediaFileID) error {
	if c.cache != nil {
		c.cache.Invalidate(string(id))
	}
	return c.db.WithContext(ctx).Delete(&MediaFileRecord{}, "id = ?", string(id)).Error
}
