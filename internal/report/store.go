package report

import (
	"context"

	"github.com/potholewatch/backend/internal/notify"
)

// Store persists reports. FindMany must return newest first and
// UpdateConditional must only write when the stored status equals expected.
type Store interface {
	Insert(ctx context.Context, r *Report) (string, error)
	FindMany(ctx context.Context, q Query) ([]Report, error)
	FindOne(ctx context.Context, id string) (*Report, error)
	UpdateConditional(ctx context.Context, id string, expected Status, patch Resolution) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)
	Ping(ctx context.Context) error
}

// Detector counts road defects in an image.
type Detector interface {
	Detect(ctx context.Context, image []byte) (int, error)
}

// ImageStore keeps uploaded images. Delete of a missing reference succeeds.
type ImageStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) (string, error)
	Delete(ctx context.Context, ref string) error
}

// Geocoder turns coordinates into a display address, best effort.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (string, bool)
}

// Notifier receives lifecycle events.
type Notifier interface {
	Notify(ctx context.Context, event notify.Event) error
}
