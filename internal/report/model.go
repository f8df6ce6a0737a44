package report

import (
	"strings"
	"time"

	"github.com/potholewatch/backend/internal/jurisdiction"
)

// Status is the lifecycle state of a report.
type Status string

const (
	StatusPending  Status = "Pending"
	StatusResolved Status = "Resolved"
)

// AddressNotFound is stored when neither the caller nor the geocoder
// produced an address.
const AddressNotFound = "Address not found"

// Location is a WGS84 coordinate pair.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Report is a single geotagged road-defect report.
type Report struct {
	ID                 string                 `json:"id"`
	ReporterID         string                 `json:"reporter_id,omitempty"`
	ReporterName       string                 `json:"reporter_name,omitempty"`
	Location           Location               `json:"location"`
	Address            string                 `json:"address"`
	Authority          jurisdiction.Authority `json:"authority"`
	DefectCount        int                    `json:"defect_count"`
	Status             Status                 `json:"status"`
	CreatedAt          time.Time              `json:"created_at"`
	EvidenceImageRef   string                 `json:"image_url"`
	ResolutionImageRef *string                `json:"resolved_image_url,omitempty"`
	ResolvedAt         *time.Time             `json:"resolved_at,omitempty"`
}

// Resolution is the patch applied by a successful audit.
type Resolution struct {
	ResolvedAt         time.Time
	ResolutionImageRef string
}

// Query filters a report listing. Zero values mean "no constraint".
type Query struct {
	Authority  *jurisdiction.Authority
	ReporterID string
	Status     *Status
	Limit      int
	Offset     int
}

// Submission carries a validated-at-the-edge report request.
type Submission struct {
	Image        []byte
	ImageName    string
	Latitude     string
	Longitude    string
	Address      string
	ReporterID   string
	ReporterName string
}

// ParseStatus accepts a status name in any case.
func ParseStatus(value string) (Status, bool) {
	value = strings.TrimSpace(value)
	for _, st := range []Status{StatusPending, StatusResolved} {
		if strings.EqualFold(value, string(st)) {
			return st, true
		}
	}
	return "", false
}
