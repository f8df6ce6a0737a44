package report

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/golang/geo/s2"

	"github.com/potholewatch/backend/internal/jurisdiction"
)

// parseLocation validates the raw coordinate strings of a submission.
func parseLocation(rawLat, rawLng string) (Location, error) {
	rawLat = strings.TrimSpace(rawLat)
	rawLng = strings.TrimSpace(rawLng)
	if rawLat == "" || rawLng == "" {
		return Location{}, invalid("location", "latitude and longitude are required")
	}

	lat, err := strconv.ParseFloat(rawLat, 64)
	if err != nil || math.IsNaN(lat) || math.IsInf(lat, 0) {
		return Location{}, invalid("lat", "must be a finite number")
	}
	lng, err := strconv.ParseFloat(rawLng, 64)
	if err != nil || math.IsNaN(lng) || math.IsInf(lng, 0) {
		return Location{}, invalid("lng", "must be a finite number")
	}

	if !s2.LatLngFromDegrees(lat, lng).IsValid() {
		return Location{}, invalid("location", "coordinates out of range")
	}

	return Location{Lat: lat, Lng: lng}, nil
}

// checkImage rejects empty uploads and anything that does not sniff as an image.
func checkImage(field string, image []byte) (string, error) {
	if len(image) == 0 {
		return "", invalid(field, "image is required")
	}
	mt := mimetype.Detect(image)
	if !strings.HasPrefix(mt.String(), "image/") {
		return "", invalid(field, "file is not an image ("+mt.String()+")")
	}
	return mt.String(), nil
}

// newReport builds a fresh Pending report. The authority is derived from the
// address here and nowhere else.
func newReport(sub Submission, loc Location, address string, defects int, evidenceRef string, now time.Time) *Report {
	return &Report{
		ReporterID:       strings.TrimSpace(sub.ReporterID),
		ReporterName:     strings.TrimSpace(sub.ReporterName),
		Location:         loc,
		Address:          address,
		Authority:        jurisdiction.Route(address),
		DefectCount:      defects,
		Status:           StatusPending,
		CreatedAt:        now.UTC(),
		EvidenceImageRef: evidenceRef,
	}
}

// canResolve is the only gate into the Resolved state.
func canResolve(r *Report) error {
	if r.Status != StatusPending {
		return ErrInvalidState
	}
	return nil
}

// applyResolution mirrors the conditional store update on an in-memory copy.
func applyResolution(r *Report, patch Resolution) {
	resolvedAt := patch.ResolvedAt.UTC()
	ref := patch.ResolutionImageRef
	r.Status = StatusResolved
	r.ResolvedAt = &resolvedAt
	r.ResolutionImageRef = &ref
}
