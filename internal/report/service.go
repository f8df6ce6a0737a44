package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/potholewatch/backend/internal/metrics"
	"github.com/potholewatch/backend/internal/notify"
)

const (
	defaultDetectTimeout = 20 * time.Second
	cleanupTimeout       = 10 * time.Second
	notifyTimeout        = 5 * time.Second
	maxListLimit         = 500
)

// Deps wires the service to its collaborators. Geocoder and Notifier are
// optional.
type Deps struct {
	Store         Store
	Images        ImageStore
	Detector      Detector
	Geocoder      Geocoder
	Notifier      Notifier
	DetectTimeout time.Duration
	Logger        *zerolog.Logger
	Now           func() time.Time
}

// Service runs the report lifecycle against the store, image store and
// detector.
type Service struct {
	store         Store
	images        ImageStore
	detector      Detector
	geocoder      Geocoder
	notifier      Notifier
	detectTimeout time.Duration
	log           zerolog.Logger
	now           func() time.Time
}

// NewService creates the service. Store, Images and Detector are required.
func NewService(deps Deps) (*Service, error) {
	if deps.Store == nil {
		return nil, errors.New("report: store is required")
	}
	if deps.Images == nil {
		return nil, errors.New("report: image store is required")
	}
	if deps.Detector == nil {
		return nil, errors.New("report: detector is required")
	}

	s := &Service{
		store:         deps.Store,
		images:        deps.Images,
		detector:      deps.Detector,
		geocoder:      deps.Geocoder,
		notifier:      deps.Notifier,
		detectTimeout: deps.DetectTimeout,
		now:           deps.Now,
	}
	if s.detectTimeout <= 0 {
		s.detectTimeout = defaultDetectTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}
	if deps.Logger != nil {
		s.log = *deps.Logger
	} else {
		s.log = log.With().Str("component", "report").Logger()
	}
	return s, nil
}

// Ping checks the backing store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Predict runs the detector on an image without persisting anything.
func (s *Service) Predict(ctx context.Context, image []byte) (int, error) {
	if _, err := checkImage("image", image); err != nil {
		return 0, err
	}
	return s.detect(ctx, image)
}

// Create validates a submission, stores its evidence image, counts defects,
// routes it to an authority and persists a Pending report.
func (s *Service) Create(ctx context.Context, sub Submission) (*Report, error) {
	contentType, err := checkImage("image", sub.Image)
	if err != nil {
		return nil, err
	}
	loc, err := parseLocation(sub.Latitude, sub.Longitude)
	if err != nil {
		return nil, err
	}

	address := s.resolveAddress(ctx, sub.Address, loc)

	ref, err := s.storeImage(ctx, "evidence", sub.Image, contentType)
	if err != nil {
		return nil, err
	}

	count, err := s.detect(ctx, sub.Image)
	if err != nil {
		s.discardImage(ref, err)
		return nil, err
	}

	r := newReport(sub, loc, address, count, ref, s.now())
	id, err := s.store.Insert(ctx, r)
	if err != nil {
		s.discardImage(ref, err)
		return nil, fmt.Errorf("insert report: %w", err)
	}
	r.ID = id

	metrics.ReportsCreated.WithLabelValues(string(r.Authority)).Inc()
	s.log.Info().Str("report_id", r.ID).Str("authority", string(r.Authority)).
		Int("defect_count", r.DefectCount).Msg("report created")
	s.notify(ctx, notify.EventCreated, r, r.DefectCount)

	return r, nil
}

// ListOptions narrows a listing after the access policy has been applied.
type ListOptions struct {
	Status *Status
	Limit  int
	Offset int
}

// List returns the reports visible to caller, newest first.
func (s *Service) List(ctx context.Context, caller Caller, opts ListOptions) ([]Report, error) {
	q := FilterFor(caller)
	q.Status = opts.Status
	q.Limit = opts.Limit
	if q.Limit < 0 {
		q.Limit = 0
	}
	if q.Limit > maxListLimit {
		q.Limit = maxListLimit
	}
	q.Offset = opts.Offset
	if q.Offset < 0 {
		q.Offset = 0
	}

	reports, err := s.store.FindMany(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	if reports == nil {
		reports = []Report{}
	}
	return reports, nil
}

// Get loads a single report.
func (s *Service) Get(ctx context.Context, id string) (*Report, error) {
	return s.store.FindOne(ctx, strings.TrimSpace(id))
}

// Resolve marks a Pending report Resolved, but only when a fresh detector run
// on the resolution image finds zero defects. The audit count is not stored.
func (s *Service) Resolve(ctx context.Context, caller Caller, id string, image []byte) (*Report, error) {
	r, err := s.store.FindOne(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	if !canModify(caller, r, false) {
		return nil, ErrForbidden
	}
	if err := canResolve(r); err != nil {
		return nil, err
	}

	contentType, err := checkImage("resolved_image", image)
	if err != nil {
		return nil, err
	}

	ref, err := s.storeImage(ctx, "resolution", image, contentType)
	if err != nil {
		return nil, err
	}

	count, err := s.detect(ctx, image)
	if err != nil {
		metrics.Audits.WithLabelValues("error").Inc()
		s.discardImage(ref, err)
		return nil, err
	}

	if count > 0 {
		rejected := &AuditRejectedError{DetectedCount: count}
		metrics.Audits.WithLabelValues("rejected").Inc()
		s.discardImage(ref, rejected)
		s.log.Info().Str("report_id", r.ID).Int("detected_count", count).Msg("resolution audit rejected")
		s.notify(ctx, notify.EventAuditRejected, r, count)
		return nil, rejected
	}

	patch := Resolution{ResolvedAt: s.now().UTC(), ResolutionImageRef: ref}
	updated, err := s.store.UpdateConditional(ctx, r.ID, StatusPending, patch)
	if err != nil {
		s.discardImage(ref, err)
		return nil, fmt.Errorf("resolve report: %w", err)
	}
	if !updated {
		s.discardImage(ref, ErrInvalidState)
		return nil, ErrInvalidState
	}

	applyResolution(r, patch)
	metrics.Audits.WithLabelValues("accepted").Inc()
	s.log.Info().Str("report_id", r.ID).Str("authority", string(r.Authority)).Msg("report resolved")
	s.notify(ctx, notify.EventResolved, r, 0)

	return r, nil
}

// Delete removes a report and, best effort, its images.
func (s *Service) Delete(ctx context.Context, caller Caller, id string) error {
	r, err := s.store.FindOne(ctx, strings.TrimSpace(id))
	if err != nil {
		return err
	}
	if !canModify(caller, r, true) {
		return ErrForbidden
	}

	deleted, err := s.store.Delete(ctx, r.ID)
	if err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	if !deleted {
		return ErrNotFound
	}

	s.discardImage(r.EvidenceImageRef, nil)
	if r.ResolutionImageRef != nil {
		s.discardImage(*r.ResolutionImageRef, nil)
	}
	s.notify(ctx, notify.EventDeleted, r, r.DefectCount)
	return nil
}

// detect bounds a detector call by the configured timeout even when the
// detector ignores its context. Any failure is a DetectionError, never zero.
//
// The call runs in its own goroutine and the result channel is buffered, so
// a detector that returns after the deadline still sends once and exits
// instead of leaking. Its late answer is discarded: after a timeout the
// caller has already cleaned up the image, and a count observed then must
// not resolve or create anything. DetectDuration records the time the
// service waited, which is capped by the timeout, not the detector's own
// latency.
func (s *Service) detect(ctx context.Context, image []byte) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.detectTimeout)
	defer cancel()

	type result struct {
		count int
		err   error
	}
	done := make(chan result, 1)
	start := time.Now()
	go func() {
		count, err := s.detector.Detect(ctx, image)
		done <- result{count: count, err: err}
	}()

	var res result
	select {
	case <-ctx.Done():
		res.err = ctx.Err()
	case res = <-done:
	}
	metrics.DetectDuration.Observe(time.Since(start).Seconds())

	if res.err != nil {
		return 0, detectionFailed(res.err)
	}
	if res.count < 0 {
		return 0, detectionFailed(fmt.Errorf("negative defect count %d", res.count))
	}
	return res.count, nil
}

func (s *Service) resolveAddress(ctx context.Context, supplied string, loc Location) string {
	if address := strings.TrimSpace(supplied); address != "" {
		return address
	}
	if s.geocoder == nil {
		return AddressNotFound
	}
	if address, ok := s.geocoder.ReverseGeocode(ctx, loc.Lat, loc.Lng); ok && strings.TrimSpace(address) != "" {
		return strings.TrimSpace(address)
	}
	return AddressNotFound
}

func (s *Service) storeImage(ctx context.Context, kind string, body []byte, contentType string) (string, error) {
	key := fmt.Sprintf("%s/%s%s", kind, uuid.NewString(), mimetype.Detect(body).Extension())
	ref, err := s.images.Put(ctx, key, body, contentType)
	if err != nil {
		return "", fmt.Errorf("store %s image: %w", kind, err)
	}
	return ref, nil
}

// discardImage deletes an image that must not stay referenced.
//
// The context is detached from the request. Most calls arrive after the
// request context expired (detector timeout or a client that went away), and
// a delete under that context fails at once and leaves an orphan.
// cleanupTimeout bounds the delete instead.
// Failures are logged with the original cause and never returned, so the
// caller still reports the error that triggered the cleanup.
func (s *Service) discardImage(ref string, cause error) {
	if ref == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	if err := s.images.Delete(ctx, ref); err != nil {
		event := s.log.Error().Err(err).Str("image_ref", ref)
		if cause != nil {
			event = event.AnErr("cause", cause)
		}
		event.Msg("image cleanup failed")
	}
}

// notify runs after the change is persisted. It keeps request values but
// not cancellation, and its error is only logged.
func (s *Service) notify(ctx context.Context, kind notify.EventType, r *Report, count int) {
	if s.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	event := notify.Event{
		Type:        kind,
		ReportID:    r.ID,
		Authority:   string(r.Authority),
		Address:     r.Address,
		Lat:         r.Location.Lat,
		Lng:         r.Location.Lng,
		DefectCount: count,
		OccurredAt:  s.now().UTC(),
	}
	if err := s.notifier.Notify(ctx, event); err != nil {
		s.log.Warn().Err(err).Str("event", string(kind)).Str("report_id", r.ID).Msg("notify failed")
	}
}
