package trips

import (
	"context"
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-driver/internal/models"
	"github.com/ukydev/fleet-driver/internal/notifications"
	"github.com/ukydev/fleet-driver/internal/storage"
)

const defaultPageSize = 100

var (
	// ErrMissingTripReference means a notification carries no usable trip id.
	ErrMissingTripReference = errors.New("trip reference missing")
	// ErrInvalidTransition means the mirrored trip is not in the state the
	// action starts from.
	ErrInvalidTransition = errors.New("invalid trip transition")
	// ErrUnknownDriver means no driver identity is available.
	ErrUnknownDriver = errors.New("driver identity unknown")
	// ErrActionInProgress means another action on the same trip is running.
	ErrActionInProgress = errors.New("trip action already in progress")
)

// Backend is the part of the API the controller drives.
type Backend interface {
	ListTripsByDriver(ctx context.Context, driverID int64, pageNo, rowsPerPage int) (*models.TripsByDriverResponse, error)
	AcceptTrip(ctx context.Context, tripID int64) (*models.TripStatusUpdateResponse, error)
	RejectTrip(ctx context.Context, tripID int64) (*models.TripStatusUpdateResponse, error)
	MarkTripLoaded(ctx context.Context, tripID int64) (*models.TripStatusUpdateResponse, error)
	MarkTripReached(ctx context.Context, tripID int64) (*models.TripStatusUpdateResponse, error)
	CompleteTrip(ctx context.Context, tripID int64) (*models.TripStatusUpdateResponse, error)
	RegisterLoadedAttachment(ctx context.Context, tripID int64, url string) (*models.AttachmentResponse, error)
	RegisterInvoiceAttachment(ctx context.Context, orderID int64, url string) (*models.AttachmentResponse, error)
}

// Identity resolves the signed-in driver.
type Identity interface {
	ResolveDriverID(ctx context.Context) (int64, bool)
}

// Response is the driver's answer to a trip offer.
type Response int

const (
	Accept Response = iota
	Reject
)

func (r Response) String() string {
	if r == Reject {
		return "reject"
	}
	return "accept"
}

// BatchReport summarizes an evidence batch and its registration.
type BatchReport struct {
	Submitted      int                   `json:"submitted"`
	Uploaded       int                   `json:"uploaded"`
	Failed         int                   `json:"failed"`
	Registered     int                   `json:"registered"`
	RegisterFailed int                   `json:"registerFailed"`
	Results        []models.UploadResult `json:"results"`
}

// Partial reports whether any file or registration failed.
func (r BatchReport) Partial() bool {
	return r.Failed > 0 || r.RegisterFailed > 0
}

// Controller mirrors the driver's trips and moves them through their
// lifecycle. The server is authoritative: every Refresh replaces the mirror.
type Controller struct {
	backend  Backend
	uploader storage.Uploader
	store    *notifications.Store
	identity Identity
	pageSize int
	logger   log.FieldLogger

	mu       sync.RWMutex
	trips    map[int64]models.Trip
	order    []int64
	inflight map[int64]struct{}
}

func NewController(backend Backend, uploader storage.Uploader, store *notifications.Store, identity Identity, pageSize int, logger log.FieldLogger) *Controller {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Controller{
		backend:  backend,
		uploader: uploader,
		store:    store,
		identity: identity,
		pageSize: pageSize,
		logger:   logger.WithField("component", "trips"),
		trips:    make(map[int64]models.Trip),
		inflight: make(map[int64]struct{}),
	}
}

func (c *Controller) driverID(ctx context.Context) (int64, error) {
	if c.identity == nil {
		return 0, ErrUnknownDriver
	}
	id, ok := c.identity.ResolveDriverID(ctx)
	if !ok {
		return 0, ErrUnknownDriver
	}
	return id, nil
}

// Refresh reloads the driver's trips and replaces the mirror with them.
func (c *Controller) Refresh(ctx context.Context) ([]models.Trip, error) {
	driverID, err := c.driverID(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := c.backend.ListTripsByDriver(ctx, driverID, 1, c.pageSize)
	if err != nil {
		c.logger.WithError(err).WithField("driver_id", driverID).Error("Failed to fetch trips")
		return nil, err
	}

	trips := make(map[int64]models.Trip, len(resp.Items))
	order := make([]int64, 0, len(resp.Items))
	for _, t := range resp.Items {
		if _, dup := trips[t.ID]; !dup {
			order = append(order, t.ID)
		}
		trips[t.ID] = t
	}

	c.mu.Lock()
	c.trips = trips
	c.order = order
	c.mu.Unlock()
	return c.Trips(), nil
}

// Trips returns the mirrored trips in server order.
func (c *Controller) Trips() []models.Trip {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.Trip, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.trips[id])
	}
	return out
}

// Trip returns one mirrored trip.
func (c *Controller) Trip(id int64) (models.Trip, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.trips[id]
	return t, ok
}

// begin checks the mirrored state and claims the trip for one action.
func (c *Controller) begin(tripID int64, from models.TripStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.trips[tripID]; ok && t.Status() != from {
		return fmt.Errorf("%w: trip %d is %q, want %q", ErrInvalidTransition, tripID, t.TripStatus, from)
	}
	if _, busy := c.inflight[tripID]; busy {
		return ErrActionInProgress
	}
	c.inflight[tripID] = struct{}{}
	return nil
}

func (c *Controller) end(tripID int64) {
	c.mu.Lock()
	delete(c.inflight, tripID)
	c.mu.Unlock()
}

// commit records a server-confirmed status on the mirror. Trips the mirror
// does not know are left for the next Refresh.
func (c *Controller) commit(tripID int64, status models.TripStatus, resp *models.TripStatusUpdateResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if resp != nil && resp.Trip != nil && resp.Trip.ID == tripID {
		if _, ok := c.trips[tripID]; ok {
			c.trips[tripID] = *resp.Trip
			return
		}
	}
	if t, ok := c.trips[tripID]; ok {
		t.TripStatus = string(status)
		c.trips[tripID] = t
	}
}

// RespondToOffer accepts or rejects the trip a notification refers to. On
// success the notification is marked read and stops being actionable.
func (c *Controller) RespondToOffer(ctx context.Context, record models.NotificationRecord, response Response) (*models.TripStatusUpdateResponse, error) {
	tripID, ok := record.TripID()
	if !ok {
		return nil, ErrMissingTripReference
	}
	logger := c.logger.WithFields(log.Fields{
		"trip_id":         tripID,
		"notification_id": record.ID,
		"response":        response.String(),
	})

	if err := c.begin(tripID, models.TripAssignmentPending); err != nil {
		return nil, err
	}
	defer c.end(tripID)

	var (
		resp   *models.TripStatusUpdateResponse
		err    error
		target models.TripStatus
	)
	switch response {
	case Reject:
		resp, err = c.backend.RejectTrip(ctx, tripID)
		target = models.TripRejected
	default:
		resp, err = c.backend.AcceptTrip(ctx, tripID)
		target = models.TripAssigned
	}
	if err != nil {
		logger.WithError(err).Error("Failed to respond to trip offer")
		return nil, err
	}

	c.commit(tripID, target, resp)
	if c.store != nil {
		c.store.MarkRead(record.ID)
	}
	logger.Info("Trip offer answered")
	return resp, nil
}

// MarkLoaded uploads the loading photos, marks the trip loaded and registers
// every photo that made it to storage. The status call is made once the
// batch has returned, whatever the number of successful uploads.
func (c *Controller) MarkLoaded(ctx context.Context, tripID int64, files []storage.File) (BatchReport, error) {
	return c.advanceWithEvidence(ctx, tripID, files, evidenceStep{
		from:     models.TripAssigned,
		to:       models.TripLoaded,
		tag:      storage.TagLoading,
		upload:   storage.UploadLoadingImages,
		status:   c.backend.MarkTripLoaded,
		register: c.backend.RegisterLoadedAttachment,
	})
}

// MarkReachedDestination is the status-only transition between loading and
// unloading.
func (c *Controller) MarkReachedDestination(ctx context.Context, tripID int64) (*models.TripStatusUpdateResponse, error) {
	if err := c.begin(tripID, models.TripLoaded); err != nil {
		return nil, err
	}
	defer c.end(tripID)

	resp, err := c.backend.MarkTripReached(ctx, tripID)
	if err != nil {
		c.logger.WithError(err).WithField("trip_id", tripID).Error("Error updating trip status")
		return nil, err
	}
	c.commit(tripID, models.TripReachedDestination, resp)
	return resp, nil
}

// Complete uploads the invoice photos, completes the trip and registers the
// invoice photos against the order.
func (c *Controller) Complete(ctx context.Context, tripID int64, files []storage.File) (BatchReport, error) {
	return c.advanceWithEvidence(ctx, tripID, files, evidenceStep{
		from:     models.TripReachedDestination,
		to:       models.TripCompleted,
		tag:      storage.TagInvoice,
		upload:   storage.UploadInvoiceImages,
		status:   c.backend.CompleteTrip,
		register: c.backend.RegisterInvoiceAttachment,
	})
}

type evidenceStep struct {
	from, to models.TripStatus
	tag      string
	upload   func(ctx context.Context, u storage.Uploader, files []storage.File, tripID, driverID int64) []models.UploadResult
	status   func(ctx context.Context, tripID int64) (*models.TripStatusUpdateResponse, error)
	register func(ctx context.Context, id int64, url string) (*models.AttachmentResponse, error)
}

func (c *Controller) advanceWithEvidence(ctx context.Context, tripID int64, files []storage.File, step evidenceStep) (BatchReport, error) {
	report := BatchReport{Submitted: len(files)}
	logger := c.logger.WithFields(log.Fields{"trip_id": tripID, "batch": step.tag})

	driverID, err := c.driverID(ctx)
	if err != nil {
		return report, err
	}
	if err := c.begin(tripID, step.from); err != nil {
		return report, err
	}
	defer c.end(tripID)

	report.Results = step.upload(ctx, c.uploader, files, tripID, driverID)
	urls := models.SuccessfulURLs(report.Results)
	report.Uploaded = len(urls)
	report.Failed = report.Submitted - report.Uploaded
	if report.Failed > 0 {
		logger.WithFields(log.Fields{"uploaded": report.Uploaded, "failed": report.Failed}).Warn("Some uploads failed")
	}

	resp, err := step.status(ctx, tripID)
	if err != nil {
		logger.WithError(err).Error("Images uploaded but failed to update trip status")
		return report, err
	}
	c.commit(tripID, step.to, resp)

	for _, url := range urls {
		if _, err := step.register(ctx, tripID, url); err != nil {
			report.RegisterFailed++
			logger.WithError(err).WithField("url", url).Error("Failed to register attachment")
			continue
		}
		report.Registered++
	}

	logger.WithFields(log.Fields{
		"uploaded":        report.Uploaded,
		"registered":      report.Registered,
		"register_failed": report.RegisterFailed,
	}).Info("Trip advanced to " + string(step.to))
	return report, nil
}
