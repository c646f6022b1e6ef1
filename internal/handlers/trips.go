package handlers

import (
	"context"
	"mime/multipart"
	"net/http"

	"github.com/ukydev/fleet-driver/internal/models"
	"github.com/ukydev/fleet-driver/internal/storage"
	"github.com/ukydev/fleet-driver/internal/trips"
)

const maxEvidenceMemory = 32 << 20

// TripController drives the trip lifecycle.
type TripController interface {
	Refresh(ctx context.Context) ([]models.Trip, error)
	MarkLoaded(ctx context.Context, tripID int64, files []storage.File) (trips.BatchReport, error)
	MarkReachedDestination(ctx context.Context, tripID int64) (*models.TripStatusUpdateResponse, error)
	Complete(ctx context.Context, tripID int64, files []storage.File) (trips.BatchReport, error)
}

// TripHandler serves the driver's trips.
type TripHandler struct {
	trips TripController
}

func NewTripHandler(controller TripController) *TripHandler {
	return &TripHandler{trips: controller}
}

type tripView struct {
	models.Trip
	Affordances []trips.Affordance `json:"affordances"`
}

type evidenceResult struct {
	trips.BatchReport
	Partial bool `json:"partial"`
}

// List refreshes and returns the driver's trips with the actions each allows.
func (h *TripHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.trips.Refresh(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]tripView, 0, len(list))
	for _, trip := range list {
		views = append(views, tripView{Trip: trip, Affordances: trips.Affordances(trip)})
	}
	writeJSON(w, http.StatusOK, views)
}

// MarkLoaded uploads loading photos and marks the trip loaded.
func (h *TripHandler) MarkLoaded(w http.ResponseWriter, r *http.Request) {
	h.withEvidence(w, r, h.trips.MarkLoaded)
}

// Complete uploads invoice photos and completes the trip.
func (h *TripHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.withEvidence(w, r, h.trips.Complete)
}

// MarkReached records arrival at the delivery location.
func (h *TripHandler) MarkReached(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.Error(w, "Invalid trip ID", http.StatusBadRequest)
		return
	}
	resp, err := h.trips.MarkReachedDestination(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type evidenceStep func(ctx context.Context, tripID int64, files []storage.File) (trips.BatchReport, error)

func (h *TripHandler) withEvidence(w http.ResponseWriter, r *http.Request, step evidenceStep) {
	id, ok := pathID(r)
	if !ok {
		http.Error(w, "Invalid trip ID", http.StatusBadRequest)
		return
	}
	if err := r.ParseMultipartForm(maxEvidenceMemory); err != nil {
		http.Error(w, "Invalid multipart form", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	files := make([]storage.File, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			http.Error(w, "Failed to read uploaded file", http.StatusBadRequest)
			return
		}
		defer f.Close()
		files = append(files, storage.File{Name: fh.Filename, ContentType: contentType(fh), Body: f})
	}

	report, err := step(r.Context(), id, files)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, evidenceResult{BatchReport: report, Partial: report.Partial()})
}

func contentType(fh *multipart.FileHeader) string {
	if ct := fh.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
