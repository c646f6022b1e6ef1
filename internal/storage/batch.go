package storage

import (
	"context"
	"fmt"

	"github.com/ukydev/fleet-driver/internal/models"
)

// Batch tags select the evidence folder of a trip.
const (
	TagLoading = "loading"
	TagInvoice = "invoice"
)

// TripFolder returns trips/{tripId}/{tag}/{driverId}.
func TripFolder(tripID int64, tag string, driverID int64) string {
	return fmt.Sprintf("trips/%d/%s/%d", tripID, tag, driverID)
}

// UploadBatch uploads files one after the other and returns one result per
// file, in input order.
func UploadBatch(ctx context.Context, u Uploader, files []File, folder string) []models.UploadResult {
	results := make([]models.UploadResult, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			results = append(results, models.UploadResult{Success: false, Error: err.Error()})
			continue
		}
		results = append(results, u.Upload(ctx, f, folder))
	}
	return results
}

// UploadLoadingImages uploads loading photos into the trip's loading folder.
func UploadLoadingImages(ctx context.Context, u Uploader, files []File, tripID, driverID int64) []models.UploadResult {
	return UploadBatch(ctx, u, files, TripFolder(tripID, TagLoading, driverID))
}

// UploadInvoiceImages uploads invoice photos into the trip's invoice folder.
func UploadInvoiceImages(ctx context.Context, u Uploader, files []File, tripID, driverID int64) []models.UploadResult {
	return UploadBatch(ctx, u, files, TripFolder(tripID, TagInvoice, driverID))
}
