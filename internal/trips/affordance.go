package trips

import "github.com/ukydev/fleet-driver/internal/models"

// Affordance is an action the UI may offer for a trip.
type Affordance string

const (
	UploadLoading Affordance = "upload_loading"
	ReachedDest   Affordance = "reached_destination"
	UploadInvoice Affordance = "upload_invoice"
)

// Affordances returns what the driver can do next with trip. Offers are
// answered from the notification, so pending trips offer nothing here.
func Affordances(trip models.Trip) []Affordance {
	status, ok := models.ParseTripStatus(trip.TripStatus)
	if !ok {
		return nil
	}
	switch status {
	case models.TripAssigned:
		return []Affordance{UploadLoading}
	case models.TripLoaded:
		return []Affordance{ReachedDest}
	case models.TripReachedDestination:
		return []Affordance{UploadInvoice}
	default:
		return nil
	}
}
