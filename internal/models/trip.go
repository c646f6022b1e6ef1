package models

import "strings"

// TripStatus is the server-side lifecycle state of a trip.
type TripStatus string

const (
	TripAssignmentPending  TripStatus = "assignment_pending"
	TripAssigned           TripStatus = "assigned"
	TripLoaded             TripStatus = "loaded"
	TripReachedDestination TripStatus = "reached_destination"
	TripCompleted          TripStatus = "completed"
	TripCancelled          TripStatus = "cancelled"
	TripRejected           TripStatus = "rejected"
)

// ParseTripStatus normalizes a backend status string, accepting any case and
// "-" for "_". The second return value is false for values outside the
// lifecycle enum.
func ParseTripStatus(raw string) (TripStatus, bool) {
	s := TripStatus(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "-", "_"))
	switch s {
	case TripAssignmentPending, TripAssigned, TripLoaded, TripReachedDestination,
		TripCompleted, TripCancelled, TripRejected:
		return s, true
	default:
		return s, false
	}
}

// IsTerminal reports whether no further driver action can move the trip.
func (s TripStatus) IsTerminal() bool {
	switch s {
	case TripCompleted, TripCancelled, TripRejected:
		return true
	default:
		return false
	}
}

// Product carried on a trip.
type Product struct {
	ID          int64  `json:"id" bson:"id"`
	ProductName string `json:"productName" bson:"product_name"`
}

// Customer receiving the delivery.
type Customer struct {
	ID           int64  `json:"id" bson:"id"`
	CustomerName string `json:"customerName" bson:"customer_name"`
}

// Trip is the driver's cached copy of a dispatch job.
type Trip struct {
	ID               int64             `json:"id" bson:"id"`
	OrderSerialNo    string            `json:"orderSerialNo" bson:"order_serial_no"`
	StartingDatetime string            `json:"startingDatetime" bson:"starting_datetime"`
	Product          Product           `json:"product" bson:"product"`
	Customer         Customer          `json:"customer" bson:"customer"`
	DeliveryLocation Location          `json:"deliveryLocation" bson:"delivery_location"`
	Rate             string            `json:"rate" bson:"rate"`
	AssignedTruck    Truck             `json:"assignedTruck" bson:"assigned_truck"`
	AssignedDriverID int64             `json:"assignedDriverId" bson:"assigned_driver_id"`
	TripStatus       string            `json:"tripStatus" bson:"trip_status"`
	CustomerLocation *CustomerLocation `json:"customerLocation,omitempty" bson:"customer_location,omitempty"`
}

// Status returns the parsed lifecycle state of the trip.
func (t Trip) Status() TripStatus {
	s, _ := ParseTripStatus(t.TripStatus)
	return s
}

// AwaitingCustomerConfirmation is true once the driver has handed over the
// invoice and nothing is left for them to do.
func (t Trip) AwaitingCustomerConfirmation() bool {
	return t.Status() == TripCompleted
}

// TripsByDriverRequest is the body of POST /trips/by-driver.
type TripsByDriverRequest struct {
	DriverID    int64 `json:"driverId"`
	PageNo      int   `json:"pageNo"`
	RowsPerPage int   `json:"rowsPerPage"`
}

// TripsByDriverResponse is one page of a driver's trips.
type TripsByDriverResponse struct {
	DriverID    int64  `json:"driverId"`
	Items       []Trip `json:"items"`
	TotalCount  int    `json:"totalCount"`
	TotalPages  int    `json:"totalPages"`
	PageNo      int    `json:"pageNo"`
	RowsPerPage int    `json:"rowsPerPage"`
}

// TripActionRequest is the body of every status-changing trip call.
type TripActionRequest struct {
	TripID int64 `json:"tripId"`
}

// TripStatusUpdateResponse is returned by the loaded/reached/complete and
// accept/reject calls.
type TripStatusUpdateResponse struct {
	Message string `json:"message"`
	Trip    *Trip  `json:"trip,omitempty"`
}

// Attachment is a registered evidence URL.
type Attachment struct {
	ID             int64  `json:"id"`
	ParentType     string `json:"parentType"`
	ParentID       int64  `json:"parentId"`
	AttachmentType string `json:"attachmentType"`
	URL            string `json:"url"`
	CreatedAt      string `json:"createdAt"`
}

// AttachmentResponse is returned by POST /attachments/{loaded|invoice}.
type AttachmentResponse struct {
	Message    string     `json:"message"`
	Attachment Attachment `json:"attachment"`
}
