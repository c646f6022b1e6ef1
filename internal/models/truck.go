package models

// Truck assigned to a trip.
type Truck struct {
	ID          int64  `json:"id" bson:"id"`
	NumberPlate string `json:"numberPlate" bson:"number_plate"`
}
