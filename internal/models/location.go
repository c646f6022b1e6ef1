package models

// Location is a named delivery point.
type Location struct {
	ID           int64  `json:"id" bson:"id"`
	LocationName string `json:"locationName" bson:"location_name"`
}

// CustomerLocation is the customer's pin, as sent by the backend.
type CustomerLocation struct {
	Latitude  string `json:"latitude" bson:"latitude"`
	Longitude string `json:"longitude" bson:"longitude"`
	MapLink   string `json:"mapLink" bson:"map_link"`
}
