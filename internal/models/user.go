package models

import "time"

// Driver is the backend driver profile linked to a user account.
type Driver struct {
	ID                  int64  `json:"id" bson:"id"`
	DriverCode          string `json:"driverCode" bson:"driver_code"`
	DriverName          string `json:"driverName" bson:"driver_name"`
	IsThirdParty        bool   `json:"isThirdParty" bson:"is_third_party"`
	DriverReferenceCode string `json:"driverReferenceCode" bson:"driver_reference_code"`
	AssignedUserID      int64  `json:"assignedUserId" bson:"assigned_user_id"`
	Category            string `json:"category" bson:"category"`
	IsActive            bool   `json:"isActive" bson:"is_active"`
	Status              string `json:"status" bson:"status"`
	FCMToken            string `json:"fcmToken,omitempty" bson:"fcm_token,omitempty"`
}

// DriverResponse is returned by GET /drivers/by-user/{userId}.
type DriverResponse struct {
	Message string  `json:"message,omitempty"`
	Driver  *Driver `json:"driver,omitempty"`
}

// DriverIdentity ties the logged-in user to their driver profile. It is
// derived from the credential and never stored on its own.
type DriverIdentity struct {
	DriverID int64 `json:"driverId"`
	UserID   int64 `json:"userId"`
}

// User is the account returned on login.
type User struct {
	ID                int64  `json:"id"`
	UserCode          string `json:"userCode"`
	UserName          string `json:"userName"`
	UserRole          string `json:"userRole"`
	UserEmail         string `json:"userEmail"`
	UserMobileNumber  string `json:"userMobileNumber"`
	UserReferenceCode string `json:"userReferenceCode"`
	IsActive          bool   `json:"isActive"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	UserEmail string `json:"userEmail"`
	Password  string `json:"password"`
}

// LoginResponse represents a successful login response
type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Claims is the decoded middle segment of a bearer credential.
type Claims struct {
	UserID int64  `json:"sub"`
	Role   string `json:"role,omitempty"`
	Email  string `json:"email,omitempty"`
	Exp    int64  `json:"exp"`
}

// Expired reports whether the claims are past their expiry at now. A
// credential without an exp claim never expires client-side.
func (c Claims) Expired(now time.Time) bool {
	return c.Exp != 0 && c.Exp < now.Unix()
}
