package models

import "time"

// Account is the slice of the user profile this service reads and writes.
type Account struct {
	ID              string     `json:"id" db:"id"`
	FullName        string     `json:"fullName" db:"full_name"`
	PhoneNumber     string     `json:"phoneNumber" db:"phone_number"`
	PaymentVerified bool       `json:"paymentVerified" db:"payment_verified"`
	VerifiedAt      *time.Time `json:"verifiedAt,omitempty" db:"verified_at"`
	VerifiedBy      string     `json:"verifiedBy,omitempty" db:"verified_by"`
	UpdatedAt       time.Time  `json:"updatedAt" db:"updated_at"`
}
