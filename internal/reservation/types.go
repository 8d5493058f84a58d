package reservation

import (
	"time"

	"github.com/iotail/kennel-core/internal/catalog"
)

// Reservation binds a dog and its owner to a kennel for an occupancy
// interval. It is created inactive by a booking, or active by a walk-up
// unlock, and removed by cancellation or expiry.
type Reservation struct {
	ID              string     `json:"reservationID"`
	UserID          string     `json:"userID"`
	DogID           string     `json:"dogID"`
	StoreID         string     `json:"storeID"`
	KennelID        int        `json:"kennelID"`
	Active          bool       `json:"active"`
	UnlockCode      string     `json:"unlockCode"`
	FirebaseTokens  []string   `json:"firebaseTokens"`
	ReservationTime time.Time  `json:"reservationTime"`
	ActivationTime  *time.Time `json:"activationTime,omitempty"`

	// Reminded marks that the one-shot expiry reminder has been sent.
	Reminded bool `json:"reminded"`
}

// Age returns how long ago the reservation was created.
func (r *Reservation) Age(now time.Time) time.Duration {
	return now.Sub(r.ReservationTime)
}

// Result is the outcome of a successful reserve or unlock operation.
type Result struct {
	ReservationID string  `json:"reservationID"`
	KennelID      int     `json:"kennelID"`
	Timestamp     float64 `json:"timestamp"`
}

// Event is a lifecycle transition announced to observers (the live
// event feed). Type uses the audit event names.
type Event struct {
	Type          string  `json:"type"`
	ReservationID string  `json:"reservationID,omitempty"`
	StoreID       string  `json:"storeID,omitempty"`
	KennelID      int     `json:"kennelID"`
	Timestamp     float64 `json:"timestamp"`
}

// ReserveRequest carries the parameters of a booking.
type ReserveRequest struct {
	UserID  string             `json:"userID"`
	DogID   string             `json:"dogID"`
	StoreID string             `json:"storeID"`
	DogSize catalog.KennelSize `json:"dog_size"`
}

// UnlockRequest carries the parameters of a walk-up self-service unlock.
type UnlockRequest struct {
	UserID     string             `json:"userID"`
	DogID      string             `json:"dogID"`
	DogSize    catalog.KennelSize `json:"dog_size"`
	StoreID    string             `json:"storeID"`
	KennelID   int                `json:"kennelID"`
	UnlockCode string             `json:"unlockCode"`
}
