package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RequestPending  = "pending"
	RequestAccepted = "accepted"
	RequestExpired  = "expired"
)

// RequestTTL is how long a pending request stays actionable. Expiry is a
// derived predicate: readers call IsExpired, nothing sweeps the table. The
// send path flips stale rows to "expired" before inserting so the partial
// unique index on pending pairs still admits a fresh request.
const RequestTTL = 48 * time.Hour

type AppointmentRequest struct {
	ID          string    `gorm:"type:uuid;primaryKey" json:"id"`
	SenderID    uint      `gorm:"column:sender_id;not null;index;uniqueIndex:idx_request_active_pair,where:status = 'pending'" json:"sender_id"`
	RecipientID uint      `gorm:"column:recipient_id;not null;index;uniqueIndex:idx_request_active_pair,where:status = 'pending'" json:"recipient_id"`
	Status      string    `gorm:"column:status;size:20;not null;default:'pending'" json:"status"`
	RequestTime time.Time `gorm:"column:request_time;not null" json:"request_time"`

	Sender    *User `gorm:"foreignKey:SenderID;constraint:OnDelete:CASCADE" json:"sender,omitempty"`
	Recipient *User `gorm:"foreignKey:RecipientID;constraint:OnDelete:CASCADE" json:"recipient,omitempty"`
}

func (AppointmentRequest) TableName() string {
	return "appointment_requests"
}

func (r *AppointmentRequest) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.RequestTime.IsZero() {
		r.RequestTime = time.Now()
	}
	return nil
}

func (r *AppointmentRequest) IsExpired() bool {
	return time.Since(r.RequestTime) > RequestTTL
}

// EffectiveStatus reports "expired" for pending rows past the TTL without
// touching the stored value.
func (r *AppointmentRequest) EffectiveStatus() string {
	if r.Status == RequestPending && r.IsExpired() {
		return RequestExpired
	}
	return r.Status
}
