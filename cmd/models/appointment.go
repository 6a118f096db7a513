package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	AppointmentPending   = "pending"
	AppointmentConfirmed = "confirmed"

	PaymentStatusPaid    = "paid"
	PaymentStatusNotPaid = "not_paid"
)

// Appointment is the system of record for a confirmed booking between a
// Krisshak and a Bhooswami. Rows are owned jointly by the two referenced
// users and disappear only via cascade when either account is deleted.
type Appointment struct {
	ID            string    `gorm:"type:uuid;primaryKey" json:"id"`
	KrisshakID    uint      `gorm:"column:krisshak_id;not null;index" json:"krisshak_id"`
	BhooswamiID   uint      `gorm:"column:bhooswami_id;not null;index" json:"bhooswami_id"`
	Date          time.Time `gorm:"column:date;not null" json:"date"`
	Time          time.Time `gorm:"column:time;not null" json:"time"`
	Status        string    `gorm:"column:status;size:20;not null;default:'pending'" json:"status"`
	PaymentStatus string    `gorm:"column:payment_status;size:20;not null;default:'not_paid'" json:"payment_status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	Krisshak  *User `gorm:"foreignKey:KrisshakID;constraint:OnDelete:CASCADE" json:"krisshak,omitempty"`
	Bhooswami *User `gorm:"foreignKey:BhooswamiID;constraint:OnDelete:CASCADE" json:"bhooswami,omitempty"`
}

func (Appointment) TableName() string {
	return "appointments"
}

func (a *Appointment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
