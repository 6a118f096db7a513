package models

import (
	"gorm.io/gorm"
)

const (
	NotificationAppointment = "appointment"
	NotificationContact     = "contact"
	NotificationCalendar    = "calendar"
	NotificationPayment     = "payment"
	NotificationRequests    = "requests"
	NotificationNotice      = "notice"
	NotificationSystem      = "system"
)

// Notification is append-only: rows are marked read in place and never
// deleted by the system. A nil recipient means broadcast.
type Notification struct {
	gorm.Model
	RecipientID      *uint  `gorm:"column:recipient_id;index" json:"recipient_id,omitempty"`
	SenderID         *uint  `gorm:"column:sender_id" json:"sender_id,omitempty"`
	NotificationType string `gorm:"column:notification_type;size:20;not null" json:"notification_type"`
	Title            string `gorm:"column:title;size:255;not null" json:"title"`
	Message          string `gorm:"column:message;type:text" json:"message,omitempty"`
	IsRead           bool   `gorm:"column:is_read;default:false" json:"is_read"`

	Recipient *User `gorm:"foreignKey:RecipientID;constraint:OnDelete:CASCADE" json:"recipient,omitempty"`
	Sender    *User `gorm:"foreignKey:SenderID;constraint:OnDelete:SET NULL" json:"sender,omitempty"`
}

func (Notification) TableName() string {
	return "notifications"
}

// Device is a registered Expo push target.
type Device struct {
	gorm.Model
	Token      string `gorm:"not null;uniqueIndex:idx_token_user" json:"token"`
	UserID     uint   `gorm:"not null;index;uniqueIndex:idx_token_user" json:"user_id"`
	DeviceType string `gorm:"type:varchar(50)" json:"device_type,omitempty"`
	DeviceName string `gorm:"type:varchar(100)" json:"device_name,omitempty"`
}
