package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	EventManual      = "manual"
	EventAppointment = "appointment"
)

// CalendarEvent mirrors confirmed appointments into each participant's
// calendar. Appointment-derived events are keyed uniquely by
// (user, related_appointment) and are read-only to the user; manual events
// are freely editable.
type CalendarEvent struct {
	gorm.Model
	UserID               uint      `gorm:"column:user_id;not null;index;uniqueIndex:idx_event_user_appointment" json:"user_id"`
	Title                string    `gorm:"column:title;size:255;not null" json:"title"`
	Description          string    `gorm:"column:description;type:text" json:"description,omitempty"`
	Date                 time.Time `gorm:"column:date;not null" json:"date"`
	Time                 time.Time `gorm:"column:time" json:"time"`
	EventType            string    `gorm:"column:event_type;size:20;not null;default:'manual'" json:"event_type"`
	RelatedAppointmentID *string   `gorm:"column:related_appointment_id;type:uuid;uniqueIndex:idx_event_user_appointment" json:"related_appointment_id,omitempty"`

	User               *User        `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	RelatedAppointment *Appointment `gorm:"foreignKey:RelatedAppointmentID;constraint:OnDelete:SET NULL" json:"related_appointment,omitempty"`
}

func (CalendarEvent) TableName() string {
	return "calendar_events"
}
