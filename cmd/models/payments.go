package models

import (
	"gorm.io/gorm"
)

const (
	PaymentPending   = "pending"
	PaymentCompleted = "completed"
	PaymentFailed    = "failed"

	PaymentTypePrimary = "primary"
	PaymentTypeTip     = "tip"
)

// Payment records an intent against a recipient's quoted price and its
// reconciliation via the gateway webhook. Amount is recomputed server-side
// from the recipient's profile unless IsCustom (tips), so a client-supplied
// figure never reaches the ledger.
type Payment struct {
	gorm.Model
	SenderID          uint    `gorm:"column:sender_id;not null;index" json:"sender_id"`
	RecipientID       uint    `gorm:"column:recipient_id;not null;index" json:"recipient_id"`
	Amount            float64 `gorm:"column:amount;not null" json:"amount"`
	PlatformFee       float64 `gorm:"column:platform_fee;not null" json:"platform_fee"`
	CalculatedAmount  float64 `gorm:"column:calculated_amount;not null" json:"calculated_amount"`
	Purpose           string  `gorm:"column:purpose;size:255" json:"purpose,omitempty"`
	Type              string  `gorm:"column:type;size:10;not null;default:'primary'" json:"type"`
	IsCustom          bool    `gorm:"column:is_custom;default:false" json:"is_custom"`
	Status            string  `gorm:"column:status;size:10;not null;default:'pending'" json:"status"`
	ExternalPaymentID string  `gorm:"column:external_payment_id;size:128;index" json:"external_payment_id,omitempty"`
	TransactionID     string  `gorm:"column:transaction_id;size:128" json:"transaction_id,omitempty"`

	Sender    *User `gorm:"foreignKey:SenderID;constraint:OnDelete:CASCADE" json:"sender,omitempty"`
	Recipient *User `gorm:"foreignKey:RecipientID;constraint:OnDelete:CASCADE" json:"recipient,omitempty"`
}

func (Payment) TableName() string {
	return "payments"
}
