package models

import (
	"github.com/lib/pq"
	"gorm.io/gorm"
)

type ContactMessage struct {
	gorm.Model
	SenderID   *uint  `gorm:"column:sender_id;index" json:"sender_id,omitempty"`
	SenderType string `gorm:"column:sender_type;size:20" json:"sender_type,omitempty"`
	Name       string `gorm:"column:name;size:100;not null" json:"name"`
	Email      string `gorm:"column:email;size:255;not null" json:"email"`
	Subject    string `gorm:"column:subject;size:200;not null" json:"subject"`
	Message    string `gorm:"column:message;type:text;not null" json:"message"`

	ParentID     *uint `gorm:"column:parent_id;index" json:"parent_id,omitempty"`
	IsAdminReply bool  `gorm:"column:is_admin_reply;default:false" json:"is_admin_reply"`
	IsResolved   bool  `gorm:"column:is_resolved;default:false" json:"is_resolved"`

	StateID     *uint  `gorm:"column:state_id" json:"state_id,omitempty"`
	DistrictID  *uint  `gorm:"column:district_id" json:"district_id,omitempty"`
	ForwardedTo string `gorm:"column:forwarded_to;size:50" json:"forwarded_to,omitempty"`

	Sender  *User            `gorm:"foreignKey:SenderID;constraint:OnDelete:SET NULL" json:"-"`
	Parent  *ContactMessage  `gorm:"foreignKey:ParentID" json:"-"`
	Replies []ContactMessage `gorm:"foreignKey:ParentID" json:"replies,omitempty"`
}

func (ContactMessage) TableName() string {
	return "contact_messages"
}

// Notice is a broadcast announcement posted by an admin to users in their
// jurisdiction. Audience limits it to specific roles; empty means everyone.
type Notice struct {
	gorm.Model
	AuthorType string         `gorm:"column:author_type;size:20;not null" json:"author_type"`
	AuthorName string         `gorm:"column:author_name;size:255" json:"author_name"`
	StateID    uint           `gorm:"column:state_id;not null" json:"state_id"`
	DistrictID *uint          `gorm:"column:district_id" json:"district_id,omitempty"`
	Audience   pq.StringArray `gorm:"column:audience;type:text[]" json:"audience,omitempty"`
	Content    string         `gorm:"column:content;type:text;not null" json:"content"`

	State    *State    `gorm:"foreignKey:StateID" json:"state,omitempty"`
	District *District `gorm:"foreignKey:DistrictID" json:"district,omitempty"`
}
