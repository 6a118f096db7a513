package models

import "gorm.io/gorm"

type State struct {
	gorm.Model
	Name string `gorm:"column:name;size:100;uniqueIndex;not null" json:"name"`

	Districts []District `gorm:"foreignKey:StateID;constraint:OnDelete:CASCADE" json:"districts,omitempty"`
}

type District struct {
	gorm.Model
	Name    string `gorm:"column:name;size:100;not null;uniqueIndex:idx_district_state" json:"name"`
	StateID uint   `gorm:"column:state_id;not null;uniqueIndex:idx_district_state" json:"state_id"`

	State *State `gorm:"foreignKey:StateID" json:"-"`
}
