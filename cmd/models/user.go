package models

import (
	"gorm.io/gorm"
)

const (
	RoleKrisshak      = "krisshak"
	RoleBhooswami     = "bhooswami"
	RoleDistrictAdmin = "district_admin"
	RoleStateAdmin    = "state_admin"
)

type User struct {
	gorm.Model
	Email              string `gorm:"column:email;size:255;uniqueIndex;not null" json:"email"`
	Name               string `gorm:"column:name;size:100" json:"name"`
	Role               string `gorm:"column:role;size:20;not null" json:"role"`
	Gender             string `gorm:"column:gender;size:10" json:"gender,omitempty"`
	Phone              string `gorm:"column:phone;size:20" json:"phone,omitempty"`
	Age                int    `gorm:"column:age" json:"age,omitempty"`
	PreferredLanguage  string `gorm:"column:preferred_language;size:10;default:'en'" json:"preferred_language"`
	ProfilePicturePath string `gorm:"column:profile_picture_path;size:255" json:"profile_picture_path,omitempty"`

	KrisshakProfile  *KrisshakProfile  `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"krisshak_profile,omitempty"`
	BhooswamiProfile *BhooswamiProfile `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"bhooswami_profile,omitempty"`
}

type KrisshakProfile struct {
	gorm.Model
	UserID         uint    `gorm:"column:user_id;not null;uniqueIndex" json:"user_id"`
	Availability   bool    `gorm:"column:availability;default:false" json:"availability"`
	Specialization string  `gorm:"column:specialization;size:255" json:"specialization"`
	Price          float64 `gorm:"column:price;not null" json:"price"`
	Experience     string  `gorm:"column:experience;size:255" json:"experience"`
	Ratings        float64 `gorm:"column:ratings;default:0" json:"ratings"`
	StateID        *uint   `gorm:"column:state_id" json:"state_id,omitempty"`
	DistrictID     *uint   `gorm:"column:district_id" json:"district_id,omitempty"`
	AccountNumber  string  `gorm:"column:account_number;size:20" json:"account_number,omitempty"`
	UpiID          string  `gorm:"column:upi_id;size:50" json:"upi_id,omitempty"`

	User     *User     `gorm:"foreignKey:UserID" json:"user,omitempty"`
	State    *State    `gorm:"foreignKey:StateID" json:"state,omitempty"`
	District *District `gorm:"foreignKey:DistrictID" json:"district,omitempty"`
}

func (KrisshakProfile) TableName() string {
	return "krisshak_profiles"
}

type BhooswamiProfile struct {
	gorm.Model
	UserID       uint    `gorm:"column:user_id;not null;uniqueIndex" json:"user_id"`
	LandArea     float64 `gorm:"column:land_area" json:"land_area"`
	LandLocation string  `gorm:"column:land_location;size:255" json:"land_location"`
	Requirements string  `gorm:"column:requirements;type:text" json:"requirements"`
	Ratings      float64 `gorm:"column:ratings;default:0" json:"ratings"`
	StateID      *uint   `gorm:"column:state_id" json:"state_id,omitempty"`
	DistrictID   *uint   `gorm:"column:district_id" json:"district_id,omitempty"`

	User     *User     `gorm:"foreignKey:UserID" json:"user,omitempty"`
	State    *State    `gorm:"foreignKey:StateID" json:"state,omitempty"`
	District *District `gorm:"foreignKey:DistrictID" json:"district,omitempty"`
}

func (BhooswamiProfile) TableName() string {
	return "bhooswami_profiles"
}

type StateAdminProfile struct {
	gorm.Model
	UserID  uint `gorm:"column:user_id;not null;uniqueIndex" json:"user_id"`
	StateID uint `gorm:"column:state_id;not null" json:"state_id"`

	User  *User  `gorm:"foreignKey:UserID" json:"user,omitempty"`
	State *State `gorm:"foreignKey:StateID" json:"state,omitempty"`
}

func (StateAdminProfile) TableName() string {
	return "state_admin_profiles"
}

// DistrictAdminProfile carries StateID alongside DistrictID so escalation
// to the state admin does not need a join through districts.
type DistrictAdminProfile struct {
	gorm.Model
	UserID     uint `gorm:"column:user_id;not null;uniqueIndex" json:"user_id"`
	StateID    uint `gorm:"column:state_id;not null" json:"state_id"`
	DistrictID uint `gorm:"column:district_id;not null" json:"district_id"`

	User     *User     `gorm:"foreignKey:UserID" json:"user,omitempty"`
	State    *State    `gorm:"foreignKey:StateID" json:"state,omitempty"`
	District *District `gorm:"foreignKey:DistrictID" json:"district,omitempty"`
}

func (DistrictAdminProfile) TableName() string {
	return "district_admin_profiles"
}

// Rating is one row per (rater, rated) pair, upserted on re-rate. The rated
// user's profile carries the denormalized average.
type Rating struct {
	gorm.Model
	RaterID     uint    `gorm:"column:rater_id;not null;uniqueIndex:idx_rating_pair" json:"rater_id"`
	RatedUserID uint    `gorm:"column:rated_user_id;not null;uniqueIndex:idx_rating_pair;index" json:"rated_user_id"`
	Value       float64 `gorm:"column:value;not null" json:"value"`

	Rater     *User `gorm:"foreignKey:RaterID" json:"rater,omitempty"`
	RatedUser *User `gorm:"foreignKey:RatedUserID" json:"rated_user,omitempty"`
}

func (Rating) TableName() string {
	return "ratings"
}

type Favorite struct {
	gorm.Model
	UserID      uint  `gorm:"column:user_id;not null;uniqueIndex:idx_favorite_target" json:"user_id"`
	KrisshakID  *uint `gorm:"column:krisshak_id;uniqueIndex:idx_favorite_target" json:"krisshak_id,omitempty"`
	BhooswamiID *uint `gorm:"column:bhooswami_id;uniqueIndex:idx_favorite_target" json:"bhooswami_id,omitempty"`

	User      *User             `gorm:"foreignKey:UserID" json:"-"`
	Krisshak  *KrisshakProfile  `gorm:"foreignKey:KrisshakID" json:"krisshak,omitempty"`
	Bhooswami *BhooswamiProfile `gorm:"foreignKey:BhooswamiID" json:"bhooswami,omitempty"`
}
