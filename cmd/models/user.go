package models

import (
	"gorm.io/gorm"
)

// Insurance tiers declared by patients. The tier drives discount
// resolution and the in-person document verification requirement.
const (
	TierPublicInsurer  = "public-insurer"
	TierPrivateInsurer = "private-insurer"
	TierSelfPay        = "self-pay"
)

type User struct {
	gorm.Model
	FullName          string `gorm:"column:full_name;size:255;not null" json:"full_name"`
	Email             string `gorm:"column:email;size:255;not null" json:"email"`
	Phone             string `gorm:"column:phone;size:20" json:"phone"`
	InsuranceTier     string `gorm:"column:insurance_tier;size:50" json:"insurance_tier"`
	InsuranceVerified bool   `gorm:"column:insurance_verified;default:false" json:"insurance_verified"`
	Active            bool   `gorm:"column:active;default:true" json:"active"`
}

type Doctor struct {
	gorm.Model
	UserID    uint   `gorm:"column:user_id" json:"user_id"`
	FullName  string `gorm:"column:full_name;size:255;not null" json:"full_name"`
	Specialty string `gorm:"column:specialty;size:255;not null" json:"specialty"`
	Active    bool   `gorm:"column:active;default:true" json:"active"`

	User *User `gorm:"foreignKey:UserID" json:"-"`
}

func (Doctor) TableName() string {
	return "doctors"
}
