package models

import (
	"gorm.io/gorm"
)

// AppointmentType describes a bookable specialty: its fixed slot duration
// and the price per insurance tier. A tier price of zero means the tier
// falls back to a percentage of the base price.
type AppointmentType struct {
	gorm.Model
	Name            string  `gorm:"column:name;size:255;not null" json:"name"`
	DurationMinutes int     `gorm:"column:duration_minutes;not null" json:"duration_minutes"`
	BasePrice       float64 `gorm:"column:base_price;not null" json:"base_price"`
	PricePublic     float64 `gorm:"column:price_public;default:0" json:"price_public"`
	PricePrivate    float64 `gorm:"column:price_private;default:0" json:"price_private"`
	PriceSelfPay    float64 `gorm:"column:price_self_pay;default:0" json:"price_self_pay"`
	Active          bool    `gorm:"column:active;default:true" json:"active"`
}

func (AppointmentType) TableName() string {
	return "appointment_types"
}
