package models

import (
	"time"

	"gorm.io/datatypes"
)

type Product struct {
	ID       uint `gorm:"primaryKey" json:"id"`
	SellerID uint `gorm:"not null;index" json:"seller_id"`

	Title    string `json:"title"`
	Category string `json:"category"` // sayur, buah, beras, bibit, ...
	Unit     string `json:"unit"`     // kg, ikat, karung
	Price    int64  `json:"price"`    // per unit, rupiah

	// harvest date, origin, grade; shape differs per category
	Attributes datatypes.JSON `json:"attributes"`

	Status string `gorm:"type:varchar(20);default:'draft'" json:"status"` // draft | published | sold_out

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Seller *User `gorm:"foreignKey:SellerID" json:"seller,omitempty"`
}
