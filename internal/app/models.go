package app

import "gorm.io/gorm"

// Product is a stocked catalog item.
type Product struct {
	ID    string `gorm:"primaryKey"`
	Name  string
	Stock int
	Price int
}

// OrderLine is one item of a checkout session.
type OrderLine struct {
	ID        uint   `gorm:"primaryKey"`
	SessionID string `gorm:"index;not null"`
	ProductID string `gorm:"not null"`
	Quantity  int    `gorm:"not null"`
}

// AutoMigrate creates the inventory tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Product{}, &OrderLine{})
}
