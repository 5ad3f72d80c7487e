package models

import "time"

// Category represents a product category imported from OpenDB.
// Code is the lower-case category key (e.g. "cpu"), Name is the label shown to operators.
type Category struct {
	ID        uint   `gorm:"primaryKey"`
	Code      string `gorm:"uniqueIndex;not null"`
	Name      string `gorm:"not null"`
	CreatedAt time.Time
}

func (c *Category) TableName() string {
	return "categories"
}
