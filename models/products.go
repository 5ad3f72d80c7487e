package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product represents a purchasable part materialised from an OpenDB record.
// OpenDBID is unique per category; re-imports update the row in place.
type Product struct {
	ID              uint            `gorm:"primaryKey"`
	CategoryID      uint            `gorm:"not null;uniqueIndex:idx_products_category_opendb,priority:1"`
	Category        Category        `gorm:"foreignKey:CategoryID" validate:"-"`
	OpenDBID        uuid.UUID       `gorm:"column:opendb_id;type:uuid;not null;uniqueIndex:idx_products_category_opendb,priority:2" validate:"required"`
	Name            string          `gorm:"size:300;not null" validate:"required,max=300"`
	Manufacturer    string          `gorm:"size:150" validate:"max=150"`
	PartNumbers     StringList      `gorm:"type:text"`
	Series          string          `gorm:"size:150" validate:"max=150"`
	Variant         string          `gorm:"size:150" validate:"max=150"`
	ReleaseYear     *int            `validate:"omitempty,gte=1900,lte=2100"`
	ManufacturerURL string          `gorm:"size:600" validate:"omitempty,url,max=600"`
	Price           decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	Specs           Specs           `gorm:"type:text"`
	SourceHash      string          `gorm:"size:64;not null"`
	LastSynced      time.Time       `gorm:"not null"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (p *Product) TableName() string {
	return "products"
}
