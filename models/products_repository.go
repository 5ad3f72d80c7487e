package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProductsRepository struct {
	db *gorm.DB
}

// ErrProductNotFound is returned when a product is not found.
var ErrProductNotFound = errors.New("product not found")

// upsertColumns are overwritten when an imported record already exists.
var upsertColumns = []string{
	"name",
	"manufacturer",
	"part_numbers",
	"series",
	"variant",
	"release_year",
	"manufacturer_url",
	"price",
	"specs",
	"source_hash",
	"last_synced",
	"updated_at",
}

type ProductFilters struct {
	CategoryCode  string
	PriceLessThan *float64
}

func NewProductsRepository(db *gorm.DB) *ProductsRepository {
	return &ProductsRepository{
		db: db,
	}
}

// Transaction runs fn against a repository bound to a single database transaction.
func (r *ProductsRepository) Transaction(ctx context.Context, fn func(tx *ProductsRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewProductsRepository(tx))
	})
}

// EnsureCategory returns the category with the given code, creating it if needed.
func (r *ProductsRepository) EnsureCategory(ctx context.Context, code, name string) (*Category, error) {
	category := Category{Code: strings.ToLower(code), Name: name}
	if err := r.db.WithContext(ctx).
		Where(Category{Code: category.Code}).
		Attrs(Category{Name: name}).
		FirstOrCreate(&category).Error; err != nil {
		return nil, err
	}
	return &category, nil
}

// ExistingHashes maps the OpenDB ids stored for a category to their source hash.
func (r *ProductsRepository) ExistingHashes(ctx context.Context, categoryID uint) (map[uuid.UUID]string, error) {
	var rows []struct {
		OpenDBID   uuid.UUID `gorm:"column:opendb_id"`
		SourceHash string
	}
	if err := r.db.WithContext(ctx).
		Model(&Product{}).
		Select("opendb_id", "source_hash").
		Where("category_id = ?", categoryID).
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	hashes := make(map[uuid.UUID]string, len(rows))
	for _, row := range rows {
		hashes[row.OpenDBID] = row.SourceHash
	}
	return hashes, nil
}

// Upsert inserts products or overwrites the mapped columns of existing rows,
// keyed on (category_id, opendb_id).
func (r *ProductsRepository) Upsert(ctx context.Context, products []*Product) error {
	if len(products) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "category_id"}, {Name: "opendb_id"}},
			DoUpdates: clause.AssignmentColumns(upsertColumns),
		}).
		CreateInBatches(products, 100).Error
}

// TouchSynced bumps last_synced for records that were seen again without changes.
func (r *ProductsRepository) TouchSynced(ctx context.Context, categoryID uint, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&Product{}).
		Where("category_id = ? AND opendb_id IN ?", categoryID, ids).
		UpdateColumn("last_synced", at).Error
}

func (r *ProductsRepository) GetFilteredProducts(ctx context.Context, offset, limit int, filters ProductFilters) ([]Product, int64, error) {
	var products []Product
	var total int64

	query := r.db.WithContext(ctx).Model(&Product{}).
		Joins("LEFT JOIN categories ON categories.id = products.category_id")

	// Filter
	if filters.CategoryCode != "" {
		query = query.Where("categories.code = ?", strings.ToLower(filters.CategoryCode))
	}
	if filters.PriceLessThan != nil {
		query = query.Where("products.price < ?", *filters.PriceLessThan)
	}

	// Count total after filtering
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// Apply pagination
	if err := query.Preload("Category").Order("products.id").Offset(offset).Limit(limit).Find(&products).Error; err != nil {
		return nil, 0, err
	}

	return products, total, nil
}

func (r *ProductsRepository) GetByOpenDBID(ctx context.Context, id uuid.UUID) (*Product, error) {
	var product Product
	if err := r.db.WithContext(ctx).
		Preload("Category").
		Where("opendb_id = ?", id).
		First(&product).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err // Other DB error
	}
	return &product, nil
}

// CountByCategory returns the number of stored products per category code.
func (r *ProductsRepository) CountByCategory(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Code  string
		Total int64
	}
	if err := r.db.WithContext(ctx).
		Table("categories").
		Select("categories.code AS code, COUNT(products.id) AS total").
		Joins("LEFT JOIN products ON products.category_id = categories.id").
		Group("categories.code").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Code] = row.Total
	}
	return counts, nil
}
