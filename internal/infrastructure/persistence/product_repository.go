package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/storefront/backend/internal/domain/catalog"
	"github.com/storefront/backend/internal/infrastructure/persistence/models"
)

// GormProductRepository implements catalog.Repository using GORM
type GormProductRepository struct {
	db *gorm.DB
}

// NewGormProductRepository creates a new GormProductRepository
func NewGormProductRepository(db *gorm.DB) *GormProductRepository {
	return &GormProductRepository{db: db}
}

// FindByID finds a product by ID
func (r *GormProductRepository) FindByID(ctx context.Context, id string) (*catalog.Product, error) {
	var model models.ProductModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, catalog.ErrProductNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByIDs loads several products at once, keyed by ID. Missing IDs are
// simply absent from the result.
func (r *GormProductRepository) FindByIDs(ctx context.Context, ids []string) (map[string]*catalog.Product, error) {
	out := make(map[string]*catalog.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.ProductModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for i := range rows {
		out[rows[i].ID] = rows[i].ToDomain()
	}
	return out, nil
}

// List returns a page of products and the total match count
func (r *GormProductRepository) List(ctx context.Context, filter catalog.ListFilter) ([]catalog.Product, int64, error) {
	filter.Normalize()

	query := r.db.WithContext(ctx).Model(&models.ProductModel{})
	if search := strings.TrimSpace(filter.Search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(description) LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	column := ResolveSortColumn(filter.OrderBy, ProductSortFields, "created_at")
	dir := ValidateSortOrder(filter.Order, "DESC")

	var rows []models.ProductModel
	if err := query.
		Order(clause.OrderByColumn{Column: clause.Column{Name: column}, Desc: dir == "DESC"}).
		Order("id ASC").
		Offset(filter.Offset()).
		Limit(filter.PageSize).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	products := make([]catalog.Product, len(rows))
	for i := range rows {
		products[i] = *rows[i].ToDomain()
	}
	return products, total, nil
}

// FindByPODProduct finds the local product linked to a partner product
func (r *GormProductRepository) FindByPODProduct(ctx context.Context, provider, podProductID string) (*catalog.Product, error) {
	var model models.ProductModel
	if err := r.db.WithContext(ctx).
		Where("pod_provider = ? AND pod_product_id = ?", provider, podProductID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, catalog.ErrProductNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Upsert inserts the product or updates every column except created_at
func (r *GormProductRepository) Upsert(ctx context.Context, p *catalog.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	var model models.ProductModel
	model.FromDomain(p)
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "description", "price", "stock", "category", "images",
			"metadata", "status", "pod_provider", "pod_product_id", "updated_at",
		}),
	}).Create(&model).Error
}

var _ catalog.Repository = (*GormProductRepository)(nil)
