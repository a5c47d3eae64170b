package firestore

import (
	"context"
	"errors"

	platformfs "github.com/clearbay/orders/internal/platform/firestore"
	"github.com/clearbay/orders/internal/repositories"
)

const productsCollection = "products"

type productDoc struct {
	Name   string  `firestore:"name"`
	Price  float64 `firestore:"price"`
	Active bool    `firestore:"active"`
}

// CatalogRepository reads product snapshots used to enrich order line items.
type CatalogRepository struct {
	products *platformfs.BaseRepository[productDoc]
}

// NewCatalogRepository binds the repository to the provider's client.
func NewCatalogRepository(provider *platformfs.Provider) (*CatalogRepository, error) {
	if provider == nil {
		return nil, errors.New("firestore: provider is required")
	}
	return &CatalogRepository{
		products: platformfs.NewBaseRepository[productDoc](provider, productsCollection),
	}, nil
}

func (r *CatalogRepository) FindProduct(ctx context.Context, productID string) (repositories.ProductRecord, error) {
	doc, err := r.products.Get(ctx, productID)
	if err != nil {
		return repositories.ProductRecord{}, err
	}
	return repositories.ProductRecord{
		ID:     doc.ID,
		Name:   doc.Data.Name,
		Price:  doc.Data.Price,
		Active: doc.Data.Active,
	}, nil
}
