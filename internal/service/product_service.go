package service

import (
	"context"
	"time"

	"storefront/internal/models"
	"storefront/internal/querycache"
	"storefront/internal/store"
)

// ProductLookup is the cached result of a lookup by id.
type ProductLookup struct {
	Product models.Product
	Found   bool
}

// ProductService serves the read-only catalogue
type ProductService struct {
	backend store.Backend
	cache   *querycache.Cache
	stale   time.Duration
}

func NewProductService(backend store.Backend, cache *querycache.Cache, stale time.Duration) *ProductService {
	return &ProductService{backend: backend, cache: cache, stale: stale}
}

// List returns every product, or only those in category unless it is "all"
func (s *ProductService) List(ctx context.Context, category string) querycache.Result[[]models.Product] {
	res := querycache.Query(ctx, s.cache, KeyProducts, s.backend.GetProducts, querycache.Options{StaleTime: s.stale})
	return filtered(res, func(products []models.Product) []models.Product {
		if category == "" || category == FilterAll {
			return products
		}
		out := make([]models.Product, 0, len(products))
		for _, p := range products {
			if p.Category == category {
				out = append(out, p)
			}
		}
		return out
	})
}

// Categories returns the distinct categories in catalogue order
func (s *ProductService) Categories(ctx context.Context) ([]string, error) {
	res := s.List(ctx, FilterAll)
	if !res.HasData {
		return nil, res.Err
	}
	seen := make(map[string]bool)
	out := make([]string, 0)
	for _, p := range res.Data {
		if !seen[p.Category] {
			seen[p.Category] = true
			out = append(out, p.Category)
		}
	}
	return out, nil
}

// Get looks up one product. A missing id is reported with found=false,
// not as an error.
func (s *ProductService) Get(ctx context.Context, id string) (models.Product, bool, error) {
	fetch := func(ctx context.Context) (ProductLookup, error) {
		products, err := s.backend.GetProducts(ctx)
		if err != nil {
			return ProductLookup{}, err
		}
		for _, p := range products {
			if p.ID == id {
				return ProductLookup{Product: p, Found: true}, nil
			}
		}
		return ProductLookup{}, nil
	}

	res := querycache.Query(ctx, s.cache, querycache.KeyOf(KeyProducts, id), fetch, querycache.Options{StaleTime: s.stale})
	if !res.HasData {
		return models.Product{}, false, res.Err
	}
	return res.Data.Product, res.Data.Found, nil
}
