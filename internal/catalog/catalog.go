// Package catalog resolves the product a message is about into display
// metadata. Lookups are cached; failures are not.
package catalog

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultCacheSize = 256

type Product struct {
	ID       int64
	SellerID int64
	Title    string
	Category string
	Unit     string
	Price    int64
}

// Label is the short text shown next to a message that links this product.
func (p Product) Label() string {
	if p.Unit == "" {
		return fmt.Sprintf("%s (Rp %d)", p.Title, p.Price)
	}
	return fmt.Sprintf("%s (Rp %d/%s)", p.Title, p.Price, p.Unit)
}

type Source interface {
	Product(ctx context.Context, id int64) (Product, error)
}

type Lookup struct {
	src   Source
	cache *lru.Cache[int64, Product]
}

func NewLookup(src Source, size int) (*Lookup, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[int64, Product](size)
	if err != nil {
		return nil, fmt.Errorf("catalog cache: %w", err)
	}
	return &Lookup{src: src, cache: cache}, nil
}

func (l *Lookup) Product(ctx context.Context, id int64) (Product, error) {
	if p, ok := l.cache.Get(id); ok {
		return p, nil
	}
	p, err := l.src.Product(ctx, id)
	if err != nil {
		return Product{}, fmt.Errorf("lookup product %d: %w", id, err)
	}
	l.cache.Add(id, p)
	return p, nil
}

// Forget drops a cached product, e.g. after its listing changed.
func (l *Lookup) Forget(id int64) {
	l.cache.Remove(id)
}
