// Package catalog is the thin facade over package store that wires up the
// two entity stores (Product, Order) this system ships, matching the
// operational surface spec.md §6 names. It owns no algorithm of its own and
// defines no operations: callers invoke the store.Store[T] methods directly
// on the stores it wires up.
package catalog

import (
	"path/filepath"

	"github.com/marianasilva/registro-go/record"
	"github.com/marianasilva/registro-go/store"
)

// DefaultSparsityFactor is a sparsity factor callers can pass to Open,
// NewProductStore or NewOrderStore when they have no specific value in mind;
// none of those functions apply it on their own.
const DefaultSparsityFactor = 10

const (
	productPrimaryFile  = "products.dat"
	productOverflowFile = "products.overflow.dat"
	productIndexFile    = "products.index.dat"

	orderPrimaryFile  = "orders.dat"
	orderOverflowFile = "orders.overflow.dat"
	orderIndexFile    = "orders.index.dat"
)

// NewProductStore wires a Product store to files inside dir.
func NewProductStore(dir string, sparsityFactor uint32) *store.Store[record.Product] {
	return store.New[record.Product](
		filepath.Join(dir, productPrimaryFile),
		filepath.Join(dir, productOverflowFile),
		filepath.Join(dir, productIndexFile),
		record.ProductCodec{},
		sparsityFactor,
	)
}

// NewOrderStore wires an Order store to files inside dir.
func NewOrderStore(dir string, sparsityFactor uint32) *store.Store[record.Order] {
	return store.New[record.Order](
		filepath.Join(dir, orderPrimaryFile),
		filepath.Join(dir, orderOverflowFile),
		filepath.Join(dir, orderIndexFile),
		record.OrderCodec{},
		sparsityFactor,
	)
}

// Catalog bundles the Product and Order stores that back one data
// directory, the way the original system's menu operated on both entity
// kinds against the same collection of files.
type Catalog struct {
	Products *store.Store[record.Product]
	Orders   *store.Store[record.Order]
}

// Open wires both entity stores to dir with the given sparsity factor. It
// performs no I/O — callers load or build each store's index explicitly,
// same as store.New.
func Open(dir string, sparsityFactor uint32) *Catalog {
	return &Catalog{
		Products: NewProductStore(dir, sparsityFactor),
		Orders:   NewOrderStore(dir, sparsityFactor),
	}
}
