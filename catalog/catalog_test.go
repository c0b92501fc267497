package catalog

import (
	"testing"

	"github.com/marianasilva/registro-go/record"
)

func TestCatalogOpenWiresBothStoresIndependently(t *testing.T) {
	dir := t.TempDir()
	c := Open(dir, DefaultSparsityFactor)

	products := []record.Product{
		{ProductID: 1, CategoryAlias: "ring", Price: 10, Material: "gold", Stone: "ruby"},
	}
	orders := []record.Order{
		{OrderID: 1, UserID: 7, EventTime: "2026-07-31", ProductID: 1, Price: 10},
	}

	if err := c.Products.BulkLoadOrdered(products); err != nil {
		t.Fatal(err)
	}
	if err := c.Orders.BulkLoadOrdered(orders); err != nil {
		t.Fatal(err)
	}
	if err := c.Products.BuildIndex(); err != nil {
		t.Fatal(err)
	}
	if err := c.Orders.BuildIndex(); err != nil {
		t.Fatal(err)
	}

	gotProduct, ok, err := c.Products.LookupByKey(1)
	if err != nil || !ok {
		t.Fatalf("expected product 1 found, got ok=%v err=%v", ok, err)
	}
	if gotProduct.Material != "gold" {
		t.Fatalf("unexpected product: %+v", gotProduct)
	}

	gotOrder, ok, err := c.Orders.LookupByKey(1)
	if err != nil || !ok {
		t.Fatalf("expected order 1 found, got ok=%v err=%v", ok, err)
	}
	if gotOrder.UserID != 7 {
		t.Fatalf("unexpected order: %+v", gotOrder)
	}

	if _, ok, _ := c.Products.LookupByKey(2); ok {
		t.Fatal("expected no product 2")
	}
}

func TestOrderLookupThroughSparseIndex(t *testing.T) {
	dir := t.TempDir()
	orderStore := NewOrderStore(dir, 10)

	orders := make([]record.Order, 50)
	for i := range orders {
		orders[i] = record.Order{OrderID: int64(i + 1), UserID: int64(i), EventTime: "2026-07-31", ProductID: int64(i), Price: float64(i)}
	}
	if err := orderStore.BulkLoadOrdered(orders); err != nil {
		t.Fatal(err)
	}
	if err := orderStore.BuildIndex(); err != nil {
		t.Fatal(err)
	}

	got, ok, err := orderStore.LookupByKey(25)
	if err != nil || !ok {
		t.Fatalf("expected order 25 found, got ok=%v err=%v", ok, err)
	}
	if got.OrderID != 25 {
		t.Fatalf("unexpected order: %+v", got)
	}
}
