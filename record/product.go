package record

import (
	"encoding/binary"
	"math"
)

// Product record layout, 87 bytes, all integers/floats little-endian:
//
//	[product_id:i64][category_alias:30B][price:f64][material:20B][stone:20B][0x0A]
const (
	ProductWidth = 87

	productCategoryWidth = 30
	productMaterialWidth = 20
	productStoneWidth    = 20
)

type Product struct {
	ProductID     int64
	CategoryAlias string
	Price         float64
	Material      string
	Stone         string
}

func (p Product) Key() int64 { return p.ProductID }

// ProductCodec encodes and decodes fixed-width Product records.
type ProductCodec struct{}

func (ProductCodec) Width() int { return ProductWidth }

func (ProductCodec) Encode(p Product) []byte {
	buf := make([]byte, ProductWidth)

	binary.LittleEndian.PutUint64(buf[0:8], uint64(p.ProductID))
	copy(buf[8:38], encodeText(p.CategoryAlias, productCategoryWidth))
	binary.LittleEndian.PutUint64(buf[38:46], math.Float64bits(p.Price))
	copy(buf[46:66], encodeText(p.Material, productMaterialWidth))
	copy(buf[66:86], encodeText(p.Stone, productStoneWidth))
	buf[86] = '\n'

	return buf
}

// Decode panics if buf is not exactly ProductWidth bytes — the caller
// (package store) always supplies a record-width slice, so a mismatch is a
// programming error, not a runtime condition to recover from.
func (ProductCodec) Decode(buf []byte) Product {
	if len(buf) != ProductWidth {
		panic("record: Product.Decode requires a buffer of ProductWidth bytes")
	}

	return Product{
		ProductID:     int64(binary.LittleEndian.Uint64(buf[0:8])),
		CategoryAlias: decodeText(buf[8:38]),
		Price:         math.Float64frombits(binary.LittleEndian.Uint64(buf[38:46])),
		Material:      decodeText(buf[46:66]),
		Stone:         decodeText(buf[66:86]),
	}
}
