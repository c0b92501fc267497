package record

import (
	"encoding/binary"
	"math"
)

// Order record layout, 62 bytes, all integers/floats little-endian:
//
//	[order_id:i64][user_id:i64][event_time:30B][product_id:i64][price:f64]
const (
	OrderWidth = 62

	orderEventTimeWidth = 30
)

type Order struct {
	OrderID   int64
	UserID    int64
	EventTime string
	ProductID int64
	Price     float64
}

func (o Order) Key() int64 { return o.OrderID }

// OrderCodec encodes and decodes fixed-width Order records.
type OrderCodec struct{}

func (OrderCodec) Width() int { return OrderWidth }

func (OrderCodec) Encode(o Order) []byte {
	buf := make([]byte, OrderWidth)

	binary.LittleEndian.PutUint64(buf[0:8], uint64(o.OrderID))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(o.UserID))
	copy(buf[16:46], encodeText(o.EventTime, orderEventTimeWidth))
	binary.LittleEndian.PutUint64(buf[46:54], uint64(o.ProductID))
	binary.LittleEndian.PutUint64(buf[54:62], math.Float64bits(o.Price))

	return buf
}

func (OrderCodec) Decode(buf []byte) Order {
	if len(buf) != OrderWidth {
		panic("record: Order.Decode requires a buffer of OrderWidth bytes")
	}

	return Order{
		OrderID:   int64(binary.LittleEndian.Uint64(buf[0:8])),
		UserID:    int64(binary.LittleEndian.Uint64(buf[8:16])),
		EventTime: decodeText(buf[16:46]),
		ProductID: int64(binary.LittleEndian.Uint64(buf[46:54])),
		Price:     math.Float64frombits(binary.LittleEndian.Uint64(buf[54:62])),
	}
}
