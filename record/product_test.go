package record

import "testing"

func TestProductEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		p    Product
	}{
		{"basic", Product{ProductID: 1, CategoryAlias: "ring", Price: 199.99, Material: "gold", Stone: "ruby"}},
		{"empty text", Product{ProductID: 2, CategoryAlias: "", Price: 0, Material: "", Stone: ""}},
		{"max width text", Product{ProductID: 3, CategoryAlias: "123456789012345678901234567890", Price: 1.5, Material: "12345678901234567890", Stone: "12345678901234567890"}},
		{"negative price", Product{ProductID: 4, CategoryAlias: "necklace", Price: -1.25, Material: "silver", Stone: "none"}},
	}

	var codec ProductCodec
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := codec.Encode(tt.p)
			if len(buf) != ProductWidth {
				t.Fatalf("expected %d bytes, got %d", ProductWidth, len(buf))
			}
			if buf[ProductWidth-1] != '\n' {
				t.Fatalf("expected trailing newline filler")
			}

			got := codec.Decode(buf)
			if got != tt.p {
				t.Fatalf("round trip mismatch: got %+v, want %+v", got, tt.p)
			}
		})
	}
}

func TestProductEncodeTruncatesOverflowingText(t *testing.T) {
	var codec ProductCodec
	long := "this category alias is definitely longer than thirty bytes"
	p := Product{ProductID: 5, CategoryAlias: long}
	buf := codec.Encode(p)

	got := codec.Decode(buf)
	if len(got.CategoryAlias) > productCategoryWidth {
		t.Fatalf("expected truncation to <= %d bytes, got %d", productCategoryWidth, len(got.CategoryAlias))
	}
	want := long[:productCategoryWidth]
	if got.CategoryAlias != want {
		t.Fatalf("unexpected truncated value: got %q, want %q", got.CategoryAlias, want)
	}
}

func TestProductTombstoneKey(t *testing.T) {
	var codec ProductCodec
	p := Product{ProductID: TombstoneKey, CategoryAlias: "whatever"}
	buf := codec.Encode(p)

	got := codec.Decode(buf)
	if !IsTombstone(got.Key()) {
		t.Fatalf("expected tombstone key, got %d", got.Key())
	}
}

func TestProductDecodePanicsOnWrongLength(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on wrong-length buffer")
		}
	}()

	var codec ProductCodec
	codec.Decode(make([]byte, ProductWidth-1))
}
