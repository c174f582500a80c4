package tensor

import (
	"testing"

	"github.com/euler-graph/euler/status"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name  string
		mk    func() *Tensor
	}{
		{"i32", func() *Tensor {
			tt := New(I32, Shape{2, 3}, "default")
			for i := range tt.data {
				tt.data[i] = byte(i)
			}
			return tt
		}},
		{"f64-scalar", func() *Tensor {
			return New(F64, Shape{}, "default")
		}},
		{"string-with-embedded-nul", func() *Tensor {
			tt := New(String, Shape{3}, "default")
			tt.strs[0] = "hello"
			tt.strs[1] = "wo\x00rld"
			tt.strs[2] = ""
			return tt
		}},
	}

	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			orig := c.mk()
			wire, err := Encode(orig)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			got, err := Decode(wire)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if got.DType != orig.DType {
				t.Fatalf("dtype mismatch: got %v want %v", got.DType, orig.DType)
			}
			if !got.Shape.Equal(orig.Shape) {
				t.Fatalf("shape mismatch: got %v want %v", got.Shape, orig.Shape)
			}
			if orig.DType == String {
				if len(got.strs) != len(orig.strs) {
					t.Fatalf("string count mismatch: got %d want %d", len(got.strs), len(orig.strs))
				}
				for i := range orig.strs {
					if got.strs[i] != orig.strs[i] {
						t.Fatalf("string[%d] mismatch: got %q want %q", i, got.strs[i], orig.strs[i])
					}
				}
				return
			}
			if string(got.data) != string(orig.data) {
				t.Fatalf("content mismatch: got %v want %v", got.data, orig.data)
			}
		})
	}
}

func TestDecodeTruncated(t *testing.T) {
	orig := New(I64, Shape{4}, "default")
	wire, err := Encode(orig)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := Decode(wire[:len(wire)-1]); err == nil {
		t.Fatal("expected error decoding truncated buffer")
	}
}

func TestEncodeDecodeCompressedRoundTrip(t *testing.T) {
	orig := New(I64, Shape{8}, "default")
	for i := range orig.data {
		orig.data[i] = byte(i)
	}
	wire, err := EncodeCompressed(orig)
	if err != nil {
		t.Fatalf("EncodeCompressed: %v", err)
	}
	got, err := DecodeCompressed(wire)
	if err != nil {
		t.Fatalf("DecodeCompressed: %v", err)
	}
	if got.DType != orig.DType || !got.Shape.Equal(orig.Shape) {
		t.Fatalf("dtype/shape mismatch: got %v/%v want %v/%v", got.DType, got.Shape, orig.DType, orig.Shape)
	}
	if string(got.data) != string(orig.data) {
		t.Fatalf("content mismatch after compressed round trip")
	}
}

func TestDecodeCompressedCorrupt(t *testing.T) {
	if _, err := DecodeCompressed([]byte{0xff, 0xff, 0xff}); err == nil {
		t.Fatal("expected error decoding corrupt compressed buffer")
	}
}

func TestContextAliasDedupDestruction(t *testing.T) {
	ctx := NewContext()
	base, err := ctx.Allocate("op,1:0", I32, Shape{4})
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if err := ctx.InstallAlias("as,2:0", base); err != nil {
		t.Fatalf("InstallAlias: %v", err)
	}
	if _, err := ctx.Allocate("op,1:0", I32, Shape{4}); status.Of(err) != status.AlreadyExists {
		t.Fatalf("expected AlreadyExists re-inserting a live name")
	}
	ctx.Deallocate("op,1:0")
	// alias still holds a reference: lookups on it should still succeed.
	if _, err := ctx.Get("as,2:0"); err != nil {
		t.Fatalf("alias should survive original deallocation: %v", err)
	}
	ctx.Deallocate("as,2:0")
	if _, err := ctx.Get("as,2:0"); err == nil {
		t.Fatal("expected NotFound after last alias deallocated")
	}
}
