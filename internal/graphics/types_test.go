package graphics

import (
	"bytes"
	"testing"
)

func TestRGBToBGRAConversion(t *testing.T) {
	img := NewImageData([]byte{255, 0, 0, 0, 255, 0, 0, 0, 255}, 3, 1, PixelRGB)
	img.ToBGRA()
	if img.Format != PixelBGRA {
		t.Fatalf("format = %v", img.Format)
	}
	want := []byte{0, 0, 255, 255, 0, 255, 0, 255, 255, 0, 0, 255}
	if !bytes.Equal(img.Data, want) {
		t.Fatalf("data = %v, want %v", img.Data, want)
	}
}

func TestRGBAToBGRAConversion(t *testing.T) {
	img := NewImageData([]byte{255, 0, 0, 128, 0, 255, 0, 64}, 2, 1, PixelRGBA)
	img.ToBGRA()
	if img.Format != PixelBGRA {
		t.Fatalf("format = %v", img.Format)
	}
	want := []byte{0, 0, 255, 128, 0, 255, 0, 64}
	if !bytes.Equal(img.Data, want) {
		t.Fatalf("data = %v, want %v", img.Data, want)
	}
}

func TestBGRAToBGRAIsNoop(t *testing.T) {
	original := []byte{10, 20, 30, 40}
	img := NewImageData(append([]byte{}, original...), 1, 1, PixelBGRA)
	img.ToBGRA()
	if !bytes.Equal(img.Data, original) {
		t.Fatalf("data = %v, want unchanged %v", img.Data, original)
	}
}

func TestImagePlacementDefaults(t *testing.T) {
	p := NewImagePlacement(ImageID(42))
	if p.ImageID != 42 || p.PlacementID != 0 || p.ZIndex != 0 || p.Columns != 0 || p.Rows != 0 {
		t.Fatalf("placement = %+v", p)
	}
}

func TestImageDataByteSize(t *testing.T) {
	img := NewImageData(make([]byte, 100), 5, 5, PixelRGBA)
	if img.ByteSize() != 100 {
		t.Fatalf("byte size = %d", img.ByteSize())
	}
}
