package skypair

import (
	"errors"
	"testing"
)

func TestParseSkyPolygon(t *testing.T) {
	poly, err := ParseSkyPolygon(" 150.1,2.2; 150.2 , 2.2;150.2,2.3 ;")
	if err != nil {
		t.Fatalf("ParseSkyPolygon: %v", err)
	}
	want := SkyPolygon{{150.1, 2.2}, {150.2, 2.2}, {150.2, 2.3}}
	if len(poly) != len(want) {
		t.Fatalf("got %v, want %v", poly, want)
	}
	for i := range want {
		if poly[i] != want[i] {
			t.Errorf("corner %d = %v, want %v", i, poly[i], want[i])
		}
	}

	for _, bad := range []string{"", " ; ", "150.1", "150.1,2.2,3", "abc,1", "1,xyz"} {
		if _, err := ParseSkyPolygon(bad); err == nil {
			t.Errorf("ParseSkyPolygon(%q) accepted", bad)
		}
	}
	if _, err := ParseSkyPolygon(""); !errors.Is(err, ErrEmptyPolygon) {
		t.Errorf("empty: got %v", err)
	}
}

func TestParseDevice(t *testing.T) {
	tests := []struct {
		in      string
		want    Device
		wantErr bool
	}{
		{"", DeviceCPU, false},
		{"cpu", DeviceCPU, false},
		{" CUDA ", DeviceCUDA, false},
		{"cuda:0", "cuda:0", false},
		{"cuda:3", "cuda:3", false},
		{"mps", DeviceMPS, false},
		{"cuda:", "", true},
		{"cuda:-1", "", true},
		{"cuda:x", "", true},
		{"tpu", "", true},
	}
	for _, tt := range tests {
		got, err := ParseDevice(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidParams) {
				t.Errorf("ParseDevice(%q): got %v, want ErrInvalidParams", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseDevice(%q) = %q, %v, want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestCropParamsValidate(t *testing.T) {
	if err := NewCropParams().Validate(); err != nil {
		t.Errorf("defaults: %v", err)
	}
	for _, p := range []CropParams{{Margin: -1, MinSize: 100}, {Margin: 0, MinSize: 0}} {
		if err := p.Validate(); !errors.Is(err, ErrInvalidParams) {
			t.Errorf("%+v: got %v", p, err)
		}
	}
}

func TestTensorAt(t *testing.T) {
	tensor := newTensor(2, 3, DeviceCPU)
	for i := range tensor.Data {
		tensor.Data[i] = float32(i)
	}
	if got := tensor.At(0, 0, 1, 2); got != 5 {
		t.Errorf("At(0,0,1,2) = %v, want 5", got)
	}
	if got := tensor.String(); got != "Tensor[1 1 2 3]@cpu" {
		t.Errorf("String() = %q", got)
	}
}

func TestCropStatusString(t *testing.T) {
	for s, want := range map[CropStatus]string{CropOK: "OK", CropNoOverlap: "NoOverlap", CropTooSmall: "TooSmall", 9: "Unknown"} {
		if got := s.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(s), got, want)
		}
	}
}
