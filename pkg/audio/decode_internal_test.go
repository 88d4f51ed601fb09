package audio

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestDecodeAs_Layouts(t *testing.T) {
	f32 := make([]byte, 8)
	binary.LittleEndian.PutUint32(f32[0:], math.Float32bits(0.5))
	binary.LittleEndian.PutUint32(f32[4:], math.Float32bits(-0.125))
	got, ok := decodeAs(f32, EncodingFloat32LE)
	if !ok || len(got) != 2 || got[0] != 0.5 || got[1] != -0.125 {
		t.Errorf("f32le: got %v ok=%v", got, ok)
	}

	be := []byte{0x40, 0x00, 0xC0, 0x00}
	got, ok = decodeAs(be, EncodingInt16BE)
	if !ok || len(got) != 2 || got[0] != 0.5 || got[1] != -0.5 {
		t.Errorf("s16be: got %v ok=%v", got, ok)
	}

	if _, ok := decodeAs(make([]byte, 6), EncodingFloat32LE); ok {
		t.Error("f32le should reject lengths not divisible by 4")
	}
	if _, ok := decodeAs(make([]byte, 3), EncodingInt16BE); ok {
		t.Error("s16be should reject odd lengths")
	}
}

func TestEncoding_String(t *testing.T) {
	tests := map[Encoding]string{
		EncodingInt16LE:   "s16le",
		EncodingFloat32LE: "f32le",
		EncodingInt16BE:   "s16be",
		EncodingUnknown:   "unknown",
	}
	for enc, want := range tests {
		if got := enc.String(); got != want {
			t.Errorf("%d: got %q, want %q", enc, got, want)
		}
	}
}
