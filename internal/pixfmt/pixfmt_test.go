package pixfmt

import (
	"bytes"
	"testing"

	"github.com/PZwoodcat/Oleppy-Free/internal/faults"
)

func fillBGRA(w, h, stride int, b, g, r byte) []byte {
	buf := make([]byte, stride*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			p := y*stride + x*4
			buf[p], buf[p+1], buf[p+2], buf[p+3] = b, g, r, 0xFF
		}
	}
	return buf
}

func TestFrameSize(t *testing.T) {
	tests := []struct {
		format Format
		w, h   int
		want   int
	}{
		{BGRA, 64, 64, 64 * 64 * 4},
		{RGBA, 3, 2, 24},
		{NV12, 64, 64, 64*64 + 2*32*32},
		{I420, 5, 3, 15 + 2*3*2},
		{Format("bogus"), 4, 4, 0},
	}
	for _, tt := range tests {
		if got := FrameSize(tt.format, tt.w, tt.h); got != tt.want {
			t.Errorf("FrameSize(%s, %d, %d) = %d, want %d", tt.format, tt.w, tt.h, got, tt.want)
		}
	}
}

func TestParse(t *testing.T) {
	if f, err := Parse(" BGRA "); err != nil || f != BGRA {
		t.Errorf("Parse(BGRA) = %q, %v", f, err)
	}
	if f, err := Parse("i420"); err != nil || f != I420 {
		t.Errorf("Parse(i420) = %q, %v", f, err)
	}
	_, err := Parse("nv21")
	if faults.KindOf(err) != faults.KindFatalConfig {
		t.Errorf("expected fatal config error, got %v", err)
	}
}

func TestLookupUnknownPair(t *testing.T) {
	r := NewRegistry()
	RegisterBuiltins(r)

	if _, err := r.Lookup(NV12, BGRA); faults.KindOf(err) != faults.KindFatalConfig {
		t.Errorf("expected fatal config for nv12->bgra, got %v", err)
	}
	if _, err := r.Lookup(BGRA, NV12); err != nil {
		t.Errorf("bgra->nv12 should be registered: %v", err)
	}
}

func TestRegisterOverridesPair(t *testing.T) {
	r := NewRegistry()
	called := false
	r.Register(BGRA, BGRA, func(_, _ []byte, _, _, _ int) error {
		called = true
		return nil
	})
	conv, err := r.Lookup(BGRA, BGRA)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	_ = conv(nil, nil, 0, 0, 0)
	if !called {
		t.Error("custom conversion was not used")
	}
	if got := len(r.Pairs()); got != 1 {
		t.Errorf("Pairs() length = %d, want 1", got)
	}
}

func TestCopyPackedStripsPadding(t *testing.T) {
	const w, h, stride = 3, 2, 16
	src := fillBGRA(w, h, stride, 1, 2, 3)
	dst := make([]byte, FrameSize(BGRA, w, h))

	conv, _ := Default().Lookup(BGRA, BGRA)
	if err := conv(dst, src, w, h, stride); err != nil {
		t.Fatalf("convert failed: %v", err)
	}
	want := bytes.Repeat([]byte{1, 2, 3, 0xFF}, w*h)
	if !bytes.Equal(dst, want) {
		t.Errorf("dst = %v, want %v", dst, want)
	}
}

func TestSwapRB(t *testing.T) {
	src := fillBGRA(2, 1, 8, 10, 20, 30)
	dst := make([]byte, 8)
	conv, _ := Default().Lookup(BGRA, RGBA)
	if err := conv(dst, src, 2, 1, 8); err != nil {
		t.Fatalf("convert failed: %v", err)
	}
	if !bytes.Equal(dst[:4], []byte{30, 20, 10, 0xFF}) {
		t.Errorf("pixel = %v, want [30 20 10 255]", dst[:4])
	}
}

func TestBGRAToNV12Colors(t *testing.T) {
	tests := []struct {
		name    string
		b, g, r byte
		y, u, v byte
	}{
		{"white", 255, 255, 255, 235, 128, 128},
		{"black", 0, 0, 0, 16, 128, 128},
		{"red", 0, 0, 255, 82, 90, 240},
	}

	const w, h = 4, 4
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := fillBGRA(w, h, w*4, tt.b, tt.g, tt.r)
			dst := make([]byte, FrameSize(NV12, w, h))
			conv, _ := Default().Lookup(BGRA, NV12)
			if err := conv(dst, src, w, h, w*4); err != nil {
				t.Fatalf("convert failed: %v", err)
			}
			for i := 0; i < w*h; i++ {
				if dst[i] != tt.y {
					t.Fatalf("Y[%d] = %d, want %d", i, dst[i], tt.y)
				}
			}
			uv := dst[w*h:]
			for i := 0; i < len(uv); i += 2 {
				if uv[i] != tt.u || uv[i+1] != tt.v {
					t.Fatalf("UV[%d] = (%d,%d), want (%d,%d)", i/2, uv[i], uv[i+1], tt.u, tt.v)
				}
			}
		})
	}
}

func TestBGRAToI420OddSize(t *testing.T) {
	const w, h = 3, 3
	src := fillBGRA(w, h, w*4, 0, 0, 255)
	dst := make([]byte, FrameSize(I420, w, h))
	conv, _ := Default().Lookup(BGRA, I420)
	if err := conv(dst, src, w, h, w*4); err != nil {
		t.Fatalf("convert failed: %v", err)
	}
	u := dst[w*h : w*h+4]
	v := dst[w*h+4:]
	for i := range u {
		if u[i] != 90 || v[i] != 240 {
			t.Errorf("chroma[%d] = (%d,%d), want (90,240)", i, u[i], v[i])
		}
	}
}

func TestConvertShortBuffers(t *testing.T) {
	conv, _ := Default().Lookup(BGRA, NV12)
	src := make([]byte, 10)
	dst := make([]byte, FrameSize(NV12, 4, 4))
	if err := conv(dst, src, 4, 4, 16); faults.KindOf(err) != faults.KindUsage {
		t.Errorf("expected usage error for short source, got %v", err)
	}
	if err := conv(dst, make([]byte, 64), 4, 4, 8); faults.KindOf(err) != faults.KindUsage {
		t.Errorf("expected usage error for short stride, got %v", err)
	}
}
