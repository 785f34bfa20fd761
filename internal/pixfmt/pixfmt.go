// Package pixfmt describes raw pixel layouts and converts between them.
//
// Conversions are looked up by (input, output) pair so a new encoder path
// only has to register the conversion it needs:
//
//	conv, err := pixfmt.Default().Lookup(pixfmt.BGRA, pixfmt.NV12)
//	dst := make([]byte, pixfmt.FrameSize(pixfmt.NV12, w, h))
//	err = conv(dst, src, w, h, stride)
package pixfmt

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/PZwoodcat/Oleppy-Free/internal/faults"
)

// Format is a raw pixel layout.
type Format string

// Supported formats.
const (
	BGRA Format = "bgra" // packed 32-bit, B G R A byte order
	RGBA Format = "rgba" // packed 32-bit, R G B A byte order
	NV12 Format = "nv12" // planar Y + interleaved UV, 4:2:0
	I420 Format = "yuv420p"
)

// BytesPerPixel returns the packed pixel size, or 0 for planar formats.
func (f Format) BytesPerPixel() int {
	switch f {
	case BGRA, RGBA:
		return 4
	default:
		return 0
	}
}

// Planar reports whether f stores luma and chroma in separate planes.
func (f Format) Planar() bool {
	return f == NV12 || f == I420
}

// FFmpegName returns the name ffmpeg uses for -pix_fmt.
func (f Format) FFmpegName() string {
	return string(f)
}

// Parse converts a config string into a Format.
func Parse(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case BGRA, RGBA, NV12, I420:
		return f, nil
	case "i420":
		return I420, nil
	default:
		return "", faults.New(faults.KindFatalConfig, faults.CodeUnsupported,
			fmt.Sprintf("unknown pixel format %q", s))
	}
}

// FrameSize returns the tightly packed byte size of one w×h frame.
func FrameSize(f Format, w, h int) int {
	switch f {
	case BGRA, RGBA:
		return w * h * 4
	case NV12, I420:
		cw, ch := (w+1)/2, (h+1)/2
		return w*h + 2*cw*ch
	default:
		return 0
	}
}

// ConvertFunc converts one frame. stride is the source row pitch in bytes.
// dst must be at least FrameSize(output, w, h) bytes.
type ConvertFunc func(dst, src []byte, w, h, stride int) error

// Pair keys a conversion.
type Pair struct {
	In  Format
	Out Format
}

func (p Pair) String() string {
	return string(p.In) + "->" + string(p.Out)
}

// Registry maps format pairs to conversions.
type Registry struct {
	mu    sync.RWMutex
	convs map[Pair]ConvertFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{convs: make(map[Pair]ConvertFunc)}
}

// Register adds or replaces the conversion for in -> out.
func (r *Registry) Register(in, out Format, fn ConvertFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.convs[Pair{In: in, Out: out}] = fn
}

// Lookup returns the conversion for in -> out. A missing pair is a
// fatal configuration error.
func (r *Registry) Lookup(in, out Format) (ConvertFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.convs[Pair{In: in, Out: out}]
	if !ok {
		return nil, faults.New(faults.KindFatalConfig, faults.CodeUnsupported,
			fmt.Sprintf("no pixel conversion %s", Pair{In: in, Out: out}))
	}
	return fn, nil
}

// Pairs lists registered conversions in a stable order.
func (r *Registry) Pairs() []Pair {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pairs := make([]Pair, 0, len(r.convs))
	for p := range r.convs {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].String() < pairs[j].String()
	})
	return pairs
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// Default returns the registry pre-loaded with the built-in conversions.
func Default() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry()
		RegisterBuiltins(defaultRegistry)
	})
	return defaultRegistry
}

// RegisterBuiltins adds the packed BGRA conversions.
func RegisterBuiltins(r *Registry) {
	r.Register(BGRA, BGRA, copyPacked)
	r.Register(RGBA, RGBA, copyPacked)
	r.Register(BGRA, RGBA, swapRB)
	r.Register(RGBA, BGRA, swapRB)
	r.Register(BGRA, NV12, bgraToNV12)
	r.Register(BGRA, I420, bgraToI420)
}
