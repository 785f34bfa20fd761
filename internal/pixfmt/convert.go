package pixfmt

import (
	"fmt"

	"github.com/PZwoodcat/Oleppy-Free/internal/faults"
)

func checkPacked(dst, src []byte, w, h, stride int, out Format) error {
	if w <= 0 || h <= 0 {
		return faults.New(faults.KindFatalConfig, faults.CodeInvalidConfig,
			fmt.Sprintf("invalid frame size %dx%d", w, h))
	}
	if stride < w*4 {
		return faults.New(faults.KindUsage, faults.CodeShortBuffer,
			fmt.Sprintf("stride %d shorter than row %d", stride, w*4))
	}
	if need := stride*(h-1) + w*4; len(src) < need {
		return faults.New(faults.KindUsage, faults.CodeShortBuffer,
			fmt.Sprintf("source has %d bytes, need %d", len(src), need))
	}
	if need := FrameSize(out, w, h); len(dst) < need {
		return faults.New(faults.KindUsage, faults.CodeShortBuffer,
			fmt.Sprintf("destination has %d bytes, need %d", len(dst), need))
	}
	return nil
}

func copyPacked(dst, src []byte, w, h, stride int) error {
	if err := checkPacked(dst, src, w, h, stride, BGRA); err != nil {
		return err
	}
	row := w * 4
	if stride == row {
		copy(dst, src[:row*h])
		return nil
	}
	for y := 0; y < h; y++ {
		copy(dst[y*row:(y+1)*row], src[y*stride:y*stride+row])
	}
	return nil
}

func swapRB(dst, src []byte, w, h, stride int) error {
	if err := checkPacked(dst, src, w, h, stride, RGBA); err != nil {
		return err
	}
	row := w * 4
	for y := 0; y < h; y++ {
		s := src[y*stride : y*stride+row]
		d := dst[y*row : (y+1)*row]
		for x := 0; x < row; x += 4 {
			d[x], d[x+1], d[x+2], d[x+3] = s[x+2], s[x+1], s[x], s[x+3]
		}
	}
	return nil
}

// BT.601 limited range.
func luma(r, g, b int) byte {
	return byte(((66*r + 129*g + 25*b + 128) >> 8) + 16)
}

func chroma(r, g, b int) (u, v byte) {
	u = byte(((-38*r - 74*g + 112*b + 128) >> 8) + 128)
	v = byte(((112*r - 94*g - 18*b + 128) >> 8) + 128)
	return u, v
}

// yuv420 writes the luma plane and calls put for every 2x2 chroma block
// with the block's averaged chroma.
func yuv420(dst, src []byte, w, h, stride int, put func(cx, cy int, u, v byte)) {
	for y := 0; y < h; y++ {
		s := src[y*stride:]
		d := dst[y*w:]
		for x := 0; x < w; x++ {
			b, g, r := int(s[x*4]), int(s[x*4+1]), int(s[x*4+2])
			d[x] = luma(r, g, b)
		}
	}

	cw, ch := (w+1)/2, (h+1)/2
	for cy := 0; cy < ch; cy++ {
		for cx := 0; cx < cw; cx++ {
			var rs, gs, bs, n int
			for dy := 0; dy < 2; dy++ {
				y := cy*2 + dy
				if y >= h {
					continue
				}
				for dx := 0; dx < 2; dx++ {
					x := cx*2 + dx
					if x >= w {
						continue
					}
					p := y*stride + x*4
					bs += int(src[p])
					gs += int(src[p+1])
					rs += int(src[p+2])
					n++
				}
			}
			u, v := chroma(rs/n, gs/n, bs/n)
			put(cx, cy, u, v)
		}
	}
}

func bgraToNV12(dst, src []byte, w, h, stride int) error {
	if err := checkPacked(dst, src, w, h, stride, NV12); err != nil {
		return err
	}
	cw := (w + 1) / 2
	uv := dst[w*h:]
	yuv420(dst, src, w, h, stride, func(cx, cy int, u, v byte) {
		i := (cy*cw + cx) * 2
		uv[i], uv[i+1] = u, v
	})
	return nil
}

func bgraToI420(dst, src []byte, w, h, stride int) error {
	if err := checkPacked(dst, src, w, h, stride, I420); err != nil {
		return err
	}
	cw, ch := (w+1)/2, (h+1)/2
	uPlane := dst[w*h : w*h+cw*ch]
	vPlane := dst[w*h+cw*ch : w*h+2*cw*ch]
	yuv420(dst, src, w, h, stride, func(cx, cy int, u, v byte) {
		uPlane[cy*cw+cx] = u
		vPlane[cy*cw+cx] = v
	})
	return nil
}
