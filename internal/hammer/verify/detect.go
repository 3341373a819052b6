package verify

import (
	"github.com/G-Research/mediahammer/internal/media"
)

// BlackThreshold is the brightest channel value still considered black.
const BlackThreshold = 15

// ITU-R BT.601 luma coefficients.
const (
	kr = 0.299
	kg = 0.587
	kb = 0.114
)

// AudioDetected reports whether the frame is not silent: some sample is below -1 and some sample is
// above +1.
func AudioDetected(frame media.AudioFrame) bool {
	n := frame.SampleCount()
	if n == 0 {
		return false
	}
	lowest, highest := frame.Sample(0), frame.Sample(0)
	for i := 1; i < n; i++ {
		sample := frame.Sample(i)
		if sample < lowest {
			lowest = sample
		}
		if sample > highest {
			highest = sample
		}
	}
	return lowest < -1 && highest > 1
}

// VideoDetected reports whether the centre pixel of the frame is not black.
func VideoDetected(frame media.VideoFrame) bool {
	if frame.Buffer == nil || !frame.Buffer.Valid() {
		return false
	}
	r, g, b := CenterPixel(frame.Buffer)
	return max(r, g, b) > BlackThreshold
}

// CenterPixel returns the colour of the pixel at the geometric centre of the buffer. Planar buffers are
// converted from full-range YCbCr, each channel truncated and clamped to [0, 255]. A buffer that is not
// Valid reads as black.
func CenterPixel(buffer *media.VideoBuffer) (r, g, b int) {
	if !buffer.Valid() {
		return 0, 0, 0
	}
	x, y := buffer.Width/2, buffer.Height/2
	if buffer.Format.IsRGBType() {
		return buffer.RGB(y*buffer.Width + x)
	}

	yIndex := y*buffer.Width + x
	uvIndex := (y/2)*(buffer.Width/2) + x/2
	luma := float64(buffer.Y(yIndex))
	cb := float64(buffer.U(uvIndex) - 128)
	cr := float64(buffer.V(uvIndex) - 128)

	r = clamp(luma + 2*cr*(1-kr))
	g = clamp(luma - 2*cb*(1-kb)*kb/kg - 2*cr*(1-kr)*kr/kg)
	b = clamp(luma + 2*cb*(1-kb))
	return r, g, b
}

func clamp(v float64) int {
	return max(0, min(255, int(v)))
}
