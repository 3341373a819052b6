package media

import (
	"encoding/binary"
	"fmt"
)

// AudioFrame carries signed 16-bit little-endian PCM.
type AudioFrame struct {
	Data       []byte
	SampleRate int
	Channels   int
}

// SampleCount is the number of whole samples in the frame.
func (f AudioFrame) SampleCount() int {
	return len(f.Data) / 2
}

// Sample returns the i-th sample.
func (f AudioFrame) Sample(i int) int16 {
	return int16(binary.LittleEndian.Uint16(f.Data[i*2:]))
}

// VideoFormat is the pixel layout of a VideoBuffer.
type VideoFormat int

const (
	RGB VideoFormat = iota
	BGR
	RGBA
	BGRA
	ARGB
	ABGR
	I420
	YV12
	NV12
)

var formatNames = map[VideoFormat]string{
	RGB:  "RGB",
	BGR:  "BGR",
	RGBA: "RGBA",
	BGRA: "BGRA",
	ARGB: "ARGB",
	ABGR: "ABGR",
	I420: "I420",
	YV12: "YV12",
	NV12: "NV12",
}

func (f VideoFormat) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("VideoFormat(%d)", int(f))
}

// IsRGBType reports whether the format is packed RGB-family, as opposed to planar YUV.
func (f VideoFormat) IsRGBType() bool {
	return f <= ABGR
}

// rgbOffsets returns the pixel stride and the byte offsets of red, green and blue.
func (f VideoFormat) rgbOffsets() (stride, r, g, b int) {
	switch f {
	case RGB:
		return 3, 0, 1, 2
	case BGR:
		return 3, 2, 1, 0
	case RGBA:
		return 4, 0, 1, 2
	case BGRA:
		return 4, 2, 1, 0
	case ARGB:
		return 4, 1, 2, 3
	case ABGR:
		return 4, 3, 2, 1
	}
	panic(fmt.Sprintf("%s is not an RGB format", f))
}

// VideoBuffer is a single decoded image. Planar formats store the full-resolution Y plane followed by
// the quarter-resolution chroma planes in the order the format dictates.
type VideoBuffer struct {
	Format VideoFormat
	Width  int
	Height int
	Data   []byte
}

// VideoFrame wraps the buffer delivered to a video sink.
type VideoFrame struct {
	Buffer *VideoBuffer
}

// NewVideoBuffer allocates a zeroed buffer of the right size.
func NewVideoBuffer(format VideoFormat, width, height int) *VideoBuffer {
	return &VideoBuffer{Format: format, Width: width, Height: height, Data: make([]byte, bufferSize(format, width, height))}
}

func bufferSize(format VideoFormat, width, height int) int {
	if format.IsRGBType() {
		stride, _, _, _ := format.rgbOffsets()
		return width * height * stride
	}
	return width*height + 2*((width/2)*(height/2))
}

// Valid reports whether every pixel of the buffer can be read. Planar buffers need at least 2x2 pixels,
// otherwise their chroma planes are empty.
func (b *VideoBuffer) Valid() bool {
	if _, ok := formatNames[b.Format]; !ok || b.Width <= 0 || b.Height <= 0 {
		return false
	}
	if !b.Format.IsRGBType() && (b.Width < 2 || b.Height < 2) {
		return false
	}
	return len(b.Data) >= bufferSize(b.Format, b.Width, b.Height)
}

// RGB returns the colour of the pixel at index. Only valid for RGB-family formats.
func (b *VideoBuffer) RGB(index int) (r, g, bl int) {
	stride, ro, gro, bo := b.Format.rgbOffsets()
	p := index * stride
	return int(b.Data[p+ro]), int(b.Data[p+gro]), int(b.Data[p+bo])
}

// SetRGB writes the pixel at index. Only valid for RGB-family formats.
func (b *VideoBuffer) SetRGB(index int, r, g, bl byte) {
	stride, ro, gro, bo := b.Format.rgbOffsets()
	p := index * stride
	b.Data[p+ro] = r
	b.Data[p+gro] = g
	b.Data[p+bo] = bl
}

// Y returns the luma sample at index.
func (b *VideoBuffer) Y(index int) int {
	return int(b.Data[index])
}

// U returns the blue-difference chroma sample at index in the quarter-resolution plane.
func (b *VideoBuffer) U(index int) int {
	return int(b.Data[b.chromaOffset(true, index)])
}

// V returns the red-difference chroma sample at index in the quarter-resolution plane.
func (b *VideoBuffer) V(index int) int {
	return int(b.Data[b.chromaOffset(false, index)])
}

// SetYUV writes the luma sample and the chroma samples covering it.
func (b *VideoBuffer) SetYUV(yIndex, uvIndex int, y, u, v byte) {
	b.Data[yIndex] = y
	b.Data[b.chromaOffset(true, uvIndex)] = u
	b.Data[b.chromaOffset(false, uvIndex)] = v
}

func (b *VideoBuffer) chromaOffset(u bool, index int) int {
	lumaSize := b.Width * b.Height
	planeSize := (b.Width / 2) * (b.Height / 2)
	switch b.Format {
	case I420:
		if u {
			return lumaSize + index
		}
		return lumaSize + planeSize + index
	case YV12:
		if u {
			return lumaSize + planeSize + index
		}
		return lumaSize + index
	case NV12:
		if u {
			return lumaSize + 2*index
		}
		return lumaSize + 2*index + 1
	}
	panic(fmt.Sprintf("%s is not a planar format", b.Format))
}
