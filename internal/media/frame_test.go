package media

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAudioFrame_Sample(t *testing.T) {
	data := make([]byte, 6)
	negative := int16(-5)
	binary.LittleEndian.PutUint16(data[0:], uint16(negative))
	binary.LittleEndian.PutUint16(data[2:], uint16(int16(300)))
	binary.LittleEndian.PutUint16(data[4:], 0)
	frame := AudioFrame{Data: data}

	assert.Equal(t, 3, frame.SampleCount())
	assert.Equal(t, int16(-5), frame.Sample(0))
	assert.Equal(t, int16(300), frame.Sample(1))
	assert.Equal(t, int16(0), frame.Sample(2))
}

func TestVideoBuffer_RGBFormats(t *testing.T) {
	for _, format := range []VideoFormat{RGB, BGR, RGBA, BGRA, ARGB, ABGR} {
		t.Run(format.String(), func(t *testing.T) {
			buffer := NewVideoBuffer(format, 4, 2)
			buffer.SetRGB(5, 10, 20, 30)

			r, g, b := buffer.RGB(5)
			assert.Equal(t, []int{10, 20, 30}, []int{r, g, b})
			r, g, b = buffer.RGB(4)
			assert.Equal(t, []int{0, 0, 0}, []int{r, g, b})
			assert.True(t, format.IsRGBType())
		})
	}
}

func TestVideoBuffer_PlanarFormats(t *testing.T) {
	for _, format := range []VideoFormat{I420, YV12, NV12} {
		t.Run(format.String(), func(t *testing.T) {
			buffer := NewVideoBuffer(format, 4, 4)
			assert.Len(t, buffer.Data, 24)
			assert.False(t, format.IsRGBType())

			buffer.SetYUV(10, 3, 100, 50, 200)
			assert.Equal(t, 100, buffer.Y(10))
			assert.Equal(t, 50, buffer.U(3))
			assert.Equal(t, 200, buffer.V(3))
			assert.Equal(t, 0, buffer.U(2))
			assert.Equal(t, 0, buffer.V(2))
		})
	}
}

func TestVideoFormat_String(t *testing.T) {
	assert.Equal(t, "NV12", NV12.String())
	assert.Equal(t, "VideoFormat(42)", VideoFormat(42).String())
}

func TestVideoBuffer_Valid(t *testing.T) {
	assert.True(t, NewVideoBuffer(I420, 2, 2).Valid())
	assert.True(t, NewVideoBuffer(RGB, 1, 1).Valid())
	assert.False(t, NewVideoBuffer(I420, 1, 1).Valid())
	assert.False(t, NewVideoBuffer(NV12, 5, 1).Valid())

	buffer := NewVideoBuffer(YV12, 4, 4)
	buffer.Data = buffer.Data[:len(buffer.Data)-1]
	assert.False(t, buffer.Valid())
	assert.False(t, (&VideoBuffer{Format: VideoFormat(-1), Width: 2, Height: 2, Data: make([]byte, 16)}).Valid())
}
