package loopback

import (
	"encoding/binary"
	"math"

	"github.com/G-Research/mediahammer/internal/media"
)

const (
	sampleRate    = 48000
	frameSamples  = sampleRate / 50
	toneFrequency = 440.0
	toneAmplitude = 8000.0
)

// audioFrame returns 20ms of mono PCM: a sine tone if tone is set, silence otherwise.
func audioFrame(tone bool) media.AudioFrame {
	data := make([]byte, frameSamples*2)
	if tone {
		for i := 0; i < frameSamples; i++ {
			sample := int16(toneAmplitude * math.Sin(2*math.Pi*toneFrequency*float64(i)/sampleRate))
			binary.LittleEndian.PutUint16(data[i*2:], uint16(sample))
		}
	}
	return media.AudioFrame{Data: data, SampleRate: sampleRate, Channels: 1}
}

// videoFrame returns a uniformly light grey image if lit is set, a black image otherwise.
func videoFrame(format media.VideoFormat, width, height int, lit bool) media.VideoFrame {
	buffer := media.NewVideoBuffer(format, width, height)
	var level byte
	if lit {
		level = 180
	}
	if format.IsRGBType() {
		for i := 0; i < width*height; i++ {
			buffer.SetRGB(i, level, level, level)
		}
	} else {
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				buffer.SetYUV(y*width+x, y/2*(width/2)+x/2, level, 128, 128)
			}
		}
	}
	return media.VideoFrame{Buffer: buffer}
}
