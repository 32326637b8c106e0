package audioio

import (
	"errors"
	"time"
)

var (
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("audioio: closed")

	// ErrCleared is returned by Write or Flush when Clear interrupted playback.
	ErrCleared = errors.New("audioio: playback cleared")
)

// AudioChunk is a block of PCM16 samples.
type AudioChunk struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// ChunkFromBytes builds a chunk from little-endian PCM16 bytes.
func ChunkFromBytes(data []byte, sampleRate, channels int) AudioChunk {
	return AudioChunk{
		Samples:    BytesToSamples(data),
		SampleRate: sampleRate,
		Channels:   channels,
	}
}

// Bytes returns the chunk as little-endian PCM16.
func (c AudioChunk) Bytes() []byte {
	return SamplesToBytes(c.Samples)
}

// Duration returns the playback length of the chunk.
func (c AudioChunk) Duration() time.Duration {
	if c.SampleRate <= 0 || c.Channels <= 0 {
		return 0
	}
	return time.Duration(len(c.Samples)) * time.Second / time.Duration(c.SampleRate*c.Channels)
}

// convert resamples and down-mixes c to the target format.
func (c AudioChunk) convert(rate, channels int) []int16 {
	samples := c.Samples
	if c.Channels == 2 && channels == 1 {
		samples = StereoToMono(samples)
	}
	if c.SampleRate > 0 && c.SampleRate != rate {
		samples = Resample(samples, c.SampleRate, rate)
	}
	return samples
}
