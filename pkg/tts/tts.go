// Package tts turns announcement text into playable audio.
//
// Providers return raw 16-bit little-endian mono PCM so the result can be fed
// straight into an audio sink without a decoder. OpenAI and ElevenLabs are
// supported, and a Chain falls back from one to the other.
//
//	p, _ := tts.NewOpenAI(tts.WithAPIKey(os.Getenv("OPENAI_API_KEY")))
//	defer p.Close()
//
//	res, _ := p.Synthesize(ctx, "chair is near")
//	// res.Audio holds PCM at res.Format.SampleRate
package tts

import (
	"context"
	"time"
)

// Provider synthesizes speech.
type Provider interface {
	// Synthesize converts text to a complete audio buffer.
	Synthesize(ctx context.Context, text string) (*AudioResult, error)

	// Health checks connectivity and credentials.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// AudioResult is one synthesized utterance.
type AudioResult struct {
	Audio     []byte
	Format    AudioFormat
	Duration  time.Duration // playback length derived from Format
	CharCount int
	Latency   time.Duration // request round trip
}

// AudioFormat describes PCM audio.
type AudioFormat struct {
	Encoding   Encoding
	SampleRate int
	Channels   int
	BitDepth   int
}

// BytesPerSecond returns the data rate of the format.
func (f AudioFormat) BytesPerSecond() int {
	channels, depth := f.Channels, f.BitDepth
	if channels <= 0 {
		channels = 1
	}
	if depth <= 0 {
		depth = 16
	}
	return f.SampleRate * channels * depth / 8
}

// DurationOf returns how long n bytes of this format play for.
func (f AudioFormat) DurationOf(n int) time.Duration {
	bps := f.BytesPerSecond()
	if bps <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(bps)
}

// Encoding names a PCM output format. Values match ElevenLabs output_format.
type Encoding string

const (
	EncodingPCM16 Encoding = "pcm_16000"
	EncodingPCM22 Encoding = "pcm_22050"
	EncodingPCM24 Encoding = "pcm_24000" // OpenAI "pcm" output
	EncodingPCM44 Encoding = "pcm_44100"
)

// SampleRateFromEncoding returns the sample rate of enc, 24kHz if unknown.
func SampleRateFromEncoding(enc Encoding) int {
	switch enc {
	case EncodingPCM16:
		return 16000
	case EncodingPCM22:
		return 22050
	case EncodingPCM44:
		return 44100
	default:
		return 24000
	}
}

// PCMFormat returns the mono 16-bit format for enc.
func PCMFormat(enc Encoding) AudioFormat {
	return AudioFormat{
		Encoding:   enc,
		SampleRate: SampleRateFromEncoding(enc),
		Channels:   1,
		BitDepth:   16,
	}
}

func newResult(audio []byte, enc Encoding, text string, latency time.Duration) *AudioResult {
	format := PCMFormat(enc)
	return &AudioResult{
		Audio:     audio,
		Format:    format,
		Duration:  format.DurationOf(len(audio)),
		CharCount: len(text),
		Latency:   latency,
	}
}
