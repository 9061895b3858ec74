// Package audio provides the PCM building blocks shared by the capture layer
// and the transcription providers: the clip type, int16/float32 conversion,
// resampling, WAV encoding and a sample ring buffer.
package audio

import "time"

// Clip is a finished, immutable recording handed from the capture layer to a
// transcription provider. Samples are mono float32 in the range [-1, 1].
type Clip struct {
	// Samples is the full PCM content of the clip.
	Samples []float32

	// SampleRate in Hz (16000 for all shipped engines).
	SampleRate int
}

// Duration returns the clip length derived from sample count and rate.
func (c *Clip) Duration() time.Duration {
	if c == nil || c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(c.Samples)) / float64(c.SampleRate) * float64(time.Second))
}

// Empty reports whether the clip holds no samples.
func (c *Clip) Empty() bool {
	return c == nil || len(c.Samples) == 0
}
