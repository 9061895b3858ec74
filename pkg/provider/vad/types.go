package vad

// VADEvent is the detection result for one audio frame.
type VADEvent struct {
	// Type classifies the frame relative to the ongoing segment.
	Type VADEventType

	// Probability is the speech score in [0, 1]. For the energy engine
	// this is the frame RMS scaled against the speech threshold.
	Probability float64
}

// VADEventType enumerates the segment transitions a frame can signal.
type VADEventType int

const (
	// VADSpeechStart marks the first speech frame of a segment.
	VADSpeechStart VADEventType = iota

	// VADSpeechContinue marks speech inside an active segment.
	VADSpeechContinue

	// VADSpeechEnd marks the frame on which an active segment ended.
	VADSpeechEnd

	// VADSilence marks silence outside any segment.
	VADSilence
)

// String returns the event type name for logs.
func (t VADEventType) String() string {
	switch t {
	case VADSpeechStart:
		return "speech_start"
	case VADSpeechContinue:
		return "speech_continue"
	case VADSpeechEnd:
		return "speech_end"
	case VADSilence:
		return "silence"
	default:
		return "unknown"
	}
}
