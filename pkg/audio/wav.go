package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const wavHeaderSize = 44

// EncodeWAV serializes mono float32 samples into a 16-bit PCM WAV file body.
func EncodeWAV(samples []float32, sampleRate int) []byte {
	dataSize := len(samples) * 2
	buf := make([]byte, 0, wavHeaderSize+dataSize)

	buf = append(buf, "RIFF"...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(36+dataSize))
	buf = append(buf, "WAVE"...)

	buf = append(buf, "fmt "...)
	buf = binary.LittleEndian.AppendUint32(buf, 16)                  // fmt chunk size
	buf = binary.LittleEndian.AppendUint16(buf, 1)                   // PCM
	buf = binary.LittleEndian.AppendUint16(buf, 1)                   // mono
	buf = binary.LittleEndian.AppendUint32(buf, uint32(sampleRate))  // sample rate
	buf = binary.LittleEndian.AppendUint32(buf, uint32(sampleRate*2)) // byte rate
	buf = binary.LittleEndian.AppendUint16(buf, 2)                   // block align
	buf = binary.LittleEndian.AppendUint16(buf, 16)                  // bits per sample

	buf = append(buf, "data"...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(dataSize))
	buf = append(buf, Float32ToBytes(samples)...)
	return buf
}

// DecodeWAV parses a 16-bit PCM WAV file into mono float32 samples. Stereo
// input is downmixed. Only uncompressed PCM is supported.
func DecodeWAV(data []byte) (*Clip, error) {
	if len(data) < wavHeaderSize {
		return nil, errors.New("audio: wav data shorter than header")
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, errors.New("audio: not a RIFF/WAVE file")
	}

	var (
		sampleRate int
		channels   int
		bits       int
		pcm        []byte
	)

	// Walk chunks; fmt and data may appear in any order with metadata between.
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if body+size > len(data) {
			return nil, fmt.Errorf("audio: wav chunk %q overruns file", id)
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return nil, errors.New("audio: wav fmt chunk too short")
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			if format != 1 {
				return nil, fmt.Errorf("audio: unsupported wav format %d (PCM only)", format)
			}
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bits = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
		case "data":
			pcm = data[body : body+size]
		}
		// Chunks are word-aligned.
		off = body + size + size%2
	}

	if sampleRate == 0 || channels == 0 {
		return nil, errors.New("audio: wav missing fmt chunk")
	}
	if pcm == nil {
		return nil, errors.New("audio: wav missing data chunk")
	}
	if bits != 16 {
		return nil, fmt.Errorf("audio: unsupported wav bit depth %d (16-bit only)", bits)
	}

	samples := BytesToFloat32(pcm)
	if channels == 2 {
		samples = StereoToMonoFloat32(samples)
	} else if channels > 2 {
		return nil, fmt.Errorf("audio: unsupported wav channel count %d", channels)
	}
	return &Clip{Samples: samples, SampleRate: sampleRate}, nil
}
