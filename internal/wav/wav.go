// Package wav reads and merges canonical RIFF/WAVE PCM containers.
//
// Only the fields needed to measure and concatenate narration audio are
// understood; no sample decoding takes place.
package wav

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderSize is the size of a canonical PCM WAV header.
const HeaderSize = 44

// Byte offsets inside a canonical header.
const (
	offsetChunkSize     = 4
	offsetAudioFormat   = 20
	offsetChannels      = 22
	offsetSampleRate    = 24
	offsetBitsPerSample = 34
	offsetSubchunk2ID   = 36
	offsetSubchunk2Size = 40

	firstSubchunk = 12
)

var (
	// ErrMalformed indicates the bytes are not a usable RIFF/WAVE container.
	ErrMalformed = errors.New("malformed wav container")

	// ErrFormatMismatch indicates chunks with differing audio parameters.
	ErrFormatMismatch = errors.New("wav format mismatch")

	// ErrNoChunks indicates an empty concatenation request.
	ErrNoChunks = errors.New("no wav chunks")
)

// Format holds the audio parameters that must match across merged chunks.
type Format struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	BitsPerSample uint16
}

// ByteRate returns the number of payload bytes per second of audio.
func (f Format) ByteRate() float64 {
	return float64(f.SampleRate) * float64(f.Channels) * (float64(f.BitsPerSample) / 8)
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch/%dbit", f.SampleRate, f.Channels, f.BitsPerSample)
}

// ParseFormat validates the RIFF/WAVE tags and reads the fmt fields from
// their canonical offsets.
func ParseFormat(data []byte) (Format, error) {
	if len(data) < HeaderSize {
		return Format{}, fmt.Errorf("%w: %d bytes is shorter than a header", ErrMalformed, len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return Format{}, fmt.Errorf("%w: missing RIFF/WAVE tag", ErrMalformed)
	}
	return Format{
		AudioFormat:   binary.LittleEndian.Uint16(data[offsetAudioFormat:]),
		Channels:      binary.LittleEndian.Uint16(data[offsetChannels:]),
		SampleRate:    binary.LittleEndian.Uint32(data[offsetSampleRate:]),
		BitsPerSample: binary.LittleEndian.Uint16(data[offsetBitsPerSample:]),
	}, nil
}

// dataChunk scans subchunk headers from offset 12 and returns the offset and
// declared size of the "data" payload. ok is false when no data chunk exists.
func dataChunk(data []byte) (start int, size int, ok bool) {
	offset := firstSubchunk
	for offset+8 <= len(data) {
		id := string(data[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[offset+4:]))
		if id == "data" {
			return offset + 8, chunkSize, true
		}
		next := offset + 8 + chunkSize
		// RIFF pads odd-sized chunks to an even boundary.
		if chunkSize%2 == 1 {
			next++
		}
		if next <= offset {
			break
		}
		offset = next
	}
	return 0, 0, false
}

// Duration returns the playback length in seconds, or 0 when the container is
// not recognisable. A missing data chunk falls back to len(data)-44 bytes.
func Duration(data []byte) float64 {
	if len(data) < HeaderSize || string(data[0:4]) != "RIFF" {
		return 0
	}

	format := Format{
		Channels:      binary.LittleEndian.Uint16(data[offsetChannels:]),
		SampleRate:    binary.LittleEndian.Uint32(data[offsetSampleRate:]),
		BitsPerSample: binary.LittleEndian.Uint16(data[offsetBitsPerSample:]),
	}

	_, size, ok := dataChunk(data)
	if !ok || size == 0 {
		size = len(data) - HeaderSize
	}

	byteRate := format.ByteRate()
	if byteRate <= 0 {
		return 0
	}
	return float64(size) / byteRate
}

// payload returns the PCM bytes of one container, clamped to what is present.
func payload(data []byte) []byte {
	start, size, ok := dataChunk(data)
	if !ok {
		return data[HeaderSize:]
	}
	end := start + size
	if end > len(data) || end < start {
		end = len(data)
	}
	return data[start:end]
}

// Concat merges chunks that share one format into a single container.
//
// The 44-byte header of the first chunk is reused with its ChunkSize and
// Subchunk2Size rewritten for the summed payload. A single chunk is returned
// as an unchanged copy.
func Concat(chunks [][]byte) ([]byte, error) {
	if len(chunks) == 0 {
		return nil, ErrNoChunks
	}

	first, err := ParseFormat(chunks[0])
	if err != nil {
		return nil, fmt.Errorf("chunk 0: %w", err)
	}

	if len(chunks) == 1 {
		return append([]byte(nil), chunks[0]...), nil
	}

	payloads := make([][]byte, len(chunks))
	total := 0
	for i, chunk := range chunks {
		format, err := ParseFormat(chunk)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}
		if format != first {
			return nil, fmt.Errorf("%w: chunk %d is %s, chunk 0 is %s", ErrFormatMismatch, i, format, first)
		}
		payloads[i] = payload(chunk)
		total += len(payloads[i])
	}

	out := make([]byte, HeaderSize, HeaderSize+total)
	if string(chunks[0][offsetSubchunk2ID:offsetSubchunk2ID+4]) == "data" {
		copy(out, chunks[0][:HeaderSize])
	} else {
		writeCanonicalHeader(out, first)
	}
	binary.LittleEndian.PutUint32(out[offsetChunkSize:], uint32(HeaderSize-8+total))
	binary.LittleEndian.PutUint32(out[offsetSubchunk2Size:], uint32(total))

	for _, p := range payloads {
		out = append(out, p...)
	}
	return out, nil
}

// writeCanonicalHeader fills a 44-byte PCM header for f, used when the first
// chunk carries extra subchunks before its data.
func writeCanonicalHeader(dst []byte, f Format) {
	copy(dst[0:4], "RIFF")
	copy(dst[8:12], "WAVE")
	copy(dst[12:16], "fmt ")
	binary.LittleEndian.PutUint32(dst[16:], 16)
	binary.LittleEndian.PutUint16(dst[offsetAudioFormat:], f.AudioFormat)
	binary.LittleEndian.PutUint16(dst[offsetChannels:], f.Channels)
	binary.LittleEndian.PutUint32(dst[offsetSampleRate:], f.SampleRate)
	blockAlign := f.Channels * (f.BitsPerSample / 8)
	binary.LittleEndian.PutUint32(dst[28:], f.SampleRate*uint32(blockAlign))
	binary.LittleEndian.PutUint16(dst[32:], blockAlign)
	binary.LittleEndian.PutUint16(dst[offsetBitsPerSample:], f.BitsPerSample)
	copy(dst[offsetSubchunk2ID:offsetSubchunk2ID+4], "data")
}

// Encode builds a canonical container around raw PCM bytes.
func Encode(f Format, pcm []byte) []byte {
	out := make([]byte, HeaderSize, HeaderSize+len(pcm))
	writeCanonicalHeader(out, f)
	binary.LittleEndian.PutUint32(out[offsetChunkSize:], uint32(HeaderSize-8+len(pcm)))
	binary.LittleEndian.PutUint32(out[offsetSubchunk2Size:], uint32(len(pcm)))
	return append(out, pcm...)
}
