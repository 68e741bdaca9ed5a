// Package audio provides PCM conversion, WAV encoding/decoding and clip
// joining for the synthesis pipeline. All waveforms are mono 16-bit PCM.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
)

var (
	ErrNotWAV   = errors.New("data is not a valid WAV file")
	ErrNotMP3   = errors.New("data is not a valid MP3 file")
	ErrEmptyPCM = errors.New("no PCM data")
)

const (
	wavHeaderSize  = 44
	bytesPerSample = 2
)

// EncodeWAV wraps mono 16-bit PCM samples in a WAV container, in memory.
// The result is never written to disk; it is handed straight to the
// response body.
func EncodeWAV(samples []int16, sampleRate int) []byte {
	dataLen := len(samples) * bytesPerSample
	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+dataLen))

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*bytesPerSample))
	binary.Write(buf, binary.LittleEndian, uint16(bytesPerSample))
	binary.Write(buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataLen))
	buf.Write(Int16ToBytes(samples))

	return buf.Bytes()
}

// Info describes a decoded audio asset.
type Info struct {
	SampleRate int
	Channels   int
	Duration   time.Duration
}

// ProbeWAV validates that data decodes as WAV and reports its properties.
func ProbeWAV(data []byte) (Info, error) {
	d := wav.NewDecoder(bytes.NewReader(data))
	d.ReadInfo()
	if !d.IsValidFile() {
		return Info{}, ErrNotWAV
	}

	dur, err := d.Duration()
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrNotWAV, err)
	}

	return Info{
		SampleRate: int(d.SampleRate),
		Channels:   int(d.NumChans),
		Duration:   dur,
	}, nil
}

// DecodeWAV decodes WAV data to mono 16-bit PCM samples. Stereo input is
// downmixed.
func DecodeWAV(data []byte) ([]int16, int, error) {
	d := wav.NewDecoder(bytes.NewReader(data))

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrNotWAV, err)
	}
	return bufferToMono(buf)
}

func bufferToMono(buf *gaudio.IntBuffer) ([]int16, int, error) {
	if buf == nil || buf.Format == nil || len(buf.Data) == 0 {
		return nil, 0, ErrEmptyPCM
	}

	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = clampInt16(v)
	}

	if buf.Format.NumChannels == 2 {
		samples = DownmixStereo(samples)
	}

	return samples, buf.Format.SampleRate, nil
}

// DecodeMP3 decodes MP3 data to mono 16-bit PCM samples. go-mp3 always
// emits interleaved 16-bit stereo, so the output is downmixed.
func DecodeMP3(data []byte) ([]int16, int, error) {
	d, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrNotMP3, err)
	}

	raw, err := io.ReadAll(d)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrNotMP3, err)
	}
	if len(raw) == 0 {
		return nil, 0, ErrEmptyPCM
	}

	return DownmixStereo(BytesToInt16(raw)), d.SampleRate(), nil
}
