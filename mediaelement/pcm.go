package mediaelement

import (
	"encoding/binary"
	"errors"
	"io"
	"math"

	mp3 "github.com/hajimehoshi/go-mp3"
)

const (
	// go-mp3 always produces 16-bit little-endian stereo.
	pcmFrameBytes    = 4
	sampleConversion = 32767.0
)

// mp3Streamer adapts an mp3.Decoder to beep.Streamer.
type mp3Streamer struct {
	decoder *mp3.Decoder
	buf     []byte
	err     error
}

func newMP3Streamer(decoder *mp3.Decoder) *mp3Streamer {
	return &mp3Streamer{decoder: decoder}
}

// Stream implements beep.Streamer.
func (m *mp3Streamer) Stream(samples [][2]float64) (int, bool) {
	if m.err != nil {
		return 0, false
	}

	need := len(samples) * pcmFrameBytes
	if cap(m.buf) < need {
		m.buf = make([]byte, need)
	}
	buf := m.buf[:need]

	read, err := io.ReadFull(m.decoder, buf)
	n := read / pcmFrameBytes
	for i := 0; i < n; i++ {
		left := int16(binary.LittleEndian.Uint16(buf[i*pcmFrameBytes:]))
		right := int16(binary.LittleEndian.Uint16(buf[i*pcmFrameBytes+2:]))
		samples[i][0] = float64(left) / sampleConversion
		samples[i][1] = float64(right) / sampleConversion
	}

	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			err = io.EOF
		}
		m.err = err
		return n, n > 0
	}
	return n, true
}

// Err implements beep.Streamer.
func (m *mp3Streamer) Err() error {
	if errors.Is(m.err, io.EOF) {
		return nil
	}
	return m.err
}

func (m *mp3Streamer) ended() bool {
	return errors.Is(m.err, io.EOF)
}

// encodePCM writes samples into buf as 16-bit little-endian stereo and returns the byte count.
func encodePCM(samples [][2]float64, buf []byte) int {
	written := 0
	for _, s := range samples {
		if written+pcmFrameBytes > len(buf) {
			break
		}
		binary.LittleEndian.PutUint16(buf[written:], uint16(toInt16(s[0])))
		binary.LittleEndian.PutUint16(buf[written+2:], uint16(toInt16(s[1])))
		written += pcmFrameBytes
	}
	return written
}

func toInt16(v float64) int16 {
	v = math.Max(-1, math.Min(1, v))
	return int16(math.Round(v * sampleConversion))
}
