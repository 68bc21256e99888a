package playback

import (
	"testing"

	"github.com/faiface/beep"
	"github.com/stretchr/testify/assert"
)

func constant(v float64) beep.Streamer {
	return beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		for i := range samples {
			samples[i] = [2]float64{v, v}
		}
		return len(samples), true
	})
}

func TestSessionIsSingleton(t *testing.T) {
	assert.Same(t, Session(), Session())
}

func TestSessionOnlyOwnerStreams(t *testing.T) {
	s := newAudioSession()
	radio, podcast := new(int), new(int)
	buf := make([][2]float64, 4)

	s.Attach(radio, constant(0.5))
	n, ok := s.Stream(radio, buf)
	assert.True(t, ok)
	assert.Equal(t, 4, n)
	assert.Equal(t, [2]float64{0.5, 0.5}, buf[0])

	_, ok = s.Stream(podcast, buf)
	assert.False(t, ok)

	s.Attach(podcast, constant(0.25))
	s.Detach(radio)
	assert.True(t, s.Owns(podcast))

	s.Detach(podcast)
	assert.False(t, s.Owns(podcast))
	_, ok = s.Stream(podcast, buf)
	assert.False(t, ok)
}

func TestSessionPauseAndVolume(t *testing.T) {
	s := newAudioSession()
	owner := new(int)
	buf := make([][2]float64, 2)
	s.Attach(owner, constant(0.5))

	s.SetVolume(0.5)
	_, _ = s.Stream(owner, buf)
	assert.InDelta(t, 0.25, buf[0][0], 1e-9)
	assert.InDelta(t, 0.5, s.Volume(), 1e-9)

	s.SetPaused(true)
	n, ok := s.Stream(owner, buf)
	assert.True(t, ok)
	assert.Equal(t, 2, n)
	assert.Zero(t, buf[0][0])

	s.SetPaused(false)
	s.SetVolume(0)
	_, _ = s.Stream(owner, buf)
	assert.Zero(t, buf[1][1])
}
