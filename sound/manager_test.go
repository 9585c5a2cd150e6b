package sound

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solarlune/stage3d"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(DefaultSettings(), nil)
	require.NoError(t, m.AddTone("beep", 880, 10*time.Millisecond))
	t.Cleanup(m.Close)
	return m
}

// pull streams n samples out of the mix and returns them.
func pull(m *Manager, n int) [][2]float64 {
	samples := make([][2]float64, n)
	for offset := 0; offset < n; {
		count, _ := m.Streamer().Stream(samples[offset:min(n, offset+256)])
		offset += count
	}
	return samples
}

func isSilent(samples [][2]float64) bool {
	for _, sample := range samples {
		if sample[0] != 0 || sample[1] != 0 {
			return false
		}
	}
	return true
}

func TestSpatialize(t *testing.T) {
	right := stage3d.Vector{X: 1}

	tests := []struct {
		name         string
		source       stage3d.Vector
		expectedGain float64
		expectedPan  float64
	}{
		{"at the listener", stage3d.Vector{}, 1, 0},
		{"to the right", stage3d.Vector{X: 5}, 0.5, 1},
		{"to the left", stage3d.Vector{X: -2.5}, 0.75, -1},
		{"in front", stage3d.Vector{Z: -5}, 0.5, 0},
		{"out of range", stage3d.Vector{Y: 20}, 0, 0},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			gain, pan := Spatialize(test.source, stage3d.Vector{}, right, 10)
			assert.InDelta(t, test.expectedGain, gain, 1e-9)
			assert.InDelta(t, test.expectedPan, pan, 1e-9)
		})
	}
}

func TestSoundsPlayUntilTheyEnd(t *testing.T) {
	m := newTestManager(t)
	node := stage3d.NewSoundNode("Beep", "beep")

	m.PlaySound(node)
	assert.True(t, m.IsPlaying(node))
	assert.Equal(t, []string{stage3d.SoundChannelEffects}, m.Channels())
	assert.False(t, isSilent(pull(m, 256)))

	pull(m, m.SampleRate().N(20*time.Millisecond))
	assert.False(t, m.IsPlaying(node))

	m.OnBeforeNewFrame(nil)
	assert.Zero(t, m.PlayingCount())
	assert.Empty(t, m.voices)
}

func TestLoopingSoundsKeepPlaying(t *testing.T) {
	m := newTestManager(t)
	node := stage3d.NewSoundNode("Beep", "beep")
	node.Loop = true

	m.PlaySound(node)
	pull(m, m.SampleRate().N(50*time.Millisecond))
	m.OnBeforeNewFrame(nil)
	assert.True(t, m.IsPlaying(node))

	m.StopSound(node)
	assert.False(t, m.IsPlaying(node))
	assert.True(t, isSilent(pull(m, 256)))
}

func TestPlayingAgainRestartsTheSound(t *testing.T) {
	m := newTestManager(t)
	node := stage3d.NewSoundNode("Beep", "beep")

	m.PlaySound(node)
	first := m.voices[node]
	m.PlaySound(node)

	assert.NotSame(t, first, m.voices[node])
	assert.True(t, first.finished.Load())
	assert.Equal(t, 1, m.PlayingCount())
}

func TestUnknownSoundsDontPlay(t *testing.T) {
	m := newTestManager(t)
	node := stage3d.NewSoundNode("Missing", "missing")

	m.PlaySound(node)
	assert.False(t, m.IsPlaying(node))
	assert.False(t, m.HasSound("missing"))
	assert.True(t, m.HasSound("beep"))
}

func TestMutedChannelsAreSilent(t *testing.T) {
	m := newTestManager(t)
	m.SetChannelVolume(stage3d.SoundChannelMusic, 0)

	node := stage3d.NewSoundNode("Music", "beep")
	node.Channel = stage3d.SoundChannelMusic
	node.Loop = true
	m.PlaySound(node)

	assert.True(t, m.IsPlaying(node))
	assert.True(t, isSilent(pull(m, 512)))

	m.SetChannelVolume(stage3d.SoundChannelMusic, 1)
	assert.False(t, isSilent(pull(m, 512)))
}

func TestPositionalSoundsFollowTheListener(t *testing.T) {
	m := newTestManager(t)
	node := stage3d.NewSoundNode("Positional", "beep")
	node.Loop = true
	node.MaxDistance = 10
	m.PlaySound(node)

	listener := stage3d.NewSpatialNode("Listener")
	listener.SetRelativeLocation(stage3d.Vector{X: -5})

	m.OnBeforeNewFrame(listener)
	v := m.voices[node]
	require.NotNil(t, v)
	assert.False(t, v.volume.Silent)
	assert.InDelta(t, -1, v.volume.Volume, 1e-9) // Half volume is 2^-1.
	assert.InDelta(t, 1, v.pan.Pan, 1e-9)

	listener.SetRelativeLocation(stage3d.Vector{X: -20})
	m.OnBeforeNewFrame(listener)
	assert.True(t, v.volume.Silent)

	m.OnBeforeNewFrame(nil)
	assert.False(t, v.volume.Silent)
	assert.Zero(t, v.pan.Pan)
}

func TestSpawnedSoundNodesAutoPlay(t *testing.T) {
	m := newTestManager(t)
	node := stage3d.NewSoundNode("Auto", "beep")
	node.AutoPlay = true

	m.OnSoundNodeSpawned(node)
	assert.True(t, m.IsPlaying(node))

	m.OnSoundNodeDespawned(node)
	assert.False(t, m.IsPlaying(node))
	assert.Empty(t, m.voices)
}
