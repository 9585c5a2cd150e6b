// Package sound plays the sounds of stage3d SoundNodes through beep.
package sound

import (
	"fmt"
	"math"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
	"github.com/gopxl/beep/generators"
	"github.com/gopxl/beep/speaker"
	"github.com/gopxl/beep/wav"
	"go.uber.org/zap"

	"github.com/solarlune/stage3d"
)

// Settings configures a Manager.
type Settings struct {
	SampleRate int `toml:"sample_rate"`
	// BufferDuration is the length of the speaker buffer; longer buffers are steadier but add latency.
	BufferDuration time.Duration `toml:"buffer_duration"`
	// ChannelVolumes maps channel names to volumes from 0 to 1. Unlisted channels play at full volume.
	ChannelVolumes map[string]float64 `toml:"channel_volumes"`
}

// DefaultSettings returns 48kHz with a 100ms buffer.
func DefaultSettings() Settings {
	return Settings{SampleRate: 48000, BufferDuration: 100 * time.Millisecond}
}

type channel struct {
	mixer  *beep.Mixer
	volume *effects.Volume
}

type voice struct {
	node     *stage3d.SoundNode
	ctrl     *beep.Ctrl
	volume   *effects.Volume
	pan      *effects.Pan
	finished atomic.Bool
}

// Manager mixes the sounds of spawned SoundNodes, one mixer per channel. It implements stage3d.SoundManager.
type Manager struct {
	log        *zap.Logger
	sampleRate beep.SampleRate

	mu       sync.Mutex
	master   *beep.Mixer
	channels map[string]*channel
	sounds   map[string]*beep.Buffer
	voices   map[*stage3d.SoundNode]*voice
	started  bool
	settings Settings
}

var _ stage3d.SoundManager = (*Manager)(nil)

// NewManager creates a Manager. Nothing is heard until Start is called; until then the mix can be pulled from
// Streamer.
func NewManager(settings Settings, log *zap.Logger) *Manager {
	if settings.SampleRate <= 0 {
		settings.SampleRate = DefaultSettings().SampleRate
	}
	if settings.BufferDuration <= 0 {
		settings.BufferDuration = DefaultSettings().BufferDuration
	}
	if log == nil {
		log = zap.NewNop()
	}
	m := &Manager{
		log:        log,
		sampleRate: beep.SampleRate(settings.SampleRate),
		master:     &beep.Mixer{},
		channels:   map[string]*channel{},
		sounds:     map[string]*beep.Buffer{},
		voices:     map[*stage3d.SoundNode]*voice{},
		settings:   settings,
	}
	for name, volume := range settings.ChannelVolumes {
		ch := m.channel(name)
		ch.volume.Volume, ch.volume.Silent = volumeToExponent(volume)
	}
	return m
}

// Start opens the speaker and plays the mix through it.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return nil
	}
	if err := speaker.Init(m.sampleRate, m.sampleRate.N(m.settings.BufferDuration)); err != nil {
		return fmt.Errorf("opening speaker: %w", err)
	}
	speaker.Play(m.master)
	m.started = true
	m.log.Info("audio started", zap.Int("sample_rate", int(m.sampleRate)))
	return nil
}

// Close stops every sound and closes the speaker if it was started.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lockAudio()
	for node, v := range m.voices {
		stopVoice(v)
		delete(m.voices, node)
	}
	m.master.Clear()
	m.channels = map[string]*channel{}
	m.unlockAudio()

	if m.started {
		speaker.Clear()
		speaker.Close()
		m.started = false
	}
}

// Streamer returns the final mix.
func (m *Manager) Streamer() beep.Streamer { return m.master }

// SampleRate returns the sample rate of the mix.
func (m *Manager) SampleRate() beep.SampleRate { return m.sampleRate }

// LoadWAV decodes a WAV file into memory under name, resampling it to the mix's sample rate.
func (m *Manager) LoadWAV(name, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("loading sound %q: %w", name, err)
	}
	streamer, format, err := wav.Decode(file)
	if err != nil {
		file.Close()
		return fmt.Errorf("decoding sound %q: %w", name, err)
	}
	defer streamer.Close()

	var source beep.Streamer = streamer
	if format.SampleRate != m.sampleRate {
		source = beep.Resample(4, format.SampleRate, m.sampleRate, streamer)
	}
	return m.AddSound(name, source)
}

// AddSound buffers a finite streamer under name. The streamer must be at the mix's sample rate.
func (m *Manager) AddSound(name string, streamer beep.Streamer) error {
	buffer := beep.NewBuffer(beep.Format{SampleRate: m.sampleRate, NumChannels: 2, Precision: 2})
	buffer.Append(streamer)
	if err := streamer.Err(); err != nil {
		return fmt.Errorf("buffering sound %q: %w", name, err)
	}

	m.mu.Lock()
	m.sounds[name] = buffer
	m.mu.Unlock()
	m.log.Debug("sound added", zap.String("name", name), zap.Duration("length", m.sampleRate.D(buffer.Len())))
	return nil
}

// AddTone adds a sine tone of the given frequency and length under name.
func (m *Manager) AddTone(name string, frequency float64, length time.Duration) error {
	tone, err := generators.SineTone(m.sampleRate, frequency)
	if err != nil {
		return fmt.Errorf("generating tone %q: %w", name, err)
	}
	return m.AddSound(name, beep.Take(m.sampleRate.N(length), tone))
}

// HasSound reports whether a sound was added under name.
func (m *Manager) HasSound(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sounds[name]
	return ok
}

// SetChannelVolume sets the volume of a channel, from 0 to 1.
func (m *Manager) SetChannelVolume(name string, volume float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := m.channel(name)
	m.lockAudio()
	ch.volume.Volume, ch.volume.Silent = volumeToExponent(volume)
	m.unlockAudio()
}

// IsPlaying reports whether the node's sound is playing.
func (m *Manager) IsPlaying(node *stage3d.SoundNode) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.voices[node]
	return ok && !v.finished.Load()
}

// PlayingCount returns the number of sounds playing.
func (m *Manager) PlayingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, v := range m.voices {
		if !v.finished.Load() {
			count++
		}
	}
	return count
}

func (m *Manager) OnSoundNodeSpawned(node *stage3d.SoundNode) {
	if node.AutoPlay {
		m.PlaySound(node)
	}
}

func (m *Manager) OnSoundNodeDespawned(node *stage3d.SoundNode) {
	m.StopSound(node)
}

// PlaySound starts the node's sound from the beginning, replacing the voice it may already be playing.
func (m *Manager) PlaySound(node *stage3d.SoundNode) {
	m.mu.Lock()
	defer m.mu.Unlock()

	buffer, ok := m.sounds[node.Sound]
	if !ok {
		m.log.Warn("sound node plays an unknown sound", zap.String("node", node.Name()), zap.String("sound", node.Sound))
		return
	}

	v := &voice{node: node}
	var source beep.Streamer = buffer.Streamer(0, buffer.Len())
	if node.Loop {
		source = beep.Loop(-1, buffer.Streamer(0, buffer.Len()))
	}
	source = beep.Seq(source, beep.Callback(func() { v.finished.Store(true) }))
	v.volume = &effects.Volume{Streamer: source, Base: 2}
	v.volume.Volume, v.volume.Silent = volumeToExponent(node.Volume)
	v.pan = &effects.Pan{Streamer: v.volume}
	v.ctrl = &beep.Ctrl{Streamer: v.pan}

	ch := m.channel(node.Channel)
	m.lockAudio()
	if old, playing := m.voices[node]; playing {
		stopVoice(old)
	}
	ch.mixer.Add(v.ctrl)
	m.unlockAudio()

	m.voices[node] = v
}

func (m *Manager) StopSound(node *stage3d.SoundNode) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.voices[node]
	if !ok {
		return
	}
	m.lockAudio()
	stopVoice(v)
	m.unlockAudio()
	delete(m.voices, node)
}

// OnBeforeNewFrame forgets finished sounds and updates volume and panning of the playing ones. Positional sounds
// play unattenuated and centered while there's no listener.
func (m *Manager) OnBeforeNewFrame(listener stage3d.Spatial) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var listenerLocation, listenerRight stage3d.Vector
	if listener != nil {
		listenerLocation, listenerRight = listener.WorldLocation(), listener.RightDirection()
	}

	m.lockAudio()
	defer m.unlockAudio()

	for node, v := range m.voices {
		if v.finished.Load() {
			delete(m.voices, node)
			continue
		}
		gain, pan := node.Volume, 0.0
		if node.MaxDistance > 0 && listener != nil {
			attenuation, p := Spatialize(node.WorldLocation(), listenerLocation, listenerRight, node.MaxDistance)
			gain, pan = gain*attenuation, p
		}
		v.volume.Volume, v.volume.Silent = volumeToExponent(gain)
		v.pan.Pan = pan
	}
}

// Spatialize returns the gain (0 to 1) and stereo pan (-1 left to 1 right) of a sound at source heard from a
// listener at listener facing so that right points to its right. The gain falls off linearly to 0 at maxDistance.
func Spatialize(source, listener, right stage3d.Vector, maxDistance float64) (gain, pan float64) {
	offset := source.Sub(listener)
	distance := offset.Magnitude()
	if distance >= maxDistance {
		return 0, 0
	}
	gain = 1 - distance/maxDistance
	if distance > 0 && !right.IsZero() {
		pan = math.Max(-1, math.Min(1, offset.Unit().Dot(right.Unit())))
	}
	return gain, pan
}

// volumeToExponent converts a linear volume to effects.Volume's base 2 exponent.
func volumeToExponent(volume float64) (exponent float64, silent bool) {
	if volume <= 0 {
		return 0, true
	}
	return math.Log2(volume), false
}

func stopVoice(v *voice) {
	v.ctrl.Paused = true
	v.ctrl.Streamer = nil
	v.finished.Store(true)
}

// channel returns the mixer of the named channel, creating it. m.mu must be held.
func (m *Manager) channel(name string) *channel {
	if ch, ok := m.channels[name]; ok {
		return ch
	}
	ch := &channel{mixer: &beep.Mixer{}}
	ch.volume = &effects.Volume{Streamer: ch.mixer, Base: 2}
	m.lockAudio()
	m.master.Add(ch.volume)
	m.unlockAudio()
	m.channels[name] = ch
	return ch
}

// Channels returns the names of the channels in use, sorted.
func (m *Manager) Channels() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// lockAudio keeps the speaker from pulling samples while streamers change.
func (m *Manager) lockAudio() {
	if m.started {
		speaker.Lock()
	}
}

func (m *Manager) unlockAudio() {
	if m.started {
		speaker.Unlock()
	}
}
