package audio

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/hajimehoshi/go-mp3"
)

// oto allows a single context per process.
var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoErr  error
)

// Player plays MP3 clips through oto.
type Player struct {
	mu      sync.Mutex
	current *clip
	closed  bool

	state  atomic.Int32
	volume atomic.Uint64 // volume * 1e6

	sampleRate int
	bufferSize int
	poll       time.Duration
}

// clip keeps the encoded bytes and decoder alive for the whole playback.
type clip struct {
	data   []byte
	player *oto.Player
	stop   chan struct{}
	once   sync.Once
}

func (c *clip) halt() {
	c.once.Do(func() {
		close(c.stop)
		c.player.Pause()
		_ = c.player.Close()
	})
}

// PlayerConfig configures the output device.
type PlayerConfig struct {
	SampleRate   int // 44100 or 48000 Hz; recordings must match
	BufferSize   int // bytes
	PollInterval time.Duration
}

// DefaultPlayerConfig returns the default player configuration.
func DefaultPlayerConfig() PlayerConfig {
	return PlayerConfig{
		SampleRate:   44100,
		BufferSize:   8192,
		PollInterval: 20 * time.Millisecond,
	}
}

func validateConfig(config PlayerConfig) error {
	if config.SampleRate != 44100 && config.SampleRate != 48000 {
		return fmt.Errorf("sample rate must be 44100 or 48000 Hz, got %d", config.SampleRate)
	}
	if config.BufferSize <= 0 {
		return errors.New("buffer size must be positive")
	}
	if config.PollInterval <= 0 {
		return errors.New("poll interval must be positive")
	}
	return nil
}

// NewPlayer validates config. The output device is opened on first Play.
func NewPlayer(config PlayerConfig) (*Player, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	p := &Player{
		sampleRate: config.SampleRate,
		bufferSize: config.BufferSize,
		poll:       config.PollInterval,
	}
	p.state.Store(int32(StateStopped))
	_ = p.SetVolume(1.0)
	return p, nil
}

func (p *Player) context() (*oto.Context, error) {
	otoOnce.Do(func() {
		// go-mp3 always produces 16-bit little endian stereo.
		const channels, bytesPerSample = 2, 2
		op := &oto.NewContextOptions{
			SampleRate:   p.sampleRate,
			ChannelCount: channels,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   time.Duration(p.bufferSize) * time.Second / time.Duration(p.sampleRate*channels*bytesPerSample),
		}
		var ready chan struct{}
		otoCtx, ready, otoErr = oto.NewContext(op)
		if otoErr == nil {
			<-ready
		}
	})
	if otoErr != nil {
		return nil, fmt.Errorf("failed to open audio device: %w", otoErr)
	}
	return otoCtx, nil
}

// Play decodes audio and starts playing it, replacing the current clip.
func (p *Player) Play(audio []byte, done func()) error {
	if len(audio) == 0 {
		return ErrEmptyAudio
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPlayerClosed
	}
	p.stopLocked()

	data := make([]byte, len(audio))
	copy(data, audio)

	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to decode mp3: %w", err)
	}
	if dec.SampleRate() != p.sampleRate {
		return fmt.Errorf("recording sample rate %d Hz does not match output %d Hz", dec.SampleRate(), p.sampleRate)
	}

	ctx, err := p.context()
	if err != nil {
		return err
	}

	c := &clip{data: data, player: ctx.NewPlayer(dec), stop: make(chan struct{})}
	c.player.SetVolume(p.getVolume())
	c.player.Play()

	p.current = c
	p.state.Store(int32(StatePlaying))

	go p.watch(c, done)
	return nil
}

// watch waits for the clip to drain and reports a natural end.
func (p *Player) watch(c *clip, done func()) {
	ticker := time.NewTicker(p.poll)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
		}
		if !c.player.IsPlaying() {
			break
		}
	}

	p.mu.Lock()
	if p.current != c {
		p.mu.Unlock()
		return
	}
	p.current = nil
	p.state.Store(int32(StateStopped))
	c.halt()
	p.mu.Unlock()

	if done != nil {
		done()
	}
}

// Stop ends the current clip without reporting completion.
func (p *Player) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	return nil
}

func (p *Player) stopLocked() {
	if p.current == nil {
		return
	}
	p.current.halt()
	p.current = nil
	if !p.closed {
		p.state.Store(int32(StateStopped))
	}
}

// IsPlaying reports whether a clip is in progress.
func (p *Player) IsPlaying() bool {
	return PlayerState(p.state.Load()) == StatePlaying
}

// State returns the current player state.
func (p *Player) State() PlayerState {
	return PlayerState(p.state.Load())
}

// SetVolume sets the playback volume (0.0 to 1.0).
func (p *Player) SetVolume(volume float64) error {
	if volume < 0.0 || volume > 1.0 {
		return fmt.Errorf("volume must be between 0.0 and 1.0, got %f", volume)
	}
	p.volume.Store(uint64(volume * 1000000))

	p.mu.Lock()
	if p.current != nil {
		p.current.player.SetVolume(volume)
	}
	p.mu.Unlock()
	return nil
}

// Volume returns the current volume.
func (p *Player) Volume() float64 {
	return p.getVolume()
}

func (p *Player) getVolume() float64 {
	return float64(p.volume.Load()) / 1000000.0
}

// Close stops playback. The oto context lives until process exit.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()
	p.closed = true
	p.state.Store(int32(StateClosed))
	return nil
}

var _ Sink = (*Player)(nil)
