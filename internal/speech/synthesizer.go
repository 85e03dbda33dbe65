// Package speech synthesizes one section's narration as a single WAV,
// chunk by chunk.
package speech

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MimeLyc/article-narrator/internal/termmap"
	"github.com/MimeLyc/article-narrator/internal/voicevox"
	"github.com/MimeLyc/article-narrator/internal/wav"
	"github.com/MimeLyc/article-narrator/pkg/log"
)

// DefaultDelay separates consecutive synthesis requests.
const DefaultDelay = 100 * time.Millisecond

var (
	// ErrEmptyText is returned when there is nothing to speak.
	ErrEmptyText = errors.New("no text to synthesize")

	// ErrEmptyAudio is returned when the engine answers with no bytes.
	ErrEmptyAudio = errors.New("engine returned empty audio")
)

// TTS is the two-step synthesis protocol of the speech engine.
type TTS interface {
	AudioQuery(ctx context.Context, text string, speaker int) (*voicevox.AudioQuery, error)
	Synthesis(ctx context.Context, query *voicevox.AudioQuery, speaker int) ([]byte, error)
}

var _ TTS = (*voicevox.Client)(nil)

// Synthesizer turns section scripts into WAV audio.
type Synthesizer struct {
	tts        TTS
	chunkLimit int
	delay      time.Duration
	speedScale float64
	readings   termmap.TermMap
	logger     *log.Logger
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithChunkLimit sets the per-request rune limit.
func WithChunkLimit(n int) Option {
	return func(s *Synthesizer) {
		if n > 0 {
			s.chunkLimit = n
		}
	}
}

// WithDelay sets the pause between chunk requests.
func WithDelay(d time.Duration) Option {
	return func(s *Synthesizer) {
		if d >= 0 {
			s.delay = d
		}
	}
}

// WithSpeedScale overrides the engine's speaking speed; 0 keeps the default.
func WithSpeedScale(scale float64) Option {
	return func(s *Synthesizer) {
		s.speedScale = scale
	}
}

// WithReadings rewrites terms to their readings before each request.
func WithReadings(tm termmap.TermMap) Option {
	return func(s *Synthesizer) {
		s.readings = tm
	}
}

func NewSynthesizer(tts TTS, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		tts:        tts,
		chunkLimit: DefaultChunkLimit,
		delay:      DefaultDelay,
		logger:     log.With("speech"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Synthesize speaks text with speaker and returns one merged WAV.
//
// Chunks are requested strictly in order. Any failure discards the audio
// produced so far and is returned as is.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, speaker int) ([]byte, error) {
	chunks := SplitText(termmap.Apply(s.readings, text), s.chunkLimit)
	if len(chunks) == 0 {
		return nil, ErrEmptyText
	}

	parts := make([][]byte, 0, len(chunks))
	for i, chunk := range chunks {
		if i > 0 && s.delay > 0 {
			if err := sleep(ctx, s.delay); err != nil {
				return nil, err
			}
		}

		audio, err := s.synthesizeChunk(ctx, chunk, speaker)
		if err != nil {
			return nil, fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
		parts = append(parts, audio)
	}

	if len(chunks) > 1 {
		s.logger.Debug("merging %d chunks for speaker %d", len(chunks), speaker)
	}

	merged, err := wav.Concat(parts)
	if err != nil {
		return nil, fmt.Errorf("merge chunks: %w", err)
	}
	return merged, nil
}

func (s *Synthesizer) synthesizeChunk(ctx context.Context, text string, speaker int) ([]byte, error) {
	query, err := s.tts.AudioQuery(ctx, text, speaker)
	if err != nil {
		return nil, err
	}
	if query == nil {
		return nil, fmt.Errorf("engine returned no audio query")
	}
	if s.speedScale > 0 {
		query.SpeedScale = s.speedScale
	}

	audio, err := s.tts.Synthesis(ctx, query, speaker)
	if err != nil {
		return nil, err
	}
	if len(audio) == 0 {
		return nil, ErrEmptyAudio
	}
	if _, err := wav.ParseFormat(audio); err != nil {
		return nil, err
	}
	return audio, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
