// Package capture supplies raw interleaved PCM blocks to the pipeline.
package capture

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/mutker/vibesd/internal/audio"
	"codeberg.org/mutker/vibesd/internal/errors"
	"codeberg.org/mutker/vibesd/internal/logger"
)

const Stdin = "stdin"

// Metadata describes a capture stream.
type Metadata struct {
	DeviceName string
	SampleRate int
	Channels   int
	Format     audio.SampleFormat
}

// Source produces raw sample blocks until its input ends or ctx is done.
type Source interface {
	Metadata() Metadata
	Run(ctx context.Context, blocks chan<- []byte) error
	Close() error
}

type Config struct {
	// Input is "stdin" or a file path. Empty means no capture.
	Input      string
	SampleRate int
	Channels   int
	Format     audio.SampleFormat
	BlockSize  int
}

func (c Config) Validate() error {
	if c.SampleRate <= 0 || c.Channels <= 0 || c.BlockSize <= 0 {
		return errors.New().WithData(ErrInvalidConfig, struct {
			SampleRate int
			Channels   int
			BlockSize  int
		}{c.SampleRate, c.Channels, c.BlockSize})
	}
	if c.Format.BytesPerSample() == 0 {
		return errors.New().WithData(ErrInvalidConfig, string(c.Format))
	}
	return nil
}

// Open resolves cfg.Input to a Source. Regular files are paced to the
// configured sample rate; pipes and stdin are read as fast as they fill.
func Open(cfg Config, log logger.Logger) (Source, error) {
	errFactory := errors.New()

	if cfg.Input == "" {
		return nil, errFactory.New(ErrNoSource)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Input == Stdin || cfg.Input == "-" {
		return NewReaderSource(os.Stdin, cfg, Stdin, false, log), nil
	}

	f, err := os.Open(cfg.Input)
	if err != nil {
		return nil, errFactory.Wrap(ErrOpenFailed, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errFactory.Wrap(ErrOpenFailed, err)
	}

	return NewReaderSource(f, cfg, filepath.Base(cfg.Input), info.Mode().IsRegular(), log), nil
}

// ReaderSource slices an io.Reader into fixed-size blocks.
type ReaderSource struct {
	r        io.Reader
	closer   io.Closer
	meta     Metadata
	blockLen int
	pace     time.Duration
	log      logger.Logger

	closeOnce sync.Once
	closeErr  error
}

// NewReaderSource wraps r. When paced, blocks are emitted no faster than
// real time for the configured rate.
func NewReaderSource(r io.Reader, cfg Config, name string, paced bool, log logger.Logger) *ReaderSource {
	if log == nil {
		log = logger.Nop()
	}

	s := &ReaderSource{
		r:        bufio.NewReader(r),
		meta:     Metadata{DeviceName: name, SampleRate: cfg.SampleRate, Channels: cfg.Channels, Format: cfg.Format},
		blockLen: cfg.BlockSize * cfg.Channels * cfg.Format.BytesPerSample(),
		log:      log,
	}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	if paced && cfg.SampleRate > 0 {
		s.pace = time.Duration(cfg.BlockSize) * time.Second / time.Duration(cfg.SampleRate)
	}

	return s
}

func (s *ReaderSource) Metadata() Metadata {
	return s.meta
}

type readResult struct {
	buf []byte
	err error
}

// Run reads until EOF, a read error or cancellation. A short final block is
// still delivered. EOF is not an error. Cancelling ctx closes the source so
// a read blocked on an idle pipe is released.
func (s *ReaderSource) Run(ctx context.Context, blocks chan<- []byte) error {
	stop := context.AfterFunc(ctx, func() {
		if err := s.Close(); err != nil {
			s.log.Debug().Err(err).Msg("Failed to close capture input on cancel")
		}
	})
	defer stop()

	readCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	reads := make(chan readResult)
	go s.readLoop(readCtx, reads)

	var tick <-chan time.Time
	if s.pace > 0 {
		ticker := time.NewTicker(s.pace)
		defer ticker.Stop()
		tick = ticker.C
	}

	s.log.Info().
		Str("device", s.meta.DeviceName).
		Int("sample_rate", s.meta.SampleRate).
		Int("channels", s.meta.Channels).
		Str("format", string(s.meta.Format)).
		Dur("pace", s.pace).
		Msg("Capture started")

	var blocksRead uint64
	for {
		var res readResult
		select {
		case <-ctx.Done():
			return nil
		case res = <-reads:
		}

		if len(res.buf) > 0 {
			if tick != nil {
				select {
				case <-ctx.Done():
					return nil
				case <-tick:
				}
			}

			select {
			case <-ctx.Done():
				return nil
			case blocks <- res.buf:
				blocksRead++
			}
		}

		switch {
		case res.err == nil:
			continue
		case errors.Is(res.err, io.EOF), errors.Is(res.err, io.ErrUnexpectedEOF):
			s.log.Info().Uint64("blocks", blocksRead).Msg("Capture input ended")
			return nil
		default:
			if ctx.Err() != nil {
				return nil
			}
			return errors.New().Wrap(ErrReadFailed, res.err)
		}
	}
}

// readLoop owns the reader. It stops after the first error or once Run has
// returned.
func (s *ReaderSource) readLoop(ctx context.Context, out chan<- readResult) {
	for {
		buf := make([]byte, s.blockLen)
		n, err := io.ReadFull(s.r, buf)

		select {
		case <-ctx.Done():
			return
		case out <- readResult{buf: buf[:n], err: err}:
		}

		if err != nil {
			return
		}
	}
}

// Close releases the underlying input. It is safe to call more than once.
func (s *ReaderSource) Close() error {
	s.closeOnce.Do(func() {
		if s.closer != nil {
			s.closeErr = s.closer.Close()
		}
	})
	return s.closeErr
}
