package capture

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/vibesd/internal/audio"
	"codeberg.org/mutker/vibesd/internal/errors"
	"codeberg.org/mutker/vibesd/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{SampleRate: 8000, Channels: 2, Format: audio.FormatS16LE, BlockSize: 4}
}

func drain(t *testing.T, s Source) [][]byte {
	t.Helper()

	blocks := make(chan []byte, 64)
	require.NoError(t, s.Run(context.Background(), blocks))
	close(blocks)

	var out [][]byte
	for b := range blocks {
		out = append(out, b)
	}
	return out
}

func TestReaderSourceBlocks(t *testing.T) {
	// 4 frames * 2 channels * 2 bytes = 16 bytes per block
	data := bytes.Repeat([]byte{1}, 40)
	s := NewReaderSource(bytes.NewReader(data), testConfig(), "test", false, logger.Nop())

	got := drain(t, s)
	require.Len(t, got, 3)
	assert.Len(t, got[0], 16)
	assert.Len(t, got[1], 16)
	assert.Len(t, got[2], 8, "short tail is delivered")

	assert.Equal(t, Metadata{DeviceName: "test", SampleRate: 8000, Channels: 2, Format: audio.FormatS16LE}, s.Metadata())
}

func TestReaderSourceEmptyInput(t *testing.T) {
	s := NewReaderSource(bytes.NewReader(nil), testConfig(), "empty", false, logger.Nop())
	assert.Empty(t, drain(t, s))
}

func TestReaderSourcePacing(t *testing.T) {
	cfg := testConfig()
	cfg.SampleRate = 400 // 4 frames per block => 10ms per block

	data := bytes.Repeat([]byte{0}, 16*5)
	s := NewReaderSource(bytes.NewReader(data), cfg, "paced", true, logger.Nop())

	start := time.Now()
	got := drain(t, s)
	require.Len(t, got, 5)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestReaderSourceStopsOnCancel(t *testing.T) {
	data := bytes.Repeat([]byte{0}, 16*100)
	s := NewReaderSource(bytes.NewReader(data), testConfig(), "blocked", false, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	blocks := make(chan []byte) // nobody reads

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, blocks) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestReaderSourceIdlePipeStopsOnCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	s := NewReaderSource(pr, testConfig(), "pipe", false, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	blocks := make(chan []byte, 4)

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, blocks) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run still blocked on an idle pipe after cancel")
	}

	assert.Eventually(t, func() bool {
		_, err := pw.Write([]byte{0})
		return errors.Is(err, io.ErrClosedPipe)
	}, time.Second, 10*time.Millisecond, "cancel closes the input")
	assert.NoError(t, s.Close(), "close is idempotent")
}

func TestReaderSourcePipeDeliversBeforeCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	s := NewReaderSource(pr, testConfig(), "pipe", false, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	blocks := make(chan []byte, 4)

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, blocks) }()

	go pw.Write(bytes.Repeat([]byte{7}, 16))

	select {
	case b := <-blocks:
		assert.Equal(t, bytes.Repeat([]byte{7}, 16), b)
	case <-time.After(time.Second):
		t.Fatal("no block delivered")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestOpen(t *testing.T) {
	_, err := Open(Config{}, logger.Nop())
	assert.True(t, errors.HasCode(err, ErrNoSource))

	cfg := testConfig()
	cfg.Input = filepath.Join(t.TempDir(), "missing.raw")
	_, err = Open(cfg, logger.Nop())
	assert.True(t, errors.HasCode(err, ErrOpenFailed))

	cfg.Input = filepath.Join(t.TempDir(), "tone.raw")
	require.NoError(t, os.WriteFile(cfg.Input, make([]byte, 32), 0o600))
	src, err := Open(cfg, logger.Nop())
	require.NoError(t, err)
	defer src.Close()
	assert.Equal(t, "tone.raw", src.Metadata().DeviceName)

	bad := testConfig()
	bad.Input = Stdin
	bad.BlockSize = 0
	_, err = Open(bad, logger.Nop())
	assert.True(t, errors.HasCode(err, ErrInvalidConfig))
}
