package audio_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/voice-clone-service/internal/audio"
	"github.com/book-expert/voice-clone-service/internal/core"
)

func TestWAVWriter_WriteAndDecode(t *testing.T) {
	t.Parallel()

	clip := core.Clip{
		PCM:        []int{0, 1000, -1000, 32767, -32768, 0},
		SampleRate: 24000,
	}
	outputPath := filepath.Join(t.TempDir(), "clip.wav")

	writer := audio.NewWAVWriter()
	require.NoError(t, writer.Write(clip, outputPath))

	file, err := os.Open(outputPath)
	require.NoError(t, err)

	defer func() { _ = file.Close() }()

	decoder := wav.NewDecoder(file)
	require.True(t, decoder.IsValidFile())

	buffer, err := decoder.FullPCMBuffer()
	require.NoError(t, err)

	assert.Equal(t, clip.PCM, buffer.Data)
	assert.Equal(t, 24000, buffer.Format.SampleRate)
	assert.Equal(t, 1, buffer.Format.NumChannels)
}

func TestWAVWriter_CreatesParentDirectories(t *testing.T) {
	t.Parallel()

	outputPath := filepath.Join(t.TempDir(), "nested", "deeper", "clip.wav")
	clip := core.Clip{PCM: []int{1, 2, 3}, SampleRate: 24000}

	writer := audio.NewWAVWriter()
	require.NoError(t, writer.Write(clip, outputPath))

	_, err := os.Stat(outputPath)
	require.NoError(t, err)
}

func TestWAVWriter_RejectsEmptyClip(t *testing.T) {
	t.Parallel()

	writer := audio.NewWAVWriter()

	err := writer.Write(
		core.Clip{PCM: nil, SampleRate: 24000},
		filepath.Join(t.TempDir(), "empty.wav"),
	)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrAudioWrite))
	assert.True(t, errors.Is(err, audio.ErrEmptyClip))
}

func TestWAVWriter_RejectsBadSampleRate(t *testing.T) {
	t.Parallel()

	writer := audio.NewWAVWriter()

	err := writer.Write(
		core.Clip{PCM: []int{1, 2}, SampleRate: 0},
		filepath.Join(t.TempDir(), "bad.wav"),
	)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrAudioWrite))
	assert.True(t, errors.Is(err, audio.ErrInvalidSampleRate))
}

func TestWAVWriter_RejectsOutOfRangeSamples(t *testing.T) {
	t.Parallel()

	writer := audio.NewWAVWriter()

	err := writer.Write(
		core.Clip{PCM: []int{40000}, SampleRate: 24000},
		filepath.Join(t.TempDir(), "loud.wav"),
	)
	require.Error(t, err)
	assert.True(t, errors.Is(err, audio.ErrSampleOutOfRange))
}
