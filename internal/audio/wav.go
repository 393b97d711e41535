// Package audio writes synthesized PCM clips to disk as WAV files.
package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/book-expert/voice-clone-service/internal/core"
)

const (
	bitDepth       = 16
	numChannels    = 1
	wavAudioFormat = 1
	dirPermissions = 0o750

	minSampleRate = 8000
	maxSampleRate = 192000

	maxInt16 = 32767
	minInt16 = -32768
)

// Static errors for clip validation.
var (
	ErrEmptyClip         = errors.New("clip contains no samples")
	ErrInvalidSampleRate = errors.New("sample rate out of range")
	ErrSampleOutOfRange  = errors.New("sample exceeds 16-bit range")
)

// WAVWriter encodes mono 16-bit PCM clips as WAV files. It creates
// missing parent directories on demand.
type WAVWriter struct{}

// NewWAVWriter creates a WAVWriter.
func NewWAVWriter() *WAVWriter {
	return &WAVWriter{}
}

// Write validates the clip and encodes it to destinationPath. All
// failures wrap core.ErrAudioWrite so batch callers can classify them.
func (w *WAVWriter) Write(clip core.Clip, destinationPath string) error {
	err := validateClip(clip)
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrAudioWrite, err)
	}

	err = os.MkdirAll(filepath.Dir(destinationPath), dirPermissions)
	if err != nil {
		return fmt.Errorf("%w: failed to create directory: %w", core.ErrAudioWrite, err)
	}

	err = encodeFile(clip, destinationPath)
	if err != nil {
		// Do not leave a truncated WAV behind.
		_ = os.Remove(destinationPath)

		return fmt.Errorf("%w: %w", core.ErrAudioWrite, err)
	}

	return nil
}

func validateClip(clip core.Clip) error {
	if len(clip.PCM) == 0 {
		return ErrEmptyClip
	}

	if clip.SampleRate < minSampleRate || clip.SampleRate > maxSampleRate {
		return fmt.Errorf("%w: %d", ErrInvalidSampleRate, clip.SampleRate)
	}

	for i, sample := range clip.PCM {
		if sample > maxInt16 || sample < minInt16 {
			return fmt.Errorf("%w: sample %d is %d", ErrSampleOutOfRange, i, sample)
		}
	}

	return nil
}

func encodeFile(clip core.Clip, destinationPath string) error {
	file, err := os.Create(destinationPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	encoder := wav.NewEncoder(file, clip.SampleRate, bitDepth, numChannels, wavAudioFormat)
	buffer := &goaudio.IntBuffer{
		Data: clip.PCM,
		Format: &goaudio.Format{
			SampleRate:  clip.SampleRate,
			NumChannels: numChannels,
		},
		SourceBitDepth: bitDepth,
	}

	err = encoder.Write(buffer)
	if err != nil {
		_ = encoder.Close()
		_ = file.Close()

		return fmt.Errorf("failed to encode samples: %w", err)
	}

	err = encoder.Close()
	if err != nil {
		_ = file.Close()

		return fmt.Errorf("failed to finalize encoder: %w", err)
	}

	err = file.Close()
	if err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}

	return nil
}
