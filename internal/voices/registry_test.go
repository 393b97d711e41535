// Package voices_test tests voice name resolution over the directory
// convention.
package voices_test

import (
	"errors"
	"testing"
	"testing/fstest"

	"github.com/book-expert/voice-clone-service/internal/core"
	"github.com/book-expert/voice-clone-service/internal/voices"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testVoicesFS() fstest.MapFS {
	return fstest.MapFS{
		"赵信.wav":      &fstest.MapFile{Data: []byte("RIFFxxxx")},
		"赵信.txt":      &fstest.MapFile{Data: []byte("  德玛西亚万岁。\n")},
		"narrator.mp3": &fstest.MapFile{Data: []byte("ID3xxxx")},
		"narrator.wav": &fstest.MapFile{Data: []byte("RIFFxxxx")},
		"narrator.txt": &fstest.MapFile{Data: []byte("Once upon a time.")},
		"silent.wav":   &fstest.MapFile{Data: []byte("RIFFxxxx")},
		"notes.md":     &fstest.MapFile{Data: []byte("not a voice")},
	}
}

func TestRegistry_List(t *testing.T) {
	t.Parallel()

	registry := voices.New(testVoicesFS(), "")

	names, err := registry.List()
	require.NoError(t, err)

	assert.Equal(t, []string{"narrator", "silent", "赵信"}, names)

	// Idempotent absent filesystem changes.
	again, err := registry.List()
	require.NoError(t, err)
	assert.Equal(t, names, again)
}

func TestRegistry_Resolve(t *testing.T) {
	t.Parallel()

	registry := voices.New(testVoicesFS(), "assets/voices")

	profile, err := registry.Resolve("赵信")
	require.NoError(t, err)

	assert.Equal(t, "赵信", profile.Name)
	assert.Equal(t, "assets/voices/赵信.wav", profile.ReferenceAudioPath)
	assert.Equal(t, "德玛西亚万岁。", profile.ReferenceText)
}

func TestRegistry_Resolve_PrefersWavOverMp3(t *testing.T) {
	t.Parallel()

	registry := voices.New(testVoicesFS(), "")

	profile, err := registry.Resolve("narrator")
	require.NoError(t, err)

	assert.Equal(t, "narrator.wav", profile.ReferenceAudioPath)
}

func TestRegistry_Resolve_MissingTranscript(t *testing.T) {
	t.Parallel()

	registry := voices.New(testVoicesFS(), "")

	profile, err := registry.Resolve("silent")
	require.NoError(t, err)

	assert.Empty(t, profile.ReferenceText)
}

func TestRegistry_EveryListedVoiceResolves(t *testing.T) {
	t.Parallel()

	// Uppercase extensions are listed, so they must resolve too.
	fsys := fstest.MapFS{
		"Shouty.WAV": &fstest.MapFile{Data: []byte("RIFFxxxx")},
		"Mixed.Mp3":  &fstest.MapFile{Data: []byte("ID3xxxx")},
	}

	registry := voices.New(fsys, "voices")

	names, err := registry.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"Mixed", "Shouty"}, names)

	for _, name := range names {
		profile, resolveErr := registry.Resolve(name)
		require.NoError(t, resolveErr, "listed voice %q must resolve", name)
		assert.Equal(t, name, profile.Name)
	}

	profile, err := registry.Resolve("Shouty")
	require.NoError(t, err)
	assert.Equal(t, "voices/Shouty.WAV", profile.ReferenceAudioPath)
}

func TestRegistry_Resolve_Unknown(t *testing.T) {
	t.Parallel()

	registry := voices.New(testVoicesFS(), "")

	_, err := registry.Resolve("不存在的音色")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrVoiceNotFound))
}
