// Package voices resolves registered voice names to reference audio and
// transcript pairs under a fixed directory convention.
//
// A voice named N is a file N.wav or N.mp3 in the voices directory, with
// an optional co-located transcript N.txt sharing the base name.
package voices

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/book-expert/voice-clone-service/internal/core"
)

// Accepted reference audio extensions, in lookup priority order.
var audioExtensions = []string{".wav", ".mp3"}

const transcriptExtension = ".txt"

// Registry resolves voice names against a snapshot of the voices
// directory. The filesystem is injected so the registry is testable
// without touching disk.
type Registry struct {
	fsys fs.FS
	root string
}

// NewDirRegistry creates a Registry over a real directory. Reference
// audio paths in resolved profiles are rooted at dir.
func NewDirRegistry(dir string) *Registry {
	return &Registry{
		fsys: os.DirFS(dir),
		root: dir,
	}
}

// New creates a Registry over an arbitrary filesystem. Resolved paths are
// joined onto root, which may be empty.
func New(fsys fs.FS, root string) *Registry {
	return &Registry{
		fsys: fsys,
		root: root,
	}
}

// List returns the sorted, de-duplicated names of all registered voices.
// A voice with both a .wav and an .mp3 file is listed once.
func (r *Registry) List() ([]string, error) {
	entries, err := fs.ReadDir(r.fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read voices directory: %w", err)
	}

	seen := make(map[string]struct{})

	var names []string

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name, ok := voiceName(entry.Name())
		if !ok {
			continue
		}

		if _, dup := seen[name]; dup {
			continue
		}

		seen[name] = struct{}{}
		names = append(names, name)
	}

	sort.Strings(names)

	return names, nil
}

// Resolve returns the VoiceProfile for a registered voice name, or
// core.ErrVoiceNotFound if no reference audio exists for it. The
// transcript is optional; a missing or empty transcript file yields an
// empty ReferenceText.
func (r *Registry) Resolve(name string) (core.VoiceProfile, error) {
	audioFile, err := r.findAudioFile(name)
	if err != nil {
		return core.VoiceProfile{}, err
	}

	referenceText, err := r.readTranscript(name)
	if err != nil {
		return core.VoiceProfile{}, err
	}

	return core.VoiceProfile{
		Name:               name,
		ReferenceAudioPath: filepath.Join(r.root, audioFile),
		ReferenceText:      referenceText,
	}, nil
}

// findAudioFile scans the directory with the same extension match List
// uses, so every listed name resolves.
func (r *Registry) findAudioFile(name string) (string, error) {
	entries, err := fs.ReadDir(r.fsys, ".")
	if err != nil {
		return "", fmt.Errorf("failed to read voices directory: %w", err)
	}

	for _, ext := range audioExtensions {
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}

			fileName := entry.Name()
			if strings.EqualFold(filepath.Ext(fileName), ext) &&
				strings.TrimSuffix(fileName, filepath.Ext(fileName)) == name {
				return fileName, nil
			}
		}
	}

	return "", fmt.Errorf("%w: %q", core.ErrVoiceNotFound, name)
}

func (r *Registry) readTranscript(name string) (string, error) {
	data, err := fs.ReadFile(r.fsys, name+transcriptExtension)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}

		return "", fmt.Errorf("failed to read transcript for voice %q: %w", name, err)
	}

	return strings.TrimSpace(string(data)), nil
}

// voiceName strips a permitted audio extension from a filename, reporting
// whether the file is a reference audio clip at all.
func voiceName(filename string) (string, bool) {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, allowed := range audioExtensions {
		if ext == allowed {
			return strings.TrimSuffix(filename, filepath.Ext(filename)), true
		}
	}

	return "", false
}
