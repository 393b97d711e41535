// Package worker provides a NATS worker that runs voice-clone synthesis
// jobs: it downloads a text document from the object store, renders one
// WAV per line and uploads the clips.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/voice-clone-service/internal/core"
	"github.com/book-expert/voice-clone-service/internal/synth"
	"github.com/book-expert/voice-clone-service/internal/textio"
)

// Synthesis of a long document is slow, so jobs get a generous deadline.
const handleMessageTimeout = 10 * time.Minute

const defaultOutputPrefix = "tts"

var (
	// ErrTextKeyEmpty indicates the event names no text object.
	ErrTextKeyEmpty = errors.New("text key cannot be empty")
	// ErrVoiceUnspecified indicates neither a registered voice nor a
	// reference audio object was given.
	ErrVoiceUnspecified = errors.New("either voice name or reference audio key is required")
)

// SynthesisRequestedEvent asks the worker to synthesize every line of a
// stored text document with one reference voice.
type SynthesisRequestedEvent struct {
	JobID             string `json:"job_id"`
	TextKey           string `json:"text_key"`
	VoiceName         string `json:"voice_name,omitempty"`
	ReferenceAudioKey string `json:"reference_audio_key,omitempty"`
	ReferenceText     string `json:"reference_text,omitempty"`
	OutputPrefix      string `json:"output_prefix,omitempty"`
}

// SynthesisCompletedEvent reports the uploaded clips for a job.
type SynthesisCompletedEvent struct {
	JobID     string   `json:"job_id"`
	AudioKeys []string `json:"audio_keys"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
}

// NatsWorker listens for synthesis jobs on a NATS subject.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	textStore      core.ObjectStore
	audioStore     core.ObjectStore
	synthesizer    *synth.Synthesizer
	log            *logger.Logger
}

// NewNatsWorker creates a worker bound to a subject and two buckets:
// textStore holds input documents, audioStore receives rendered clips.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	textStore core.ObjectStore,
	audioStore core.ObjectStore,
	synthesizer *synth.Synthesizer,
	log *logger.Logger,
) *NatsWorker {
	return &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		textStore:      textStore,
		audioStore:     audioStore,
		synthesizer:    synthesizer,
		log:            log,
	}
}

// Run subscribes and blocks until the context is canceled, then drains
// the subscription.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.subject, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), handleMessageTimeout)
	defer cancel()

	event, err := parseAndValidateEvent(msg)
	if err != nil {
		w.log.Error("Failed to parse and validate event: %v", err)

		return
	}

	replyEvent, processErr := w.processJob(ctx, event)
	if processErr != nil {
		w.log.Error("Failed to process synthesis job %s: %v", event.JobID, processErr)

		return
	}

	err = w.publishReplyEvent(msg, replyEvent)
	if err != nil {
		w.log.Error("Failed to publish reply event for job %s: %v", event.JobID, err)

		return
	}

	// The text document is consumed; drop it so the bucket does not
	// accumulate stale inputs.
	deleteErr := w.textStore.Delete(ctx, event.TextKey)
	if deleteErr != nil {
		w.log.Warn("Failed to delete consumed text object '%s': %v", event.TextKey, deleteErr)
	}
}

// processJob downloads the text, synthesizes each line into a scratch
// directory and uploads the resulting clips under the job's prefix.
func (w *NatsWorker) processJob(
	ctx context.Context,
	event *SynthesisRequestedEvent,
) (*SynthesisCompletedEvent, error) {
	textData, err := w.textStore.Download(ctx, event.TextKey)
	if err != nil {
		return nil, fmt.Errorf("failed to download text data for key '%s': %w", event.TextKey, err)
	}

	texts, err := textio.ReadLines(bytes.NewReader(textData))
	if err != nil {
		return nil, fmt.Errorf("failed to split text document: %w", err)
	}

	texts = textio.NormalizeAll(texts)

	scratchDir, err := os.MkdirTemp("", "voice-clone-job-")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}

	defer func() { _ = os.RemoveAll(scratchDir) }()

	selector, err := w.buildSelector(ctx, event, scratchDir)
	if err != nil {
		return nil, err
	}

	prefix := event.OutputPrefix
	if prefix == "" {
		prefix = defaultOutputPrefix
	}

	results, err := w.synthesizer.Run(ctx, synth.BatchRequest{
		Texts:          texts,
		Selector:       selector,
		OutputDir:      filepath.Join(scratchDir, "out"),
		FilenamePrefix: prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("synthesis failed for job '%s': %w", event.JobID, err)
	}

	return w.uploadResults(ctx, event.JobID, results)
}

// buildSelector maps the event to a voice selector. A reference audio
// key is materialized as a scratch file so the model server can read it.
func (w *NatsWorker) buildSelector(
	ctx context.Context,
	event *SynthesisRequestedEvent,
	scratchDir string,
) (core.VoiceSelector, error) {
	if event.ReferenceAudioKey == "" {
		return core.VoiceSelector{
			Voice:              event.VoiceName,
			ReferenceAudioPath: "",
			ReferenceText:      event.ReferenceText,
		}, nil
	}

	audioData, err := w.audioStore.Download(ctx, event.ReferenceAudioKey)
	if err != nil {
		return core.VoiceSelector{}, fmt.Errorf(
			"failed to download reference audio '%s': %w", event.ReferenceAudioKey, err,
		)
	}

	referencePath := filepath.Join(scratchDir, "reference"+filepath.Ext(event.ReferenceAudioKey))

	err = os.WriteFile(referencePath, audioData, 0o600)
	if err != nil {
		return core.VoiceSelector{}, fmt.Errorf("failed to write reference audio: %w", err)
	}

	return core.VoiceSelector{
		Voice:              "",
		ReferenceAudioPath: referencePath,
		ReferenceText:      event.ReferenceText,
	}, nil
}

func (w *NatsWorker) uploadResults(
	ctx context.Context,
	jobID string,
	results []core.SynthesisResult,
) (*SynthesisCompletedEvent, error) {
	reply := &SynthesisCompletedEvent{
		JobID:     jobID,
		AudioKeys: make([]string, 0, len(results)),
		Succeeded: 0,
		Failed:    0,
	}

	for _, result := range results {
		if !result.Succeeded() {
			reply.Failed++

			continue
		}

		clipData, err := os.ReadFile(result.OutputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read clip '%s': %w", result.OutputPath, err)
		}

		audioKey := jobID + "/" + filepath.Base(result.OutputPath)

		err = w.audioStore.Upload(ctx, audioKey, clipData)
		if err != nil {
			return nil, fmt.Errorf("failed to upload audio data for key '%s': %w", audioKey, err)
		}

		reply.AudioKeys = append(reply.AudioKeys, audioKey)
		reply.Succeeded++
	}

	return reply, nil
}

func (w *NatsWorker) publishReplyEvent(msg *nats.Msg, replyEvent *SynthesisCompletedEvent) error {
	replyData, err := json.Marshal(replyEvent)
	if err != nil {
		return fmt.Errorf("failed to marshal reply event: %w", err)
	}

	err = msg.Respond(replyData)
	if err != nil {
		return fmt.Errorf("failed to publish reply event: %w", err)
	}

	return nil
}

func parseAndValidateEvent(msg *nats.Msg) (*SynthesisRequestedEvent, error) {
	var event SynthesisRequestedEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	// Jobs submitted without an identifier still need a stable upload
	// prefix.
	if event.JobID == "" {
		event.JobID = uuid.NewString()
	}

	if event.TextKey == "" {
		return nil, ErrTextKeyEmpty
	}

	if event.VoiceName == "" && event.ReferenceAudioKey == "" {
		return nil, ErrVoiceUnspecified
	}

	return &event, nil
}
