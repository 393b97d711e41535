// Package worker_test tests the NATS synthesis worker end to end with
// an embedded NATS server and a mocked speech model.
package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/voice-clone-service/internal/audio"
	"github.com/book-expert/voice-clone-service/internal/core"
	"github.com/book-expert/voice-clone-service/internal/synth"
	"github.com/book-expert/voice-clone-service/internal/worker"
)

const testSubject = "voice-clone.synthesize"

var errMockDownload = errors.New("mock download error")

// mockObjectStore keeps uploaded objects in memory. Guarded by a mutex:
// the worker goroutine touches it concurrently with test assertions.
type mockObjectStore struct {
	mu                 sync.Mutex
	objects            map[string][]byte
	downloadShouldFail bool
}

func newMockObjectStore() *mockObjectStore {
	return &mockObjectStore{
		mu:                 sync.Mutex{},
		objects:            map[string][]byte{},
		downloadShouldFail: false,
	}
}

func (m *mockObjectStore) Download(_ context.Context, key string) ([]byte, error) {
	if m.downloadShouldFail {
		return nil, errMockDownload
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", nats.ErrObjectNotFound, key)
	}

	return data, nil
}

func (m *mockObjectStore) Upload(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.objects[key] = data

	return nil
}

func (m *mockObjectStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.objects, key)

	return nil
}

func (m *mockObjectStore) put(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.objects[key] = data
}

func (m *mockObjectStore) get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.objects[key]

	return data, ok
}

// mockResolver serves a single registered voice.
type mockResolver struct{}

func (m *mockResolver) List() ([]string, error) {
	return []string{"赵信"}, nil
}

func (m *mockResolver) Resolve(name string) (core.VoiceProfile, error) {
	if name != "赵信" {
		return core.VoiceProfile{}, fmt.Errorf("%w: %q", core.ErrVoiceNotFound, name)
	}

	return core.VoiceProfile{
		Name:               "赵信",
		ReferenceAudioPath: "/voices/赵信.wav",
		ReferenceText:      "德玛西亚万岁。",
	}, nil
}

// mockModel emits a short fixed clip per generation.
type mockModel struct{}

func (m *mockModel) EnsureLoaded(_ context.Context) error { return nil }

func (m *mockModel) BuildConditioning(
	_ context.Context,
	profile core.VoiceProfile,
) (core.Conditioning, error) {
	return core.Conditioning{
		PromptID:           "prompt-1",
		ReferenceAudioPath: profile.ReferenceAudioPath,
		ReferenceText:      profile.ReferenceText,
	}, nil
}

func (m *mockModel) Generate(
	_ context.Context,
	_ string,
	_ core.Conditioning,
) (core.Clip, error) {
	return core.Clip{PCM: []int{0, 1000, -1000, 0}, SampleRate: 24000}, nil
}

func createTestNatsClient(t *testing.T) *nats.Conn {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1 // Use a random port
	server := test.RunServer(&opts)
	t.Cleanup(server.Shutdown)

	natsConnection, err := nats.Connect(server.ClientURL())
	if err != nil {
		t.Fatalf("Failed to connect to test NATS server: %v", err)
	}

	t.Cleanup(natsConnection.Close)

	return natsConnection
}

func setupTest(t *testing.T) (*nats.Conn, *mockObjectStore, *mockObjectStore, chan error, context.CancelFunc) {
	t.Helper()

	natsConnection := createTestNatsClient(t)

	testLogger, err := logger.New(t.TempDir(), "test.log")
	require.NoError(t, err)
	t.Cleanup(func() { _ = testLogger.Close() })

	textStore := newMockObjectStore()
	audioStore := newMockObjectStore()

	synthesizer := synth.NewSynthesizer(
		&mockResolver{}, &mockModel{}, audio.NewWAVWriter(), testLogger,
	)
	workerInstance := worker.NewNatsWorker(
		natsConnection, testSubject, textStore, audioStore, synthesizer, testLogger,
	)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	errChan := make(chan error, 1)

	go func() {
		errChan <- workerInstance.Run(ctx)
	}()

	// Wait until the worker's subscription has reached the server;
	// otherwise a request sent immediately gets "no responders".
	require.Eventually(t, func() bool {
		return natsConnection.NumSubscriptions() > 0
	}, 5*time.Second, 10*time.Millisecond, "worker subscription should register")
	require.NoError(t, natsConnection.Flush())

	return natsConnection, textStore, audioStore, errChan, cancel
}

func TestWorker_ProcessesJob(t *testing.T) {
	t.Parallel()

	natsConnection, textStore, audioStore, errChan, cancel := setupTest(t)

	textStore.put("jobs/42/input.txt", []byte("第一句话\n\n第二句话\n"))

	requestEvent := worker.SynthesisRequestedEvent{
		JobID:             "job-42",
		TextKey:           "jobs/42/input.txt",
		VoiceName:         "赵信",
		ReferenceAudioKey: "",
		ReferenceText:     "",
		OutputPrefix:      "chapter1",
	}
	eventData, err := json.Marshal(requestEvent)
	require.NoError(t, err)

	replyMsg, err := natsConnection.Request(testSubject, eventData, 10*time.Second)
	require.NoError(t, err, "Request should succeed and receive a reply")

	var replyEvent worker.SynthesisCompletedEvent

	require.NoError(t, json.Unmarshal(replyMsg.Data, &replyEvent))

	assert.Equal(t, "job-42", replyEvent.JobID)
	assert.Equal(t, 2, replyEvent.Succeeded)
	assert.Equal(t, 0, replyEvent.Failed)
	require.Equal(t, []string{
		"job-42/chapter1_0001.wav",
		"job-42/chapter1_0002.wav",
	}, replyEvent.AudioKeys)

	for _, key := range replyEvent.AudioKeys {
		clipData, ok := audioStore.get(key)
		assert.True(t, ok)
		assert.NotEmpty(t, clipData)
	}

	// The consumed text object is deleted after the reply goes out.
	assert.Eventually(t, func() bool {
		_, ok := textStore.get("jobs/42/input.txt")

		return !ok
	}, 5*time.Second, 10*time.Millisecond, "consumed text object should be deleted")

	cancel()

	shutdownErr := <-errChan
	assert.NoError(t, shutdownErr, "worker.Run should not error on graceful shutdown")
}

func TestWorker_ReferenceAudioKeySelector(t *testing.T) {
	t.Parallel()

	natsConnection, textStore, audioStore, _, _ := setupTest(t)

	textStore.put("input.txt", []byte("hello\n"))
	audioStore.put("refs/narrator.wav", []byte("RIFFxxxxWAVE"))

	requestEvent := worker.SynthesisRequestedEvent{
		JobID:             "job-ref",
		TextKey:           "input.txt",
		VoiceName:         "",
		ReferenceAudioKey: "refs/narrator.wav",
		ReferenceText:     "a spoken sample",
		OutputPrefix:      "",
	}
	eventData, err := json.Marshal(requestEvent)
	require.NoError(t, err)

	replyMsg, err := natsConnection.Request(testSubject, eventData, 10*time.Second)
	require.NoError(t, err)

	var replyEvent worker.SynthesisCompletedEvent

	require.NoError(t, json.Unmarshal(replyMsg.Data, &replyEvent))
	assert.Equal(t, 1, replyEvent.Succeeded)
	assert.Equal(t, []string{"job-ref/tts_0001.wav"}, replyEvent.AudioKeys)
}

func TestWorker_IgnoresInvalidEvent(t *testing.T) {
	t.Parallel()

	natsConnection, _, _, _, _ := setupTest(t)

	// No text key and no voice: the worker logs and drops the message,
	// so the request times out without a reply.
	_, err := natsConnection.Request(testSubject, []byte(`{"job_id":"x"}`), 500*time.Millisecond)
	require.Error(t, err)
}

func TestWorker_UnknownVoiceProducesNoReply(t *testing.T) {
	t.Parallel()

	natsConnection, textStore, _, _, _ := setupTest(t)

	textStore.put("input.txt", []byte("hello\n"))

	requestEvent := worker.SynthesisRequestedEvent{
		JobID:             "job-bad-voice",
		TextKey:           "input.txt",
		VoiceName:         "不存在的音色",
		ReferenceAudioKey: "",
		ReferenceText:     "",
		OutputPrefix:      "",
	}
	eventData, err := json.Marshal(requestEvent)
	require.NoError(t, err)

	_, err = natsConnection.Request(testSubject, eventData, 500*time.Millisecond)
	require.Error(t, err)
}
