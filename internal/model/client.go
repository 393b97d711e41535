// Package model provides access to the standalone voice-clone model
// server: weight loading, voice-clone prompt extraction, and speech
// generation.
//
// The server owns everything the core treats as opaque: CUDA detection,
// weight download (mirror selection included), and the model's decoding
// strategy. This package speaks its HTTP contract and maps its structured
// errors onto the core taxonomy.
package model

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/book-expert/voice-clone-service/internal/core"
)

// API endpoints and paths.
const (
	apiHealth         = "/health"
	apiLoadModel      = "/v1/model/load"
	apiCreatePrompt   = "/v1/voice-clone/prompt"
	apiGenerateSpeech = "/v1/generate/speech"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	headerSampleRate  = "X-Sample-Rate"
	contentTypeJSON   = "application/json"
	contentTypePCM    = "audio/l16"
)

// Machine-readable error codes the model server emits.
const (
	codeNoGPU                = "NO_GPU"
	codeInsufficientMemory   = "INSUFFICIENT_GPU_MEMORY"
	codeWeightFetchFailed    = "WEIGHT_FETCH_FAILED"
	codeReferenceUndecodable = "REFERENCE_AUDIO_UNDECODABLE"
	codeReferenceEmpty       = "REFERENCE_AUDIO_EMPTY"
	codeReferenceTooLong     = "REFERENCE_AUDIO_TOO_LONG"
	codeReferenceTextMissing = "REFERENCE_TEXT_REQUIRED"
)

const bytesPerSample = 2

// Static errors.
var (
	ErrUnexpectedContentType = errors.New("unexpected content type")
	ErrEmptyAudio            = errors.New("received empty audio data")
	ErrOddPCMLength          = errors.New("PCM payload length is not sample-aligned")
	ErrMissingSampleRate     = errors.New("response missing sample rate header")
)

// Client is an HTTP client for the model server. The baseURL includes
// protocol and port (e.g. "http://localhost:8000"); the timeout applies
// to every request made by this client.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// LoadRequest defines the JSON payload for model loading.
type LoadRequest struct {
	ModelID string `json:"model_id,omitempty"`
}

// LoadResponse describes the loaded model instance.
type LoadResponse struct {
	ModelID    string `json:"model_id"`
	Device     string `json:"device"`
	SampleRate int    `json:"sample_rate"`
}

// PromptRequest defines the JSON payload for voice-clone prompt
// extraction. ReferenceText may be empty in x-vector-only mode.
type PromptRequest struct {
	ReferenceAudioPath string `json:"reference_audio_path"`
	ReferenceText      string `json:"reference_text,omitempty"`
	XVectorOnly        bool   `json:"x_vector_only"`
}

// PromptResponse carries the server-side handle for a built prompt.
type PromptResponse struct {
	PromptID string `json:"prompt_id"`
}

// GenerateRequest defines the JSON payload for speech generation.
type GenerateRequest struct {
	Text         string `json:"text"`
	PromptID     string `json:"prompt_id"`
	Language     string `json:"language"`
	MaxNewTokens int    `json:"max_new_tokens"`
	Seed         int64  `json:"seed,omitempty"`
}

// ErrorResponse represents a structured error from the model server.
type ErrorResponse struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code,omitempty"`
}

// NewClient creates and configures an HTTP client for the model server.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// HealthCheck verifies that the model server is running and responsive.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		c.baseURL+apiHealth,
		http.NoBody,
	)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed for model server at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status: %s", resp.Status)
	}

	return nil
}

// LoadModel asks the server to resolve weights (downloading on first use)
// and instantiate the model on the GPU. The call is idempotent on the
// server side. Failures are fatal and map to core.ErrModelLoad.
func (c *Client) LoadModel(ctx context.Context, req LoadRequest) (LoadResponse, error) {
	var loadResp LoadResponse

	err := c.postJSON(ctx, apiLoadModel, req, &loadResp)
	if err != nil {
		return LoadResponse{}, fmt.Errorf("%w: %w", core.ErrModelLoad, err)
	}

	return loadResp, nil
}

// CreatePrompt builds a voice-clone prompt from a reference clip and its
// transcript. This is the only point where reference audio is processed.
func (c *Client) CreatePrompt(ctx context.Context, req PromptRequest) (PromptResponse, error) {
	var promptResp PromptResponse

	err := c.postJSON(ctx, apiCreatePrompt, req, &promptResp)
	if err != nil {
		return PromptResponse{}, err
	}

	return promptResp, nil
}

// GenerateSpeech renders one text against a previously built prompt and
// returns raw mono samples at the model-native sample rate. Determinism
// across invocations is not guaranteed unless the server honors the seed.
func (c *Client) GenerateSpeech(ctx context.Context, req GenerateRequest) (core.Clip, error) {
	requestBody, err := json.Marshal(req)
	if err != nil {
		return core.Clip{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+apiGenerateSpeech,
		bytes.NewBuffer(requestBody),
	)
	if err != nil {
		return core.Clip{}, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAccept, contentTypePCM)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return core.Clip{}, fmt.Errorf(
			"failed to send request to model server at %s: %w",
			c.baseURL,
			err,
		)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return core.Clip{}, c.parseErrorResponse(resp)
	}

	return decodeClip(resp)
}

// decodeClip validates the generation response and converts the PCM16LE
// payload into widened samples.
func decodeClip(resp *http.Response) (core.Clip, error) {
	contentType := resp.Header.Get(headerContentType)
	if contentType != contentTypePCM {
		return core.Clip{}, fmt.Errorf(
			"%w: expected %s, got %s",
			ErrUnexpectedContentType,
			contentTypePCM,
			contentType,
		)
	}

	sampleRate, err := strconv.Atoi(resp.Header.Get(headerSampleRate))
	if err != nil || sampleRate <= 0 {
		return core.Clip{}, ErrMissingSampleRate
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return core.Clip{}, fmt.Errorf("failed to read audio data: %w", err)
	}

	if len(payload) == 0 {
		return core.Clip{}, ErrEmptyAudio
	}

	if len(payload)%bytesPerSample != 0 {
		return core.Clip{}, ErrOddPCMLength
	}

	pcm := make([]int, len(payload)/bytesPerSample)
	for i := range pcm {
		pcm[i] = int(int16(binary.LittleEndian.Uint16(payload[i*bytesPerSample:])))
	}

	return core.Clip{PCM: pcm, SampleRate: sampleRate}, nil
}

// postJSON sends a JSON request and decodes a JSON response, mapping
// non-OK statuses through the structured error parser.
func (c *Client) postJSON(ctx context.Context, path string, payload, target any) error {
	requestBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+path,
		bytes.NewBuffer(requestBody),
	)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAccept, contentTypeJSON)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf(
			"failed to send request to model server at %s: %w",
			c.baseURL,
			err,
		)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}

	err = json.NewDecoder(resp.Body).Decode(target)
	if err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}

	return nil
}

// parseErrorResponse decodes a structured JSON error from the server and
// maps known error codes onto the core taxonomy. If structured parsing
// fails, the raw body is preserved for diagnostics.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errorResp ErrorResponse

	err := json.NewDecoder(resp.Body).Decode(&errorResp)
	if err != nil {
		body, _ := io.ReadAll(resp.Body)

		return fmt.Errorf(
			"model server returned non-OK status: %s, body: %s",
			resp.Status,
			string(body),
		)
	}

	sentinel := sentinelForCode(errorResp.ErrorCode)
	if sentinel != nil {
		return fmt.Errorf("%w: %s (code: %s)", sentinel, errorResp.Detail, errorResp.ErrorCode)
	}

	return fmt.Errorf(
		"model server error (%s): %s (code: %s)",
		resp.Status,
		errorResp.Detail,
		errorResp.ErrorCode,
	)
}

func sentinelForCode(code string) error {
	switch code {
	case codeNoGPU, codeInsufficientMemory, codeWeightFetchFailed:
		return core.ErrModelLoad
	case codeReferenceUndecodable, codeReferenceEmpty, codeReferenceTooLong:
		return core.ErrReferenceAudio
	case codeReferenceTextMissing:
		return core.ErrReferenceTextMissing
	default:
		return nil
	}
}
