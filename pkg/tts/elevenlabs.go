package tts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	elevenLabsBaseURL  = "https://api.elevenlabs.io/v1"
	providerElevenLabs = "elevenlabs"
)

// ElevenLabs models.
const (
	ModelTurboV2_5      = "eleven_turbo_v2_5"
	ModelFlashV2_5      = "eleven_flash_v2_5"
	ModelMultilingualV2 = "eleven_multilingual_v2"
)

// ElevenLabsVoices maps preset names to voice IDs.
var ElevenLabsVoices = map[string]string{
	"rachel":    "21m00Tcm4TlvDq8ikWAM",
	"sarah":     "EXAVITQu4vr4xnSDxMaL",
	"charlotte": "XB0fDUnXU5powFXDhCwa",
	"adam":      "pNInz6obpgDQGcFmaJgB",
	"josh":      "TxGEqnHWrfWFTfGW9XjX",
}

// ResolveElevenLabsVoice maps a preset name to its ID and passes raw IDs through.
func ResolveElevenLabsVoice(name string) string {
	if id, ok := ElevenLabsVoices[strings.ToLower(name)]; ok {
		return id
	}
	return name
}

// VoiceSettings tunes ElevenLabs output.
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	SpeakerBoost    bool    `json:"use_speaker_boost"`
}

// DefaultVoiceSettings favours steady, clear delivery.
func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{
		Stability:       0.6,
		SimilarityBoost: 0.75,
		SpeakerBoost:    true,
	}
}

// ElevenLabs synthesizes with the ElevenLabs text-to-speech API.
type ElevenLabs struct {
	config   *Config
	settings VoiceSettings
	client   *http.Client
	logger   *slog.Logger
	baseURL  string
}

// NewElevenLabs creates an ElevenLabs provider.
func NewElevenLabs(opts ...Option) (*ElevenLabs, error) {
	cfg := DefaultConfig()
	cfg.ModelID = ModelTurboV2_5
	cfg.Apply(opts...)

	if err := cfg.ValidateWithVoice(); err != nil {
		return nil, err
	}
	cfg.VoiceID = ResolveElevenLabsVoice(cfg.VoiceID)

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = elevenLabsBaseURL
	}

	return &ElevenLabs{
		config:   cfg,
		settings: DefaultVoiceSettings(),
		client:   cfg.client(),
		logger:   cfg.Logger.With("component", "tts.elevenlabs"),
		baseURL:  baseURL,
	}, nil
}

type elevenLabsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings VoiceSettings `json:"voice_settings"`
}

// Synthesize converts text to PCM in the configured format.
func (e *ElevenLabs) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, WrapError(providerElevenLabs, ErrEmptyText)
	}
	start := time.Now()

	body, err := json.Marshal(elevenLabsRequest{
		Text:          text,
		ModelID:       e.config.ModelID,
		VoiceSettings: e.settings,
	})
	if err != nil {
		return nil, WrapError(providerElevenLabs, fmt.Errorf("marshal payload: %w", err))
	}

	q := url.Values{"output_format": {string(e.config.OutputFormat)}}
	endpoint := fmt.Sprintf("%s/text-to-speech/%s?%s", e.baseURL, url.PathEscape(e.config.VoiceID), q.Encode())

	audio, err := postJSON(ctx, e.config, e.client, e.logger, providerElevenLabs,
		endpoint, body, e.header(), e.parseError)
	if err != nil {
		return nil, err
	}

	res := newResult(audio, e.config.OutputFormat, text, time.Since(start))
	e.logger.Debug("synthesized audio",
		"chars", res.CharCount,
		"bytes", len(audio),
		"latency_ms", res.Latency.Milliseconds(),
		"model", e.config.ModelID,
	)
	return res, nil
}

// Health fetches the account to check the key.
func (e *ElevenLabs) Health(ctx context.Context) error {
	return getOK(ctx, e.client, providerElevenLabs, e.baseURL+"/user", e.header(), e.parseError)
}

// Close drops idle connections.
func (e *ElevenLabs) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

// VoiceID returns the resolved voice ID.
func (e *ElevenLabs) VoiceID() string {
	return e.config.VoiceID
}

func (e *ElevenLabs) header() http.Header {
	h := make(http.Header)
	h.Set("xi-api-key", e.config.APIKey)
	h.Set("Accept", "audio/pcm")
	return h
}

func (e *ElevenLabs) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp struct {
		Detail struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"detail"`
	}

	apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(body), Provider: providerElevenLabs}
	if json.Unmarshal(body, &errResp) == nil && errResp.Detail.Message != "" {
		apiErr.Message = errResp.Detail.Message
		apiErr.Code = errResp.Detail.Status
	}
	return apiErr
}

var _ Provider = (*ElevenLabs)(nil)
