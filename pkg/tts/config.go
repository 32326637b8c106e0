package tts

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Config holds provider configuration. Providers are built with functional
// options (WithXxx) applied over their defaults.
type Config struct {
	APIKey  string
	BaseURL string

	VoiceID string
	ModelID string

	OutputFormat Encoding

	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Option configures a provider.
type Option func(*Config)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithVoice sets the voice (a name for OpenAI, a voice ID or preset for ElevenLabs).
func WithVoice(voice string) Option {
	return func(c *Config) { c.VoiceID = voice }
}

// WithModel sets the model ID.
func WithModel(model string) Option {
	return func(c *Config) { c.ModelID = model }
}

// WithOutputFormat sets the PCM output format. Ignored by OpenAI, which only
// produces 24kHz.
func WithOutputFormat(enc Encoding) Option {
	return func(c *Config) { c.OutputFormat = enc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithRetry sets how often retryable failures (429, 5xx) are retried.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(c *Config) {
		c.MaxRetries = maxRetries
		c.RetryDelay = delay
	}
}

// WithHTTPClient sets the HTTP client. The client's own timeout still applies.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Config) { c.HTTPClient = client }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// DefaultConfig returns the defaults shared by all providers.
func DefaultConfig() *Config {
	return &Config{
		OutputFormat: EncodingPCM24,
		Timeout:      15 * time.Second,
		MaxRetries:   2,
		RetryDelay:   200 * time.Millisecond,
		Logger:       slog.Default(),
	}
}

// Apply applies options in order.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks that an API key is present.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrNoAPIKey
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("tts: max retries must not be negative, got %d", c.MaxRetries)
	}
	return nil
}

// ValidateWithVoice also requires a voice.
func (c *Config) ValidateWithVoice() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.VoiceID == "" {
		return ErrNoVoiceID
	}
	return nil
}

func (c *Config) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: c.Timeout}
}
