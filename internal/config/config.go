package config

import (
	"net/http"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	BaseURL     string `env:"THREADSTREAM_BASE_URL" envDefault:"http://localhost:8000"`
	Token       string `env:"THREADSTREAM_TOKEN"`
	AssistantID string `env:"THREADSTREAM_ASSISTANT_ID" envDefault:"agent"`
	ThreadID    string `env:"THREADSTREAM_THREAD_ID"`
	// Headers are extra request headers, as "Name:value,Name:value".
	Headers map[string]string `env:"THREADSTREAM_HEADERS"`

	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	ReadBufferSize int           `env:"READ_BUFFER_SIZE" envDefault:"32768"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`

	TapEnabled    bool          `env:"TAP_ENABLED" envDefault:"false"`
	TapStoreDir   string        `env:"TAP_STORE_DIR" envDefault:"./data/tap"`
	TapBufferSize int           `env:"TAP_BUFFER_SIZE" envDefault:"10000"`
	TapBatchSize  int           `env:"TAP_BATCH_SIZE" envDefault:"100"`
	TapFlushMs    int           `env:"TAP_FLUSH_MS" envDefault:"100"`
	TapMaxAge     time.Duration `env:"TAP_MAX_AGE" envDefault:"24h"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// HTTPHeaders returns Headers as an http.Header with canonical names.
func (c *Config) HTTPHeaders() http.Header {
	h := make(http.Header, len(c.Headers))
	for name, value := range c.Headers {
		h.Set(name, value)
	}
	return h
}
