// Package config reads the client configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	envparse "github.com/caarlos0/env/v11"

	"github.com/swecha/corpus-contrib/network"
)

// Secret is a string that is never printed.
type Secret string

// String ...
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "*****"
}

// Config ...
type Config struct {
	APIBaseURL string `env:"API_BASE_URL" envDefault:"https://api.corpus.swecha.org/api/v1"`
	Debug      bool   `env:"DEBUG"`

	JSONTimeout   time.Duration `env:"CORPUS_JSON_TIMEOUT" envDefault:"10s"`
	FormTimeout   time.Duration `env:"CORPUS_FORM_TIMEOUT" envDefault:"30s"`
	UploadTimeout time.Duration `env:"CORPUS_UPLOAD_TIMEOUT" envDefault:"60s"`

	// HTTPRetryMax applies to GET calls only.
	HTTPRetryMax     int           `env:"CORPUS_HTTP_RETRY_MAX" envDefault:"3"`
	HTTPRetryWaitMin time.Duration `env:"CORPUS_HTTP_RETRY_WAIT_MIN" envDefault:"500ms"`
	HTTPRetryWaitMax time.Duration `env:"CORPUS_HTTP_RETRY_WAIT_MAX" envDefault:"5s"`

	// ChunkRetries is the number of automatic retries of a chunk the server failed to save. 0 leaves
	// retrying to the user.
	ChunkRetries   int           `env:"CORPUS_CHUNK_RETRIES" envDefault:"0"`
	ChunkRetryWait time.Duration `env:"CORPUS_CHUNK_RETRY_WAIT" envDefault:"2s"`

	// TokenDir keeps one bearer token file per user context between restarts. Empty disables persistence.
	TokenDir string `env:"CORPUS_TOKEN_DIR"`

	AWSRegion          string `env:"AWS_REGION"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey Secret `env:"AWS_SECRET_ACCESS_KEY"`
}

// Load parses the configuration from envRepo and validates it.
func Load(envRepo env.Repository) (Config, error) {
	environment := map[string]string{}
	for _, kv := range envRepo.List() {
		key, value, found := strings.Cut(kv, "=")
		if !found {
			continue
		}
		environment[key] = value
	}

	var cfg Config
	if err := envparse.ParseWithOptions(&cfg, envparse.Options{Environment: environment}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate ...
func (c Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.APIBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("API_BASE_URL: invalid http(s) url: %q", c.APIBaseURL))
	}

	timeouts := []struct {
		name  string
		value time.Duration
	}{
		{"CORPUS_JSON_TIMEOUT", c.JSONTimeout},
		{"CORPUS_FORM_TIMEOUT", c.FormTimeout},
		{"CORPUS_UPLOAD_TIMEOUT", c.UploadTimeout},
	}
	for _, timeout := range timeouts {
		if timeout.value <= 0 {
			errs = append(errs, fmt.Errorf("%s: must be positive, got %s", timeout.name, timeout.value))
		}
	}

	if c.HTTPRetryMax < 0 {
		errs = append(errs, fmt.Errorf("CORPUS_HTTP_RETRY_MAX: must not be negative"))
	}
	if c.HTTPRetryWaitMin > c.HTTPRetryWaitMax {
		errs = append(errs, fmt.Errorf("CORPUS_HTTP_RETRY_WAIT_MIN: %s is above CORPUS_HTTP_RETRY_WAIT_MAX %s", c.HTTPRetryWaitMin, c.HTTPRetryWaitMax))
	}
	if c.ChunkRetries < 0 {
		errs = append(errs, fmt.Errorf("CORPUS_CHUNK_RETRIES: must not be negative"))
	}
	if (c.AWSAccessKeyID == "") != (c.AWSSecretAccessKey == "") {
		errs = append(errs, fmt.Errorf("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set together"))
	}

	return errors.Join(errs...)
}

// ClientParams ...
func (c Config) ClientParams() network.ClientParams {
	return network.ClientParams{
		BaseURL: c.APIBaseURL,
		Timeouts: network.Timeouts{
			JSON:   c.JSONTimeout,
			Form:   c.FormTimeout,
			Upload: c.UploadTimeout,
		},
		RetryMax:     c.HTTPRetryMax,
		RetryWaitMin: c.HTTPRetryWaitMin,
		RetryWaitMax: c.HTTPRetryWaitMax,
	}
}

// Print logs every setting by its variable name. Secrets are masked.
func (c Config) Print(logger log.Logger) {
	logger.Infof("Config:")

	v := reflect.ValueOf(c)
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("env"), ",")
		logger.Printf("- %s: %s", name, valueString(v.Field(i)))
	}
}

func valueString(v reflect.Value) string {
	if v.IsZero() {
		return "<unset>"
	}
	if s, ok := v.Interface().(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%v", v.Interface())
}
