package embedding

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"

	"github.com/tensorplex-labs/drsweep/internal/paramset"
)

// RemoteConfig points the remote kernel at an embedding service.
type RemoteConfig struct {
	BaseURL  string
	Kernel   string
	Timeout  time.Duration
	RetryMax int
}

// Remote delegates embedding to an HTTP embedding service. Request bodies are
// zstd compressed; zstd responses are decoded.
type Remote struct {
	client  *resty.Client
	kernel  string
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func NewRemote(cfg RemoteConfig) (*Remote, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("remote kernel: base url cannot be empty")
	}
	if cfg.Kernel == "" {
		cfg.Kernel = KernelSMACOF
	}
	if strings.EqualFold(cfg.Kernel, KernelRemote) {
		return nil, fmt.Errorf("remote kernel cannot delegate to itself")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.RetryMax
	retryClient.RetryWaitMin = 200 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.HTTPClient.Timeout = cfg.Timeout
	retryClient.Logger = nil

	client := resty.NewWithClient(retryClient.StandardClient()).
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal).
		SetHeader("Accept-Encoding", "zstd")

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	log.Info().
		Str("base_url", cfg.BaseURL).
		Str("kernel", cfg.Kernel).
		Int("retry_max", cfg.RetryMax).
		Str("timeout", cfg.Timeout.String()).
		Msg("remote embedding client initialized")

	return &Remote{client: client, kernel: cfg.Kernel, encoder: encoder, decoder: decoder}, nil
}

func (r *Remote) Name() string { return KernelRemote + ":" + r.kernel }

// Close releases the codec resources.
func (r *Remote) Close() {
	r.encoder.Close()
	r.decoder.Close()
}

func (r *Remote) Embed(ctx context.Context, hp paramset.Hyperparameters, distances mat.Symmetric) (*mat.Dense, error) {
	payload, err := sonic.Marshal(NewEmbedRequest(r.kernel, hp, distances))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := r.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Content-Encoding", "zstd").
		SetBody(r.encoder.EncodeAll(payload, nil)).
		Post(EmbedPath)
	if err != nil {
		log.Error().Err(err).Str("path", EmbedPath).Msg("post request failed")
		return nil, fmt.Errorf("post %s: %w", EmbedPath, err)
	}

	body := resp.Body()
	if strings.EqualFold(resp.Header().Get("Content-Encoding"), "zstd") {
		if body, err = r.decoder.DecodeAll(body, nil); err != nil {
			return nil, fmt.Errorf("failed to decompress response: %w", err)
		}
	}
	if resp.IsError() {
		log.Error().Int("status", resp.StatusCode()).Str("body", string(body)).Str("path", EmbedPath).Msg("post non-2xx")
		return nil, fmt.Errorf("request returned status %d: %s", resp.StatusCode(), string(body))
	}

	var result StdResponse[Coordinates]
	if err := sonic.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if result.Error != nil {
		return nil, fmt.Errorf("response error: %s", *result.Error)
	}

	coords, err := result.Body.Matrix()
	if err != nil {
		return nil, err
	}
	if rows, _ := coords.Dims(); rows != distances.SymmetricDim() {
		return nil, fmt.Errorf("%w: service returned %d rows for %d points", ErrInvalidInput, rows, distances.SymmetricDim())
	}
	return coords, nil
}
