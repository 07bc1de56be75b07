package es

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/rs/zerolog"

	"github.com/labtiva/curator/internal/config"
)

type Client struct {
	es  *elasticsearch.Client
	cfg *config.Config
	log zerolog.Logger
}

// NewClient builds a client for cfg. Requests are signed with SigV4 when
// an AWS region is configured. Retries are left to the action executor.
func NewClient(cfg *config.Config, log zerolog.Logger) (*Client, error) {
	base := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		base.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	var transport http.RoundTripper = base
	if cfg.AWSRegion != "" {
		t, err := newAWSTransport(cfg, base)
		if err != nil {
			return nil, err
		}
		transport = t
	}

	esCfg := elasticsearch.Config{
		Addresses:    []string{cfg.Host},
		Transport:    transport,
		DisableRetry: true,
	}

	if cfg.Username != "" {
		esCfg.Username = cfg.Username
		esCfg.Password = cfg.Password
	}

	es, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("creating ES client: %w", err)
	}

	return &Client{
		es:  es,
		cfg: cfg,
		log: log.With().Str("component", "es").Logger(),
	}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	res, err := c.es.Info(c.es.Info.WithContext(ctx))
	if err != nil {
		return transportError(err, "connecting to Elasticsearch")
	}
	return decode(res, "cluster info", nil)
}

// withTimeout bounds metadata calls with the configured timeout. Mutation
// calls get their deadline from the executor.
func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.cfg.Timeout)
}

// decode reads a successful response into v, or turns an error response
// into a classified error.
func decode(res *esapi.Response, what string, v any) error {
	defer res.Body.Close()

	if res.IsError() {
		return responseError(res, what)
	}
	if v == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("reading %s response: %w", what, err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("parsing %s: %w", what, err)
	}
	return nil
}
