// Package transport holds the blocking RPC clients the scheduler core
// depends on through interfaces: the provider aggregate-manager client
// and the plan expansion service (PCE) client. Both are thin wrappers;
// retry and negotiation policy live in the orchestrating packages.
package transport

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kimjh/vlanstitch/pkg/classify"
	"github.com/kimjh/vlanstitch/pkg/reporting"
	"github.com/kimjh/vlanstitch/pkg/stitch"
)

// ProviderConfig contains provider client settings
type ProviderConfig struct {
	Timeout    time.Duration
	DCNTimeout time.Duration
}

// ProviderClient is the HTTP implementation of stitch.ProviderClient.
type ProviderClient struct {
	http   *http.Client
	config ProviderConfig
	logger *reporting.Logger

	// OnAMType, when set, is invoked with the provider-reported am_type
	// after each successful RPC so the caller can correct its
	// URN-derived family guess.
	OnAMType func(url, amType string)
}

// NewProviderClient creates a new provider client
func NewProviderClient(config ProviderConfig, logger *reporting.Logger) *ProviderClient {
	if config.Timeout == 0 {
		config.Timeout = 120 * time.Second
	}
	if config.DCNTimeout == 0 {
		config.DCNTimeout = 1800 * time.Second
	}
	return &ProviderClient{
		// Per-request timeouts come from the context; the embedded
		// client timeout is a backstop at the DCN ceiling.
		http:   &http.Client{Timeout: config.DCNTimeout},
		config: config,
		logger: logger,
	}
}

// envelope is the provider response wrapper shared by all four operations.
type envelope struct {
	XMLName     xml.Name   `xml:"response"`
	Code        int        `xml:"code"`
	AMCode      int        `xml:"am_code"`
	AMType      string     `xml:"am_type"`
	Output      string     `xml:"output"`
	ProviderLog string     `xml:"provider_log"`
	Value       innerValue `xml:"value"`
}

type innerValue struct {
	Inner   []byte       `xml:",innerxml"`
	Slivers []sliverElem `xml:"sliver"`
	// GeniRspecs holds the per-URL manifest entries of an API v3
	// response; v2 responses embed the manifest directly in Inner.
	GeniRspecs []geniRspecElem `xml:"entry>geni_rspec"`
}

type sliverElem struct {
	Status string `xml:"status,attr"`
	URN    string `xml:"urn,attr"`
	Error  string `xml:"error"`
}

type geniRspecElem struct {
	Inner []byte `xml:",innerxml"`
}

// Allocate reserves the hops described in requestDoc at the provider.
func (c *ProviderClient) Allocate(ctx context.Context, url string, apiVersion int, slice string, requestDoc []byte) ([]byte, string, error) {
	env, err := c.call(ctx, url, "allocate", slice, requestDoc)
	if err != nil {
		return nil, "", err
	}
	if perr := env.toError(); perr != nil {
		return nil, env.ProviderLog, perr
	}
	c.reportAMType(url, env.AMType)

	manifest, err := env.manifest(apiVersion)
	if err != nil {
		return nil, env.ProviderLog, err
	}
	return manifest, env.ProviderLog, nil
}

// Status queries the per-sliver reservation status.
func (c *ProviderClient) Status(ctx context.Context, url string, apiVersion int, slice string) (stitch.StatusResult, error) {
	env, err := c.call(ctx, url, "status", slice, nil)
	if err != nil {
		return stitch.StatusResult{}, err
	}
	if perr := env.toError(); perr != nil {
		return stitch.StatusResult{}, perr
	}
	c.reportAMType(url, env.AMType)

	// Fold per-sliver statuses into one result: a failed sliver wins,
	// otherwise the reservation is only ready once every sliver is.
	result := stitch.StatusResult{Status: "ready"}
	for _, s := range env.Value.Slivers {
		if result.SliverURN == "" {
			result.SliverURN = s.URN
		}
		switch s.Status {
		case "failed":
			return stitch.StatusResult{Status: "failed", Message: s.Error, SliverURN: s.URN}, nil
		case "ready":
		default:
			result.Status = s.Status
			result.Message = s.Error
		}
	}
	if len(env.Value.Slivers) == 0 {
		result.Status = "notready"
	}
	return result, nil
}

// Delete releases the reservation. Idempotent: a provider complaining
// there is nothing to delete counts as success.
func (c *ProviderClient) Delete(ctx context.Context, url string, apiVersion int, slice string) error {
	env, err := c.call(ctx, url, "delete", slice, nil)
	if err != nil {
		return err
	}
	if perr := env.toError(); perr != nil {
		if strings.Contains(strings.ToLower(perr.Message), "nothing to delete") ||
			strings.Contains(strings.ToLower(perr.Message), "no slice") {
			return nil
		}
		return perr
	}
	return nil
}

// Describe fetches the current manifest for the slice.
func (c *ProviderClient) Describe(ctx context.Context, url string, apiVersion int, slice string) ([]byte, error) {
	env, err := c.call(ctx, url, "describe", slice, nil)
	if err != nil {
		return nil, err
	}
	if perr := env.toError(); perr != nil {
		return nil, perr
	}
	c.reportAMType(url, env.AMType)
	return env.manifest(apiVersion)
}

func (c *ProviderClient) call(ctx context.Context, url, op, slice string, body []byte) (*envelope, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	reqURL := fmt.Sprintf("%s?op=%s&slice=%s", url, op, slice)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("transport: build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "text/xml")

	c.logger.Debug("Provider RPC", "op", op, "url", url, "slice", slice)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &classify.ProviderError{Code: 504, Message: fmt.Sprintf("%s RPC failed: %v", op, err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &classify.ProviderError{Code: 504, Message: fmt.Sprintf("%s response read failed: %v", op, err)}
	}
	if resp.StatusCode >= 500 {
		return nil, &classify.ProviderError{Code: resp.StatusCode, Message: string(data)}
	}

	var env envelope
	if err := xml.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("transport: decode %s response: %w", op, err)
	}
	return &env, nil
}

func (c *ProviderClient) reportAMType(url, amType string) {
	if c.OnAMType != nil && amType != "" {
		c.OnAMType(url, amType)
	}
}

// toError converts a non-zero envelope into a classify.ProviderError.
func (e *envelope) toError() *classify.ProviderError {
	if e.Code == 0 {
		return nil
	}
	return &classify.ProviderError{
		Code:    e.Code,
		AMCode:  e.AMCode,
		AMType:  e.AMType,
		Message: e.Output,
		Value:   strings.TrimSpace(string(e.Value.Inner)),
	}
}

// manifest extracts the manifest document from the envelope value. API
// version 2 returns the manifest directly; version 3 wraps it in the
// geni_rspec field of the single-URL entry.
func (e *envelope) manifest(apiVersion int) ([]byte, error) {
	if apiVersion >= 3 {
		if len(e.Value.GeniRspecs) != 1 {
			return nil, fmt.Errorf("transport: v3 response has %d geni_rspec entries, want 1", len(e.Value.GeniRspecs))
		}
		return e.Value.GeniRspecs[0].Inner, nil
	}
	return e.Value.Inner, nil
}
