package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kimjh/vlanstitch/pkg/reporting"
)

// PCEConfig contains plan expansion service client settings
type PCEConfig struct {
	URL     string
	Timeout time.Duration
}

// PCEClient is the HTTP adapter for the external path computation
// service, satisfying scheduler.PlanExpander. Expansion is
// deterministic for fixed inputs; all retry decisions stay with the
// scheduler.
type PCEClient struct {
	http   *http.Client
	config PCEConfig
	logger *reporting.Logger
}

// NewPCEClient creates a new PCE client
func NewPCEClient(config PCEConfig, logger *reporting.Logger) *PCEClient {
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	return &PCEClient{
		http:   &http.Client{Timeout: config.Timeout},
		config: config,
		logger: logger,
	}
}

// expandRequest is the JSON body sent to the PCE.
type expandRequest struct {
	RequestDoc     string            `json:"request_doc"`
	ExcludeHops    []string          `json:"exclude_hops,omitempty"`
	HopUnavailable map[string]string `json:"hop_unavailable,omitempty"`
}

// expandResponse is the JSON body the PCE returns.
type expandResponse struct {
	PlanDoc string `json:"plan_doc"`
	Error   string `json:"error,omitempty"`
}

// Expand asks the PCE for a fresh expanded plan honoring the
// accumulated exclusion and unavailability hints.
func (c *PCEClient) Expand(ctx context.Context, requestDoc []byte, excludeHops []string, hopUnavailable map[string]string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	body, err := json.Marshal(expandRequest{
		RequestDoc:     string(requestDoc),
		ExcludeHops:    excludeHops,
		HopUnavailable: hopUnavailable,
	})
	if err != nil {
		return nil, fmt.Errorf("transport: marshal expand request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("transport: build expand request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Info("Invoking PCE", "url", c.config.URL, "excluded_hops", len(excludeHops), "hinted_hops", len(hopUnavailable))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transport: expand RPC: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("transport: read expand response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("transport: PCE returned status %d: %s", resp.StatusCode, data)
	}

	var er expandResponse
	if err := json.Unmarshal(data, &er); err != nil {
		return nil, fmt.Errorf("transport: decode expand response: %w", err)
	}
	if er.Error != "" {
		return nil, fmt.Errorf("transport: PCE rejected expansion: %s", er.Error)
	}
	return []byte(er.PlanDoc), nil
}
