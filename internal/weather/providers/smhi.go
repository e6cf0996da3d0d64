package providers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/smhi-forecast/internal/common"
	"github.com/i474232898/smhi-forecast/internal/weather"
)

// DefaultSMHIURL is the SMHI pmp3g point forecast with lon/lat slots.
const DefaultSMHIURL = "https://opendata-download-metfcst.smhi.se/api/category/pmp3g/version/2/geotype/point/lon/%s/lat/%s/data.json"

// SMHIProvider implements the weather.Provider interface for a templated
// point-forecast URL.
type SMHIProvider struct {
	name        string
	urlTemplate string
	httpCfg     HTTPClientConfig
	circuit     *gobreaker.CircuitBreaker
}

// NewSMHIProvider creates a provider for urlTemplate, which must carry two
// "%s" slots for longitude and latitude. An empty template selects DefaultSMHIURL.
func NewSMHIProvider(client *http.Client, urlTemplate string, maxRetries int) *SMHIProvider {
	if urlTemplate == "" {
		urlTemplate = DefaultSMHIURL
	}

	return &SMHIProvider{
		name:        "smhi",
		urlTemplate: urlTemplate,
		httpCfg: HTTPClientConfig{
			Client: client,
			Backoff: BackoffConfig{
				MaxRetries:      maxRetries,
				InitialInterval: 500 * time.Millisecond,
				MaxInterval:     5 * time.Second,
			},
		},
		circuit: newCircuitBreaker("smhi"),
	}
}

func (p *SMHIProvider) Name() string {
	return p.name
}

// URL returns the request URL for loc.
func (p *SMHIProvider) URL(loc weather.Location) string {
	return common.FormatPositional(p.urlTemplate, common.FormatCoord(loc.Lon), common.FormatCoord(loc.Lat))
}

func (p *SMHIProvider) Fetch(ctx context.Context, loc weather.Location, credential string) (*weather.TimeSeries, error) {
	u := p.URL(loc)

	buildRequest := func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if credential != "" {
			req.Header.Set("Authorization", "Bearer "+credential)
		}
		return req, nil
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	return weather.ParseTimeSeries(body)
}
