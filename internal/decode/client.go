// Package decode calls the external VIN decoding service and translates its
// variable/value response into typed vehicle attributes.
package decode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultBaseURL points at the public NHTSA vPIC API.
	DefaultBaseURL = "https://vpic.nhtsa.dot.gov/api"

	// DefaultTimeout bounds every decode call so a slow upstream cannot
	// stall a lookup.
	DefaultTimeout = 10 * time.Second

	// notApplicable is the placeholder the upstream reports for fields it
	// has no data for; such values are treated as absent.
	notApplicable = "Not Applicable"

	// kilowattsToHP converts reported engine power to metric horsepower.
	kilowattsToHP = 1.341
)

// ErrUnavailable signals a transport-level decode failure: connection error,
// timeout, or a non-2xx upstream status. Callers surface it as 503; an empty
// or unusable payload is a plain miss instead.
var ErrUnavailable = errors.New("decode service unavailable")

// Result carries the attributes extracted from a successful decode.
type Result struct {
	VIN       string
	Make      *string
	Model     *string
	Year      *int
	BodyClass *string
	FuelType  *string
	HP        *int
}

// Client issues decode requests against a vPIC-compatible endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option mutates client construction.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client, primarily for tests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithTimeout overrides the request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// NewClient builds a decode client for the provided base URL. An empty base
// URL selects the public endpoint.
func NewClient(baseURL string, opts ...Option) *Client {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		trimmed = DefaultBaseURL
	}
	client := &Client{
		baseURL:    trimmed,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client
}

type decodeEnvelope struct {
	Results []decodeEntry `json:"Results"`
}

type decodeEntry struct {
	Variable string  `json:"Variable"`
	Value    *string `json:"Value"`
}

// DecodeVIN queries the upstream service for the given VIN. The boolean is
// false when the upstream answered but produced no usable attributes; the
// error wraps ErrUnavailable on transport failures.
func (c *Client) DecodeVIN(ctx context.Context, vin string) (Result, bool, error) {
	target := fmt.Sprintf("%s/vehicles/decodevin/%s?format=json", c.baseURL, url.PathEscape(vin))
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Result{}, false, fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}
	response, err := c.httpClient.Do(request)
	if err != nil {
		return Result{}, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() {
		_ = response.Body.Close()
	}()
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return Result{}, false, fmt.Errorf("%w: unexpected status %d", ErrUnavailable, response.StatusCode)
	}

	var envelope decodeEnvelope
	if err := json.NewDecoder(response.Body).Decode(&envelope); err != nil {
		// A malformed payload from a 2xx response counts as a miss, not an
		// outage.
		return Result{}, false, nil
	}
	fields := newFieldSet(envelope.Results)
	result := Result{
		VIN:       vin,
		Make:      fields.lookup("Make"),
		Model:     fields.lookup("Model"),
		Year:      fields.lookupInt("Model Year"),
		BodyClass: fields.lookup("Body Class"),
		FuelType:  fields.lookup("Fuel Type - Primary"),
	}
	if kw := fields.lookupFloat("Engine Power (kW)"); kw != nil {
		hp := int(math.Round(*kw * kilowattsToHP))
		result.HP = &hp
	}
	return result, result.usable(), nil
}

func (r Result) usable() bool {
	return r.Make != nil || r.Model != nil || r.Year != nil || r.BodyClass != nil || r.FuelType != nil || r.HP != nil
}

// fieldSet maps decode variable names to their reported values, built once
// per response and queried by name.
type fieldSet map[string]string

func newFieldSet(entries []decodeEntry) fieldSet {
	fields := make(fieldSet, len(entries))
	for _, entry := range entries {
		if entry.Variable == "" || entry.Value == nil {
			continue
		}
		value := strings.TrimSpace(*entry.Value)
		if value == "" || value == notApplicable {
			continue
		}
		fields[entry.Variable] = value
	}
	return fields
}

func (f fieldSet) lookup(name string) *string {
	value, ok := f[name]
	if !ok {
		return nil
	}
	return &value
}

func (f fieldSet) lookupInt(name string) *int {
	value, ok := f[name]
	if !ok {
		return nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return nil
	}
	return &parsed
}

func (f fieldSet) lookupFloat(name string) *float64 {
	value, ok := f[name]
	if !ok {
		return nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil
	}
	return &parsed
}
