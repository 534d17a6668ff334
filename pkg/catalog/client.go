package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/olimci/kanna/pkg/digest"
)

const (
	// DefaultBaseURL is the public card database this mirror tracks.
	DefaultBaseURL = "https://db.ygoprodeck.com"

	// DefaultAPIVersion selects the listing endpoint revision.
	DefaultAPIVersion = 7

	defaultTimeout = 60 * time.Second
)

// Listing is one full catalog fetch: the parsed entities plus the signature
// of the raw response, used to short-circuit per-entity work across runs.
type Listing struct {
	Entities  []Entity
	Signature digest.Digest
}

// Client talks to the catalog API and to the image hosts it points at.
type Client struct {
	baseURL    string
	apiVersion int
	http       *http.Client
}

func NewClient(baseURL string, apiVersion int) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if apiVersion <= 0 {
		apiVersion = DefaultAPIVersion
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiVersion: apiVersion,
		http:       &http.Client{Timeout: defaultTimeout},
	}
}

func (c *Client) ListingURL() string {
	return fmt.Sprintf("%s/api/v%d/cardinfo.php", c.baseURL, c.apiVersion)
}

// FetchListing retrieves the full catalog listing and computes the signature
// of its raw serialized form.
func (c *Client) FetchListing(ctx context.Context) (Listing, error) {
	raw, err := c.Fetch(ctx, c.ListingURL())
	if err != nil {
		return Listing{}, fmt.Errorf("fetch catalog listing: %w", err)
	}

	var parsed struct {
		Data []Entity `json:"data"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Listing{}, fmt.Errorf("parse catalog listing: %w", err)
	}
	if len(parsed.Data) == 0 {
		return Listing{}, fmt.Errorf("catalog listing is empty")
	}

	return Listing{
		Entities:  parsed.Data,
		Signature: digest.ForBytes(raw),
	}, nil
}

// Fetch retrieves the complete body at url.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %s", url, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body of %s: %w", url, err)
	}
	return body, nil
}

// FetchRange requests the first length bytes of url. The second return value
// reports whether the endpoint honored range semantics (206, or 200 with the
// body returned); any other status means the caller cannot rely on the probe.
func (c *Client) FetchRange(ctx context.Context, url string, length int) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=0-%d", length-1))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		io.Copy(io.Discard, resp.Body)
		return nil, false, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("read range body of %s: %w", url, err)
	}
	return body, true, nil
}
