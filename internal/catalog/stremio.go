package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Default addon endpoints. Cinemeta serves catalog and metadata lookups,
// torrentio serves stream candidates.
const (
	DefaultCinemetaURL  = "https://v3-cinemeta.strem.io"
	DefaultTorrentioURL = "https://torrentio.strem.fun"
)

// Meta is one catalog entry.
type Meta struct {
	ID     string `json:"id"`
	IMDBID string `json:"imdb_id"`
	Type   string `json:"type"`
	Name   string `json:"name"`
	Poster string `json:"poster,omitempty"`
	Year   string `json:"releaseInfo,omitempty"`
}

// Stream is one playable candidate for a catalog entry.
type Stream struct {
	Title    string `json:"title"`
	URL      string `json:"url,omitempty"`
	InfoHash string `json:"infoHash,omitempty"`
}

// Magnet builds the magnet link for a stream, preferring a direct URL when
// the addon provides one.
func (s Stream) Magnet(displayName string) string {
	if s.URL != "" {
		return s.URL
	}
	if s.InfoHash == "" {
		return ""
	}
	return fmt.Sprintf("magnet:?xt=urn:btih:%s&dn=%s", s.InfoHash, url.QueryEscape(displayName))
}

// Client performs the read-only catalog lookups feeding source candidates
// into the acquisition path. Lookup failures degrade to empty results.
type Client struct {
	cinemetaURL  string
	torrentioURL string
	http         *retryablehttp.Client
}

func NewClient(cinemetaURL, torrentioURL string) *Client {
	if cinemetaURL == "" {
		cinemetaURL = DefaultCinemetaURL
	}
	if torrentioURL == "" {
		torrentioURL = DefaultTorrentioURL
	}
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.HTTPClient.Timeout = 15 * time.Second
	client.Logger = nil
	return &Client{
		cinemetaURL:  cinemetaURL,
		torrentioURL: torrentioURL,
		http:         client,
	}
}

// Search queries the catalog. contentType is "movie" or "series".
func (c *Client) Search(ctx context.Context, query, contentType string) []Meta {
	endpoint := fmt.Sprintf("%s/catalog/%s/top/search=%s.json",
		c.cinemetaURL, contentType, url.QueryEscape(query))
	var result struct {
		Metas []Meta `json:"metas"`
	}
	if err := c.getJSON(ctx, endpoint, &result); err != nil {
		log.Printf("catalog: search failed: %v", err)
		return nil
	}
	return result.Metas
}

// Meta fetches full metadata for one entry.
func (c *Client) Meta(ctx context.Context, id, contentType string) (*Meta, error) {
	endpoint := fmt.Sprintf("%s/meta/%s/%s.json", c.cinemetaURL, contentType, id)
	var result struct {
		Meta *Meta `json:"meta"`
	}
	if err := c.getJSON(ctx, endpoint, &result); err != nil {
		return nil, err
	}
	return result.Meta, nil
}

// Streams fetches playable candidates for one entry.
func (c *Client) Streams(ctx context.Context, id, contentType string) []Stream {
	endpoint := fmt.Sprintf("%s/stream/%s/%s.json", c.torrentioURL, contentType, id)
	var result struct {
		Streams []Stream `json:"streams"`
	}
	if err := c.getJSON(ctx, endpoint, &result); err != nil {
		log.Printf("catalog: stream lookup failed: %v", err)
		return nil
	}
	return result.Streams
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("catalog lookup: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
