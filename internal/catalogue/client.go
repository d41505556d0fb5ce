// Package catalogue fetches the set of archive paths that have catalogue
// records, together with each record's publication state.
package catalogue

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/starford/catcoverage/internal/annotation"
	"github.com/starford/catcoverage/internal/archive"
)

// DefaultURL is the first page of the observations listing.
const DefaultURL = "http://api.catalogue.ceda.ac.uk/api/v1/observations.json"

// Source returns the full snapshot of cataloged paths.
type Source interface {
	FetchAll(ctx context.Context) (map[string]annotation.Annotation, error)
}

type page struct {
	Next    *string  `json:"next"`
	Results []record `json:"results"`
}

type record struct {
	PublicationState string       `json:"publicationState"`
	ResultField      *resultField `json:"result_field"`
}

type resultField struct {
	StorageLocation string  `json:"storageLocation"`
	DataPath        *string `json:"dataPath"`
}

// Client walks the paginated observations API.
type Client struct {
	url    string
	http   *http.Client
	logger *slog.Logger
}

// NewClient creates a client starting at url.
func NewClient(url string, timeout time.Duration, logger *slog.Logger) *Client {
	if url == "" {
		url = DefaultURL
	}
	return &Client{
		url:    url,
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// FetchAll follows "next" links until the last page. Only records stored
// internally with a data path are kept; a record without a state is
// annotated unknown.
func (c *Client) FetchAll(ctx context.Context) (map[string]annotation.Annotation, error) {
	out := make(map[string]annotation.Annotation)
	next := c.url
	pages := 0
	for next != "" {
		p, err := c.fetchPage(ctx, next)
		if err != nil {
			return nil, err
		}
		pages++
		for _, r := range p.Results {
			rf := r.ResultField
			if rf == nil || rf.StorageLocation != "internal" || rf.DataPath == nil {
				continue
			}
			path := archive.Clean(*rf.DataPath)
			if path == "" {
				continue
			}
			state := annotation.Annotation(strings.TrimSpace(r.PublicationState))
			if state == "" {
				state = annotation.Unknown
			}
			out[path] = state
		}
		c.logger.Debug("catalogue: page fetched",
			slog.Int("page", pages),
			slog.Int("paths", len(out)))

		next = ""
		if p.Next != nil {
			next = *p.Next
		}
	}
	c.logger.Info("catalogue: fetched", slog.Int("pages", pages), slog.Int("paths", len(out)))
	return out, nil
}

func (c *Client) fetchPage(ctx context.Context, url string) (*page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("catalogue: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalogue: get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("catalogue: get %s: status %d: %s", url, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var p page
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("catalogue: decode %s: %w", url, err)
	}
	return &p, nil
}
