// Package figma is a small client for the Figma REST endpoints the design
// handlers need: the file graph and node rasterisation.
package figma

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultBaseURL is the public Figma API.
const DefaultBaseURL = "https://api.figma.com"

// ErrMissingToken is returned when no access token is configured.
var ErrMissingToken = errors.New("figma token is not configured")

// TokenFunc resolves the access token for a call. It is read per request so a
// token saved through the settings API applies immediately.
type TokenFunc func(ctx context.Context) (string, error)

// Node is one element of a Figma document tree.
type Node struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Children []*Node `json:"children,omitempty"`
}

// File is the subset of GET /v1/files/:key the handlers read.
type File struct {
	Name     string `json:"name"`
	Document Node   `json:"document"`
}

type imagesResponse struct {
	Err    *string           `json:"err"`
	Images map[string]string `json:"images"`
}

// Client implements the design-file export contract.
type Client struct {
	httpClient *resty.Client
	token      TokenFunc
}

// NewClient creates a Resty-backed client.
func NewClient(baseURL string, token TokenFunc) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetHeader("Accept", "application/json").
			SetTimeout(60 * time.Second),
		token: token,
	}
}

// GetFile fetches the document graph of a file.
func (c *Client) GetFile(ctx context.Context, fileKey string) (*File, error) {
	request, err := c.request(ctx)
	if err != nil {
		return nil, err
	}

	var file File
	resp, err := request.
		SetResult(&file).
		SetPathParam("key", fileKey).
		Get("/v1/files/{key}")
	if err != nil {
		return nil, fmt.Errorf("fetch figma file: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("error fetching Figma file: %s", resp.String())
	}
	return &file, nil
}

// RenderImages rasterises nodes to PNG and returns node ID → image URL.
// Nodes Figma could not render are absent from the map.
func (c *Client) RenderImages(ctx context.Context, fileKey string, nodeIDs []string) (map[string]string, error) {
	if len(nodeIDs) == 0 {
		return map[string]string{}, nil
	}

	request, err := c.request(ctx)
	if err != nil {
		return nil, err
	}

	var result imagesResponse
	resp, err := request.
		SetResult(&result).
		SetPathParam("key", fileKey).
		SetQueryParam("ids", strings.Join(nodeIDs, ",")).
		SetQueryParam("format", "png").
		Get("/v1/images/{key}")
	if err != nil {
		return nil, fmt.Errorf("render figma images: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("error fetching PNG URLs: %s", resp.String())
	}
	if result.Err != nil && *result.Err != "" {
		return nil, fmt.Errorf("error fetching PNG URLs: %s", *result.Err)
	}

	images := make(map[string]string, len(result.Images))
	for id, url := range result.Images {
		if url != "" {
			images[id] = url
		}
	}
	return images, nil
}

func (c *Client) request(ctx context.Context) (*resty.Request, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(token) == "" {
		return nil, ErrMissingToken
	}
	return c.httpClient.R().
		SetContext(ctx).
		SetHeader("X-Figma-Token", token), nil
}
