package figma

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleFile() *File {
	return &File{
		Name: "Checkout",
		Document: Node{
			ID:   "0:0",
			Type: "DOCUMENT",
			Children: []*Node{
				{ID: "0:1", Name: "Page 1", Type: "CANVAS", Children: []*Node{
					{ID: "1:2", Name: "Cart", Type: NodeTypeFrame},
					{ID: "1:3", Name: "Note", Type: "TEXT"},
					{ID: "1:4", Name: "Flows", Type: "SECTION", Children: []*Node{
						{ID: "2:1", Name: "Pay", Type: NodeTypeFrame},
						{ID: "2:2", Name: "Done", Type: NodeTypeFrame},
					}},
				}},
			},
		},
	}
}

func TestParseURL(t *testing.T) {
	target, err := ParseURL("https://www.figma.com/design/AbC123xyz/Checkout?node-id=12-345&t=k")
	require.NoError(t, err)
	assert.Equal(t, "AbC123xyz", target.FileKey)
	assert.Equal(t, "12:345", target.NodeID)

	_, err = ParseURL("https://www.figma.com/file/AbC123xyz")
	assert.ErrorIs(t, err, ErrInvalidURL)
}

func TestExportFrames(t *testing.T) {
	file := sampleFile()

	frames := ExportFrames(file, "1:2")
	require.Len(t, frames, 1)
	assert.Equal(t, "Cart", frames[0].Name)

	frames = ExportFrames(file, "1:4")
	require.Len(t, frames, 2)
	assert.Equal(t, "Pay", frames[0].Name)

	frames = ExportFrames(file, "1:3")
	require.Len(t, frames, 1, "a node without frames falls back to the first page")
	assert.Equal(t, "Cart", frames[0].Name)

	frames = ExportFrames(file, "404:1")
	require.Len(t, frames, 1)
	assert.Equal(t, "Cart", frames[0].Name)
}

func TestClientGetFileAndRender(t *testing.T) {
	var tokens []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokens = append(tokens, r.Header.Get("X-Figma-Token"))
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/files/KEY":
			_ = json.NewEncoder(w).Encode(sampleFile())
		case "/v1/images/KEY":
			assert.Equal(t, "2:1,2:2", r.URL.Query().Get("ids"))
			assert.Equal(t, "png", r.URL.Query().Get("format"))
			_ = json.NewEncoder(w).Encode(map[string]any{
				"err":    nil,
				"images": map[string]any{"2:1": "https://img/pay.png", "2:2": nil},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL, func(context.Context) (string, error) { return "figd_test", nil })
	ctx := context.Background()

	file, err := client.GetFile(ctx, "KEY")
	require.NoError(t, err)
	assert.Equal(t, "Checkout", file.Name)
	assert.NotNil(t, FindInDocument(file, "2:2"))

	images, err := client.RenderImages(ctx, "KEY", []string{"2:1", "2:2"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"2:1": "https://img/pay.png"}, images)
	assert.Equal(t, []string{"figd_test", "figd_test"}, tokens)
}

func TestClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"status":403,"err":"Invalid token"}`, http.StatusForbidden)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, func(context.Context) (string, error) { return "bad", nil })
	_, err := client.GetFile(context.Background(), "KEY")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid token")

	missing := NewClient(srv.URL, func(context.Context) (string, error) { return "", nil })
	_, err = missing.GetFile(context.Background(), "KEY")
	assert.ErrorIs(t, err, ErrMissingToken)
}
