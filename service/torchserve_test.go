package service

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTorchServeEmbedTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ping":
			w.WriteHeader(http.StatusOK)
		case "/predictions/minilm":
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			raw, _ := io.ReadAll(r.Body)
			var body struct {
				Data      []string `json:"data"`
				MaxLength int      `json:"max_length"`
			}
			assert.NoError(t, json.Unmarshal(raw, &body))
			assert.Equal(t, 16, body.MaxLength)
			out := make([]TokenStates, len(body.Data))
			for i := range out {
				out[i] = TokenStates{Hidden: [][]float64{{1, 2}, {3, 4}}, Mask: []float64{1, 0}}
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"outputs": out})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	svc, err := NewEmbeddingService(&ServiceConfig{
		Type:      ServiceTypeTorchServe,
		Endpoint:  srv.URL,
		ModelName: "minilm",
		Auth:      &AuthConfig{Type: "bearer", Token: "tok"},
	})
	require.NoError(t, err)
	defer svc.Close()

	require.NoError(t, TestConnection(context.Background(), svc))
	resp, err := svc.EmbedTokens(context.Background(), &EmbedRequest{Texts: []string{"a", "b"}, MaxLength: 16})
	require.NoError(t, err)
	require.Len(t, resp.Outputs, 2)
	assert.Equal(t, []float64{1, 0}, resp.Outputs[1].Mask)
}

func TestTorchServeErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"token_embeddings":[[1]],"attention_mask":[1]}]`))
	}))
	defer srv.Close()

	c := NewTorchServeClient(srv.URL, "m")
	_, err := c.EmbedTokens(context.Background(), &EmbedRequest{Texts: []string{"a", "b"}})
	assert.ErrorContains(t, err, "1 outputs for 2 texts")

	_, err = NewEmbeddingService(&ServiceConfig{Type: "tf_serving", Endpoint: "http://x", ModelName: "m"})
	assert.Error(t, err)
	_, err = NewEmbeddingService(&ServiceConfig{Type: ServiceTypeTorchServe, Endpoint: "localhost:8500", ModelName: "m"})
	assert.Error(t, err)
}
