package translation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

func TestOpenAIClient_Complete(t *testing.T) {
	req := require.New(t)
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req.Equal("/v1/chat/completions", r.URL.Path)
		req.Equal("Bearer sk-test", r.Header.Get("Authorization"))
		req.NoError(json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"\"Hola\""}}]}`))
	}))
	defer srv.Close()

	client := NewOpenAIClient(OpenAIConfig{BaseURL: srv.URL + "/v1/", APIKey: "sk-test", Model: "gpt-3.5-turbo", Temperature: 0.3}, srv.Client())
	out, err := client.Complete(context.Background(), "Hello", "es")
	req.NoError(err)
	req.Equal(`"Hola"`, out)

	req.Equal("gpt-3.5-turbo", got.Model)
	req.InDelta(0.3, got.Temperature, 0.0001)
	req.Len(got.Messages, 2)
	req.Contains(got.Messages[0].Content, "Spanish")
	req.Equal("Hello", got.Messages[1].Content)
}

func TestOpenAIClient_CompleteReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down"}}`))
	}))
	defer srv.Close()

	client := NewOpenAIClient(OpenAIConfig{BaseURL: srv.URL, Model: "m"}, srv.Client())
	_, err := client.Complete(context.Background(), "Hello", "es")
	require.ErrorIs(t, err, ErrUnexpectedStatus)
	require.Contains(t, err.Error(), "slow down")
}

func TestOpenAIClient_CompleteWithoutChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	client := NewOpenAIClient(OpenAIConfig{BaseURL: srv.URL, Model: "m"}, srv.Client())
	_, err := client.Complete(context.Background(), "Hello", "es")
	require.ErrorIs(t, err, ErrEmptyResult)
}
