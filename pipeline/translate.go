package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DefaultTranslateEndpoint is the public Google Translate web endpoint.
const DefaultTranslateEndpoint = "https://translate.googleapis.com/translate_a/single"

// GoogleTranslator translates short strings with the keyless Google
// Translate web endpoint.
type GoogleTranslator struct {
	Endpoint string
	Client   *http.Client
}

// NewGoogleTranslator creates a translator with a 15 second timeout.
func NewGoogleTranslator() *GoogleTranslator {
	return &GoogleTranslator{
		Endpoint: DefaultTranslateEndpoint,
		Client: &http.Client{
			Timeout:   15 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Translate detects the source language and translates text into lang.
func (g *GoogleTranslator) Translate(ctx context.Context, text, lang string) (string, error) {
	q := url.Values{}
	q.Set("client", "gtx")
	q.Set("sl", "auto")
	q.Set("tl", lang)
	q.Set("dt", "t")
	q.Set("q", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.Endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	resp, err := g.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("translate request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("translate request: status %d", resp.StatusCode)
	}
	return parseTranslation(resp.Body)
}

// parseTranslation reads [[["translated","source",...],...],...].
func parseTranslation(r io.Reader) (string, error) {
	var doc []json.RawMessage
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return "", fmt.Errorf("decode translation: %w", err)
	}
	if len(doc) == 0 {
		return "", fmt.Errorf("decode translation: empty response")
	}

	var sentences [][]any
	if err := json.Unmarshal(doc[0], &sentences); err != nil {
		return "", fmt.Errorf("decode translation: %w", err)
	}
	var b strings.Builder
	for _, s := range sentences {
		if len(s) == 0 {
			continue
		}
		if part, ok := s[0].(string); ok {
			b.WriteString(part)
		}
	}
	return b.String(), nil
}
