package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/raysh454/cleanweb/internal/logging"
	"github.com/raysh454/cleanweb/internal/webclient"
	"github.com/sethvargo/go-retry"
)

// HTTPModel is a Model served by an inference service: GET /health and
// POST /classify with a multipart "image" field, answering
// {"predictions":[{"className":"Porn","probability":0.2}, ...]}.
type HTTPModel struct {
	endpoint string
	client   webclient.WebClient
	logger   logging.Logger
}

type predictResponse struct {
	Predictions []Prediction `json:"predictions"`
}

// NewHTTPModelLoader returns a Loader that waits for the service to report
// healthy, retrying a few times, before handing out the model.
func NewHTTPModelLoader(endpoint string, client webclient.WebClient, logger logging.Logger) Loader {
	endpoint = strings.TrimRight(endpoint, "/")
	return func(ctx context.Context) (Model, error) {
		m := &HTTPModel{
			endpoint: endpoint,
			client:   client,
			logger:   logger.With(logging.Field{Key: "component", Value: "classifier.httpmodel"}),
		}
		b := retry.WithMaxRetries(3, retry.NewFibonacci(250*time.Millisecond))
		if err := retry.Do(ctx, b, func(ctx context.Context) error {
			if err := m.HealthCheck(ctx); err != nil {
				return retry.RetryableError(err)
			}
			return nil
		}); err != nil {
			return nil, err
		}
		return m, nil
	}
}

// HealthCheck verifies the inference service is running.
func (m *HTTPModel) HealthCheck(ctx context.Context) error {
	resp, err := m.client.Do(ctx, &webclient.Request{Method: http.MethodGet, URL: m.endpoint + "/health"})
	if err != nil {
		return fmt.Errorf("inference service not reachable: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("inference service unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func (m *HTTPModel) Predict(ctx context.Context, in ModelInput) ([]Prediction, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	name := "image"
	if in.Format != "" {
		name += "." + in.Format
	}
	part, err := writer.CreateFormFile("image", name)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(in.Data); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	resp, err := m.client.Do(ctx, &webclient.Request{
		Method:  http.MethodPost,
		URL:     m.endpoint + "/classify",
		Headers: http.Header{"Content-Type": {writer.FormDataContentType()}},
		Body:    body.Bytes(),
	})
	if err != nil {
		return nil, fmt.Errorf("classify request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("inference service returned status %d: %s", resp.StatusCode, truncate(resp.Body, 200))
	}

	var out predictResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode predictions: %w", err)
	}
	if len(out.Predictions) == 0 {
		return nil, fmt.Errorf("received empty predictions")
	}
	m.logger.Debug("predicted", logging.Field{Key: "categories", Value: len(out.Predictions)})
	return out.Predictions, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
