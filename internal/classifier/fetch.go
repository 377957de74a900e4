package classifier

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/raysh454/cleanweb/internal/webclient"
	"github.com/sethvargo/go-retry"
)

var errNotFetchable = errors.New("locator cannot be fetched")

// fetcher downloads image bytes, retrying transient failures on a fibonacci
// backoff.
type fetcher struct {
	client     webclient.WebClient
	maxRetries uint64
	base       time.Duration
}

func (f *fetcher) fetch(ctx context.Context, locator string) ([]byte, error) {
	if strings.HasPrefix(strings.ToLower(locator), "data:") {
		return decodeDataURI(locator)
	}
	if f.client == nil {
		return nil, fmt.Errorf("%w: no web client configured", errNotFetchable)
	}
	u, err := url.Parse(locator)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("%w: %s", errNotFetchable, locator)
	}

	var body []byte
	b := retry.WithMaxRetries(f.maxRetries, retry.NewFibonacci(f.base))
	err = retry.Do(ctx, b, func(ctx context.Context) error {
		resp, err := f.client.Do(ctx, &webclient.Request{
			Method:  http.MethodGet,
			URL:     locator,
			Headers: http.Header{"Accept": {"image/*"}},
		})
		if err != nil {
			return retry.RetryableError(err)
		}
		switch {
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return retry.RetryableError(fmt.Errorf("fetch %s: status %d", locator, resp.StatusCode))
		case !resp.OK():
			return fmt.Errorf("fetch %s: status %d", locator, resp.StatusCode)
		}
		body = resp.Body
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("fetch %s: empty body", locator)
	}
	return body, nil
}

// decodeDataURI returns the payload of a data: URI.
func decodeDataURI(uri string) ([]byte, error) {
	meta, payload, ok := strings.Cut(uri[len("data:"):], ",")
	if !ok {
		return nil, fmt.Errorf("malformed data uri")
	}
	if strings.HasSuffix(strings.ToLower(meta), ";base64") {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("decode data uri: %w", err)
		}
		return data, nil
	}
	s, err := url.PathUnescape(payload)
	if err != nil {
		return nil, fmt.Errorf("decode data uri: %w", err)
	}
	return []byte(s), nil
}
