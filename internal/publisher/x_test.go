package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/sakif/highest-aircraft/internal/apperror"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPost_SendsBearerJSON(t *testing.T) {
	type captured struct {
		method, path, auth, contentType string
		body                            map[string]string
	}
	got := make(chan captured, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := captured{
			method:      r.Method,
			path:        r.URL.Path,
			auth:        r.Header.Get("Authorization"),
			contentType: r.Header.Get("Content-Type"),
		}
		_ = json.NewDecoder(r.Body).Decode(&c.body)
		got <- c
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"data":{"id":"1799","text":"hi"}}`)
	}))
	defer srv.Close()

	client := NewClient(testLogger()).WithBaseURL(srv.URL)
	err := client.Post(context.Background(), &oauth2.Token{AccessToken: "abc"}, "hello world")
	require.NoError(t, err)

	c := <-got
	assert.Equal(t, http.MethodPost, c.method)
	assert.Equal(t, "/tweets", c.path)
	assert.Equal(t, "Bearer abc", c.auth)
	assert.Equal(t, "application/json", c.contentType)
	assert.Equal(t, map[string]string{"text": "hello world"}, c.body)
}

func TestPost_RejectionIsPublishError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, `{"detail":"duplicate content"}`)
	}))
	defer srv.Close()

	client := NewClient(testLogger()).WithBaseURL(srv.URL)
	err := client.Post(context.Background(), &oauth2.Token{AccessToken: "abc"}, "x")

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrPublish))
	assert.Contains(t, err.Error(), "403")
}

func TestPost_TransportErrorIsPublishError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close() // nothing listens any more

	client := NewClient(testLogger()).WithBaseURL(url)
	err := client.Post(context.Background(), &oauth2.Token{AccessToken: "abc"}, "x")

	assert.True(t, errors.Is(err, apperror.ErrPublish))
}

func TestPost_MissingCredential(t *testing.T) {
	client := NewClient(testLogger())

	err := client.Post(context.Background(), nil, "x")
	assert.True(t, errors.Is(err, apperror.ErrPublish))

	err = client.Post(context.Background(), &oauth2.Token{}, "x")
	assert.True(t, errors.Is(err, apperror.ErrPublish))
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

type failingBody struct{}

func (failingBody) Read([]byte) (int, error) { return 0, errors.New("connection reset by peer") }
func (failingBody) Close() error { return nil }

func TestPost_UnreadableRejectionBody(t *testing.T) {
	hc := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusServiceUnavailable,
			Body:       failingBody{},
			Header:     make(http.Header),
			Request:    r,
		}, nil
	})}

	client := NewClient(testLogger()).WithBaseURL("http://x.test").WithHTTPClient(hc)
	err := client.Post(context.Background(), &oauth2.Token{AccessToken: "abc"}, "hello")

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrPublish))
	assert.ErrorContains(t, err, "status 503")
	assert.ErrorContains(t, err, "connection reset by peer")
}

func TestPost_UnreadableSuccessBodyIsNotAFailure(t *testing.T) {
	hc := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusCreated,
			Body:       failingBody{},
			Header:     make(http.Header),
			Request:    r,
		}, nil
	})}

	client := NewClient(testLogger()).WithBaseURL("http://x.test").WithHTTPClient(hc)
	assert.NoError(t, client.Post(context.Background(), &oauth2.Token{AccessToken: "abc"}, "hello"))
}
