package httpfetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/politefetch/politefetch/internal/fetchmodel"
)

func testDatum(url string) fetchmodel.ScoredUrlDatum {
	return fetchmodel.ScoredUrlDatum{
		GroupedUrlDatum: fetchmodel.GroupedUrlDatum{
			UrlDatum: fetchmodel.UrlDatum{
				URL:      url,
				Status:   fetchmodel.StatusUnfetched,
				Metadata: fetchmodel.Metadata{"batch": "b-1"},
			},
		},
		Score: 1.0,
	}
}

func TestFetchSuccessReturnsFetchedDatum(t *testing.T) {
	t.Parallel()

	var gotUserAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserAgent = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html>hello</html>")
	}))
	defer server.Close()

	f := New("politefetch-test/1.0", fetchmodel.NewFetcherPolicy(), 4)
	out := f.Fetch(context.Background(), testDatum(server.URL+"/page"))

	require.Equal(t, fetchmodel.StatusFetched, out.Status)
	require.Equal(t, http.StatusOK, out.HTTPStatus)
	assert.Equal(t, "<html>hello</html>", string(out.Content))
	assert.Equal(t, "text/html", out.ContentType)
	assert.False(t, out.Truncated)
	assert.Equal(t, "politefetch-test/1.0", gotUserAgent)
	assert.Equal(t, "b-1", out.Metadata["batch"])
	assert.Equal(t, "text/html", out.Headers.First("Content-Type"))
}

func TestFetchTruncatesAtMaxContentSize(t *testing.T) {
	t.Parallel()

	body := strings.Repeat("x", 10*1024)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Length", fmt.Sprint(len(body)))
		fmt.Fprint(w, body)
	}))
	defer server.Close()

	policy := fetchmodel.NewFetcherPolicy(fetchmodel.WithMaxContentSize(4 * 1024))
	f := New("politefetch-test/1.0", policy, 4)
	out := f.Fetch(context.Background(), testDatum(server.URL))

	require.Equal(t, fetchmodel.StatusFetched, out.Status)
	assert.Len(t, out.Content, 4*1024)
	assert.True(t, out.Truncated)
}

func TestFetchErrorStatusKeepsDebugWindow(t *testing.T) {
	t.Parallel()

	body := strings.Repeat("e", 8*1024)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, body)
	}))
	defer server.Close()

	f := New("politefetch-test/1.0", fetchmodel.NewFetcherPolicy(), 4)
	out := f.Fetch(context.Background(), testDatum(server.URL+"/missing"))

	require.Equal(t, fetchmodel.StatusError, out.Status)
	require.Equal(t, http.StatusNotFound, out.HTTPStatus)
	assert.LessOrEqual(t, len(out.Content), errorBodyWindow)
	assert.NotEmpty(t, out.Content)
}

func TestFetchRecordsRedirectChain(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, server.URL+"/middle", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/middle", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, server.URL+"/final", http.StatusFound)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "done")
	})

	f := New("politefetch-test/1.0", fetchmodel.NewFetcherPolicy(), 4)
	out := f.Fetch(context.Background(), testDatum(server.URL+"/start"))

	require.Equal(t, fetchmodel.StatusFetched, out.Status)
	assert.Equal(t, server.URL+"/start", out.URL)
	assert.Equal(t, server.URL+"/final", out.RedirectedURL)
	require.Len(t, out.RedirectChain, 2)
	assert.Equal(t, server.URL+"/start", out.RedirectChain[0])
	assert.Equal(t, server.URL+"/middle", out.RedirectChain[1])
}

func TestFetchStopsAtMaxRedirects(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, r.URL.Path+"x", http.StatusFound)
	})

	policy := fetchmodel.NewFetcherPolicy(fetchmodel.WithMaxRedirects(2))
	f := New("politefetch-test/1.0", policy, 4)
	out := f.Fetch(context.Background(), testDatum(server.URL+"/"))

	assert.Equal(t, fetchmodel.StatusError, out.Status)
}

func TestFetchMalformedURLIsErrorDatum(t *testing.T) {
	t.Parallel()

	f := New("politefetch-test/1.0", fetchmodel.NewFetcherPolicy(), 4)
	out := f.Fetch(context.Background(), testDatum("http://bad host/%zz"))

	assert.Equal(t, fetchmodel.StatusError, out.Status)
	assert.Zero(t, out.HTTPStatus)
}

func TestFetchAbortsSlowPeer(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Length", "65536")
		flusher := w.(http.Flusher)
		fmt.Fprint(w, strings.Repeat("a", 64))
		flusher.Flush()
		// Trickle the rest far below the configured minimum rate.
		for i := 0; i < 4; i++ {
			time.Sleep(400 * time.Millisecond)
			fmt.Fprint(w, strings.Repeat("a", 16))
			flusher.Flush()
		}
	}))
	defer server.Close()

	policy := fetchmodel.NewFetcherPolicy(
		fetchmodel.WithMinResponseRate(10_000),
		fetchmodel.WithMaxContentSize(64*1024),
	)
	f := New("politefetch-test/1.0", policy, 4)
	out := f.Fetch(context.Background(), testDatum(server.URL))

	require.Equal(t, fetchmodel.StatusAborted, out.Status)
	assert.NotEmpty(t, out.Content, "bytes read before the abort are retained")
	assert.Less(t, len(out.Content), 64*1024)
}

func TestGetBytesReturnsTypedHTTPError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	f := New("politefetch-test/1.0", fetchmodel.NewFetcherPolicy(), 4)
	_, err := f.GetBytes(context.Background(), server.URL+"/robots.txt")

	var statusErr *HTTPStatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
}

func TestGetBytesReturnsTypedIOError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	f := New("politefetch-test/1.0", fetchmodel.NewFetcherPolicy(), 4)
	_, err := f.GetBytes(context.Background(), url+"/robots.txt")

	var ioErr *IOFetchError
	require.True(t, errors.As(err, &ioErr))
}

func TestGetBytesReturnsBody(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "User-agent: *\nDisallow: /private\n")
	}))
	defer server.Close()

	f := New("politefetch-test/1.0", fetchmodel.NewFetcherPolicy(), 4)
	body, err := f.GetBytes(context.Background(), server.URL+"/robots.txt")

	require.NoError(t, err)
	assert.Contains(t, string(body), "Disallow: /private")
}
