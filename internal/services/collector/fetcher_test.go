package collector

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestFetchExtractsMetadataPublishedTime(t *testing.T) {
	published := time.Date(2025, 6, 15, 9, 30, 0, 0, time.UTC)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, articleHTML("Rate Cut Odds Shift", published, "Traders repriced the curve."))
	}))
	defer server.Close()

	fetcher := NewFetcher(server.Client(), "", 0, arbor.NewLogger())
	doc, err := fetcher.Fetch(context.Background(), server.URL+"/news/rates", "testwire")
	require.NoError(t, err)

	assert.Equal(t, "Rate Cut Odds Shift", doc.Title)
	assert.Contains(t, doc.Text, "Traders repriced the curve.")
	require.NotNil(t, doc.Published)
	assert.True(t, doc.Published.Equal(published))
}

func TestFetchFallsBackToLastModified(t *testing.T) {
	lastModified := time.Date(2025, 6, 16, 12, 0, 0, 0, time.UTC)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Last-Modified", lastModified.Format(http.TimeFormat))
		fmt.Fprint(w, `<html><head><title>No Meta</title></head><body><p>Body text here.</p></body></html>`)
	}))
	defer server.Close()

	fetcher := NewFetcher(server.Client(), "", 0, arbor.NewLogger())
	doc, err := fetcher.Fetch(context.Background(), server.URL, "testwire")
	require.NoError(t, err)

	require.NotNil(t, doc.Published)
	assert.True(t, doc.Published.Equal(lastModified))
}

func TestFetchNoTimestampLeavesRetrievalTime(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>Nothing</title></head><body><p>Text.</p></body></html>`)
	}))
	defer server.Close()

	fetcher := NewFetcher(server.Client(), "", 0, arbor.NewLogger())
	doc, err := fetcher.Fetch(context.Background(), server.URL, "testwire")
	require.NoError(t, err)

	assert.Nil(t, doc.Published)
	assert.WithinDuration(t, time.Now(), doc.PublishedOrRetrieved(), 5*time.Second)
}

func TestFetchBoundsDocumentLength(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><article><p>`)
		for i := 0; i < 500; i++ {
			fmt.Fprint(w, "repeated sentence fragment ")
		}
		fmt.Fprint(w, `</p></article></body></html>`)
	}))
	defer server.Close()

	fetcher := NewFetcher(server.Client(), "", 200, arbor.NewLogger())
	doc, err := fetcher.Fetch(context.Background(), server.URL, "testwire")
	require.NoError(t, err)

	assert.LessOrEqual(t, len(doc.Text), 200)
}

func TestFetchRetriesTransientErrors(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `<html><head><title>Back Up</title></head><body><p>Recovered.</p></body></html>`)
	}))
	defer server.Close()

	fetcher := NewFetcher(server.Client(), "", 0, arbor.NewLogger())
	fetcher.retry.InitialBackoff = time.Millisecond
	fetcher.retry.MaxBackoff = 5 * time.Millisecond

	doc, err := fetcher.Fetch(context.Background(), server.URL, "testwire")
	require.NoError(t, err)
	assert.Equal(t, 3, hits)
	assert.Equal(t, "Back Up", doc.Title)
}

func TestFetchRejectsNon200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	fetcher := NewFetcher(server.Client(), "", 0, arbor.NewLogger())
	_, err := fetcher.Fetch(context.Background(), server.URL, "testwire")
	assert.Error(t, err)
}
