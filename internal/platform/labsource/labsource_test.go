package labsource

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Fetch(t *testing.T) {
	paths := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths <- r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"patient":{"city":"X","name":"Y"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/users/get_pdf/", time.Second)
	doc, err := c.Fetch(context.Background(), 2)
	require.NoError(t, err)

	assert.Equal(t, "/users/get_pdf/2", <-paths)
	assert.Equal(t, []string{"city", "name"}, doc.Field("patient").Fields().Keys())
	assert.False(t, c.Busy())
}

func TestClient_Fetch_NonOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	_, err := c.Fetch(context.Background(), 9)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstream)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.Contains(t, se.Body, "nope")
	assert.False(t, c.Busy(), "guard must be released after failure")
}

func TestClient_Fetch_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Fetch(context.Background(), 1)
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestClient_Fetch_TooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`"` + strings.Repeat("a", MaxResponseSize) + `"`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, 5*time.Second).Fetch(context.Background(), 1)
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestClient_Fetch_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(srv.URL, 50*time.Millisecond)
	_, err := c.Fetch(context.Background(), 1)
	assert.Error(t, err)
	assert.False(t, c.Busy())
}

func TestClient_Fetch_SingleFlight(t *testing.T) {
	release := make(chan struct{})
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)

	done := make(chan error, 1)
	go func() {
		_, err := c.Fetch(context.Background(), 1)
		done <- err
	}()
	require.Eventually(t, c.Busy, time.Second, 5*time.Millisecond)

	_, err := c.Fetch(context.Background(), 2)
	assert.ErrorIs(t, err, ErrFetchInProgress)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), hits.Load(), "dropped call must not reach the source")

	// The guard is free again.
	_, err = c.Fetch(context.Background(), 3)
	assert.NoError(t, err)
}

func TestParseFileMap(t *testing.T) {
	m, err := ParseFileMap(DefaultFileMap)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"medical1.pdf": 1, "medical2.pdf": 2, "medical3.pdf": 3}, m)

	m, err = ParseFileMap(" a.pdf = 7 ,, ")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a.pdf": 7}, m)

	for _, bad := range []string{"a.pdf", "=1", "a.pdf=x", "a.pdf=0"} {
		_, err := ParseFileMap(bad)
		assert.Error(t, err, bad)
	}
}

func TestResolver_Resolve(t *testing.T) {
	m, _ := ParseFileMap(DefaultFileMap)
	r := NewResolver(m)

	tests := map[string]int{
		"medical1.pdf":              1,
		"uploads/medical2.pdf":      2,
		`C:\Users\lab\medical3.pdf`: 3,
	}
	for name, want := range tests {
		got, err := r.Resolve(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := r.Resolve("medical4.pdf")
	assert.ErrorIs(t, err, ErrUnknownFile)
	_, err = r.Resolve("MEDICAL1.PDF")
	assert.ErrorIs(t, err, ErrUnknownFile)

	assert.Equal(t, []string{"medical1.pdf", "medical2.pdf", "medical3.pdf"}, r.Names())
}

func TestResolver_CopiesMap(t *testing.T) {
	m := map[string]int{"a.pdf": 1}
	r := NewResolver(m)
	m["b.pdf"] = 2

	_, err := r.Resolve("b.pdf")
	assert.ErrorIs(t, err, ErrUnknownFile)
}
