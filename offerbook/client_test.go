package offerbook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClientListMakerHosts(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/makers", r.URL.Path)
		json.NewEncoder(w).Encode([]string{"maker1.example:9999", "maker2.example:9999"})
	}))
	defer srv.Close()

	client := NewClient(&ClientConfig{
		BaseURL:       srv.URL,
		RateLimit:     100,
		Timeout:       5 * time.Second,
		RetryAttempts: 1,
		RetryDelay:    10 * time.Millisecond,
	})

	hosts, err := client.ListMakerHosts(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"maker1.example:9999", "maker2.example:9999"}, hosts)
}

func TestClientAdvertise(t *testing.T) {
	t.Parallel()

	var gotReq advertiseRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(&ClientConfig{
		BaseURL:       srv.URL,
		RateLimit:     100,
		Timeout:       5 * time.Second,
		RetryAttempts: 1,
		RetryDelay:    10 * time.Millisecond,
	})

	err := client.Advertise(context.Background(), "self.example:9999", []byte("proof"))
	require.NoError(t, err)
	require.Equal(t, "self.example:9999", gotReq.Host)
	require.Equal(t, []byte("proof"), gotReq.FidelityBondProof)
}

func TestClientRetriesOn5xxThenSucceeds(t *testing.T) {
	t.Parallel()

	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode([]string{"maker.example:9999"})
	}))
	defer srv.Close()

	client := NewClient(&ClientConfig{
		BaseURL:       srv.URL,
		RateLimit:     100,
		Timeout:       5 * time.Second,
		RetryAttempts: 2,
		RetryDelay:    5 * time.Millisecond,
	})

	hosts, err := client.ListMakerHosts(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"maker.example:9999"}, hosts)
	require.Equal(t, 2, attempts)
}
