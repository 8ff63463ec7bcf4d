package offerbook

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/citadel-tech/coinswap-go/swapwire"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	offers map[string]swapwire.Offer
	errs   map[string]error
}

func (f *fakeFetcher) FetchOffer(ctx context.Context, host string) (swapwire.Offer, error) {
	if err, ok := f.errs[host]; ok {
		return swapwire.Offer{}, err
	}
	return f.offers[host], nil
}

type fakeValidator struct {
	rejectProof string
}

func (v *fakeValidator) ValidateProof(proof []byte, host string) error {
	if string(proof) == v.rejectProof {
		return fmt.Errorf("bond spent")
	}
	return nil
}

func newTestDirectory(t *testing.T, hosts []string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(hosts)
	}))
	t.Cleanup(srv.Close)

	return NewClient(&ClientConfig{
		BaseURL:       srv.URL,
		RateLimit:     100,
		Timeout:       5 * time.Second,
		RetryAttempts: 1,
		RetryDelay:    time.Millisecond,
	})
}

func TestOfferBookSyncExcludesInvalidBondAndBadMaker(t *testing.T) {
	t.Parallel()

	directory := newTestDirectory(t, []string{"good.example", "bad-bond.example", "banned.example"})

	fetcher := &fakeFetcher{
		offers: map[string]swapwire.Offer{
			"good.example":     {MinSize: 1_000, MaxSize: 1_000_000, FidelityBondProof: []byte("valid")},
			"bad-bond.example": {MinSize: 1_000, MaxSize: 1_000_000, FidelityBondProof: []byte("spent")},
			"banned.example":   {MinSize: 1_000, MaxSize: 1_000_000, FidelityBondProof: []byte("valid")},
		},
	}
	validator := &fakeValidator{rejectProof: "spent"}

	badList := NewBadMakerList()
	badList.Add("banned.example")

	ob := NewOfferBook(directory, fetcher, validator, badList)
	require.NoError(t, ob.Sync(context.Background()))

	candidate, ok := ob.UntriedFor(10_000)
	require.True(t, ok)
	require.Equal(t, "good.example", candidate.Host)

	// Only one usable candidate: the second UntriedFor call finds none.
	_, ok = ob.UntriedFor(10_000)
	require.False(t, ok)
}

func TestOfferBookUntriedForRespectsSizeRange(t *testing.T) {
	t.Parallel()

	directory := newTestDirectory(t, []string{"small.example"})
	fetcher := &fakeFetcher{
		offers: map[string]swapwire.Offer{
			"small.example": {MinSize: 1_000, MaxSize: 5_000, FidelityBondProof: []byte("valid")},
		},
	}
	validator := &fakeValidator{}

	ob := NewOfferBook(directory, fetcher, validator, NewBadMakerList())
	require.NoError(t, ob.Sync(context.Background()))

	_, ok := ob.UntriedFor(100_000)
	require.False(t, ok)

	candidate, ok := ob.UntriedFor(2_000)
	require.True(t, ok)
	require.Equal(t, "small.example", candidate.Host)
}

func TestOfferBookMarkBadPersistsToBadList(t *testing.T) {
	t.Parallel()

	directory := newTestDirectory(t, []string{"maker.example"})
	fetcher := &fakeFetcher{
		offers: map[string]swapwire.Offer{
			"maker.example": {MinSize: 1_000, MaxSize: 5_000, FidelityBondProof: []byte("valid")},
		},
	}

	badList := NewBadMakerList()
	ob := NewOfferBook(directory, fetcher, &fakeValidator{}, badList)

	ob.MarkBad("maker.example")
	require.True(t, badList.IsBad("maker.example"))
}
