package offerbook

import (
	"context"
	"sync"

	"github.com/citadel-tech/coinswap-go/swapwire"
)

// MakerCandidate is a directory-advertised Maker paired with the offer and
// fidelity-bond proof it presented when the Taker dialed it (spec.md §4.5
// step 2).
type MakerCandidate struct {
	Host  string
	Offer swapwire.Offer
}

// FidelityValidator checks a Maker's bond proof. It is an interface
// (rather than a direct dependency on the fidelity package) so offerbook
// never needs to know the certificate's internal shape, matching how the
// Supplemented Features section keeps bond *construction* in fidelity and
// bond *consumption* at the call site.
type FidelityValidator interface {
	ValidateProof(proof []byte, host string) error
}

// OfferFetcher dials a candidate Maker's host and retrieves its current
// offer and fidelity bond proof over the swap wire protocol
// (TakerHello/MakerHello then ReqGiveOffer/RespOffer, spec.md §4.2-§4.3).
// The actual dialing belongs to the taker package, which implements this
// interface; offerbook only orchestrates which hosts to ask and which
// results to keep.
type OfferFetcher interface {
	FetchOffer(ctx context.Context, host string) (swapwire.Offer, error)
}

// OfferBook tracks candidate Makers discovered via the directory service,
// gated by fidelity bond validation, and the good/bad history the Taker
// has built up across hops -- grounded on original_source/src/taker/taker.rs's
// OfferBook (add_bad_maker/add_good_maker/get_all_untried).
type OfferBook struct {
	directory *Client
	fetcher   OfferFetcher
	validator FidelityValidator
	bad       *BadMakerList

	mu      sync.RWMutex
	offers  map[string]MakerCandidate
	tried   map[string]bool
	goodSet map[string]bool
}

// NewOfferBook builds an OfferBook against a directory client, an offer
// fetcher (dials Makers directly), a fidelity bond validator, and a
// bad-maker list (optionally loaded from disk, see BadMakerList).
func NewOfferBook(directory *Client, fetcher OfferFetcher, validator FidelityValidator, bad *BadMakerList) *OfferBook {
	return &OfferBook{
		directory: directory,
		fetcher:   fetcher,
		validator: validator,
		bad:       bad,
		offers:    make(map[string]MakerCandidate),
		tried:     make(map[string]bool),
		goodSet:   make(map[string]bool),
	}
}

// Sync refreshes the candidate set: lists hosts from the directory, drops
// hosts already on the bad-maker list, fetches each remaining host's offer
// and fidelity proof, and excludes any host whose proof fails validation
// (spec.md §7: FidelityError -> "exclude Maker from offerbook", never a
// fatal sync failure; see S6 in spec.md §8).
func (ob *OfferBook) Sync(ctx context.Context) error {
	hosts, err := ob.directory.ListMakerHosts(ctx)
	if err != nil {
		return err
	}

	ob.mu.Lock()
	ob.offers = make(map[string]MakerCandidate, len(hosts))
	ob.mu.Unlock()

	for _, host := range hosts {
		if ob.bad.IsBad(host) {
			continue
		}

		offer, err := ob.fetcher.FetchOffer(ctx, host)
		if err != nil {
			log.Warnf("offerbook: fetch offer from %s failed: %v", host, err)
			continue
		}

		if err := ob.validator.ValidateProof(offer.FidelityBondProof, host); err != nil {
			log.Warnf("offerbook: bond proof for %s rejected: %v", host, err)
			continue
		}

		ob.mu.Lock()
		ob.offers[host] = MakerCandidate{Host: host, Offer: offer}
		ob.mu.Unlock()
	}

	return nil
}

// UntriedFor returns an untried candidate whose size range covers amount,
// or false if none remain -- the selection spec.md §4.5 step 4a describes
// ("choose an untried Maker whose min_size <= amount <= max_size").
func (ob *OfferBook) UntriedFor(amount int64) (MakerCandidate, bool) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	for host, candidate := range ob.offers {
		if ob.tried[host] {
			continue
		}
		if amount < candidate.Offer.MinSize || amount > candidate.Offer.MaxSize {
			continue
		}
		ob.tried[host] = true
		return candidate, true
	}
	return MakerCandidate{}, false
}

// UntriedCount reports how many candidates whose [MinSize, MaxSize] range
// covers amount have not yet been tried this swap, used for the "fail if fewer than H
// usable Makers remain" pre-check (spec.md §4.5 step 2).
func (ob *OfferBook) UntriedCount(amount int64) int {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	count := 0
	for host, candidate := range ob.offers {
		if ob.tried[host] {
			continue
		}
		if amount < candidate.Offer.MinSize || amount > candidate.Offer.MaxSize {
			continue
		}
		count++
	}
	return count
}

// MarkGood records a successful hop with host, per
// original_source's add_good_maker.
func (ob *OfferBook) MarkGood(host string) {
	ob.mu.Lock()
	ob.goodSet[host] = true
	ob.mu.Unlock()
}

// MarkBad records host as bad for the remainder of this swap and adds it
// to the persistent bad-maker list, per original_source's add_bad_maker.
func (ob *OfferBook) MarkBad(host string) {
	ob.bad.Add(host)
}

// ResetTried clears the per-swap tried set so a fresh swap round can
// reconsider every candidate that wasn't marked bad.
func (ob *OfferBook) ResetTried() {
	ob.mu.Lock()
	ob.tried = make(map[string]bool)
	ob.mu.Unlock()
}
