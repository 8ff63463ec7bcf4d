package offerbook

import (
	"encoding/json"
	"os"
	"sync"
)

// BadMakerList is the Taker's process-wide record of Makers that
// misbehaved (bans are kept across swaps, not reset per swap), with an
// optional on-disk backing so bans survive a Taker
// restart -- grounded on original_source/src/taker/taker.rs's
// OfferBook-embedded bad-maker tracking (add_bad_maker/get_bad_makers),
// pulled out into its own type since this module keeps OfferBook
// read-mostly and BadMakerList as the one piece of mutable ban state.
type BadMakerList struct {
	mu       sync.RWMutex
	bad      map[string]struct{}
	filePath string
}

// NewBadMakerList returns an empty, in-memory-only bad-maker list.
func NewBadMakerList() *BadMakerList {
	return &BadMakerList{bad: make(map[string]struct{})}
}

// LoadBadMakerList loads a bad-maker list from filePath if it exists,
// falling back to an empty list if the file is absent. Every subsequent
// Add call persists the updated set back to filePath.
func LoadBadMakerList(filePath string) (*BadMakerList, error) {
	list := &BadMakerList{bad: make(map[string]struct{}), filePath: filePath}

	raw, err := os.ReadFile(filePath)
	if os.IsNotExist(err) {
		return list, nil
	}
	if err != nil {
		return nil, err
	}

	var hosts []string
	if err := json.Unmarshal(raw, &hosts); err != nil {
		return nil, err
	}
	for _, h := range hosts {
		list.bad[h] = struct{}{}
	}
	return list, nil
}

// Add bans host. If this list was loaded from disk, the updated set is
// written back immediately.
func (l *BadMakerList) Add(host string) {
	l.mu.Lock()
	l.bad[host] = struct{}{}
	hosts := l.snapshotLocked()
	l.mu.Unlock()

	if l.filePath != "" {
		if err := l.persist(hosts); err != nil {
			log.Warnf("offerbook: failed to persist bad-maker list: %v", err)
		}
	}
}

// IsBad reports whether host is currently banned.
func (l *BadMakerList) IsBad(host string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.bad[host]
	return ok
}

// All returns every currently-banned host.
func (l *BadMakerList) All() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshotLocked()
}

func (l *BadMakerList) snapshotLocked() []string {
	hosts := make([]string, 0, len(l.bad))
	for h := range l.bad {
		hosts = append(hosts, h)
	}
	return hosts
}

func (l *BadMakerList) persist(hosts []string) error {
	raw, err := json.Marshal(hosts)
	if err != nil {
		return err
	}
	return os.WriteFile(l.filePath, raw, 0o600)
}
