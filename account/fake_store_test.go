package account

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// fakeStore is an in-memory store.Store for tests.
type fakeStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string][]byte)}
}

func (s *fakeStore) Load(ctx context.Context, key string) error { return nil }

func (s *fakeStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *fakeStore) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *fakeStore) Unload(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// fakeNotifier records outbound messages instead of sending them anywhere.
type fakeNotifier struct {
	mu           sync.Mutex
	peerAddress  common.Address
	claims       []ClaimMessage
	depositPings int
}

func (n *fakeNotifier) ResolvePeerAddress(ctx context.Context, accountName string) (common.Address, error) {
	return n.peerAddress, nil
}

func (n *fakeNotifier) SendClaim(ctx context.Context, accountName string, claim ClaimMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.claims = append(n.claims, claim)
	return nil
}

func (n *fakeNotifier) SendChannelDeposit(ctx context.Context, accountName string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.depositPings++
	return nil
}

func (n *fakeNotifier) lastClaim() (ClaimMessage, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.claims) == 0 {
		return ClaimMessage{}, false
	}
	return n.claims[len(n.claims)-1], true
}
