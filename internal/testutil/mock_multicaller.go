package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/multiread/internal/domain/entity"
	"github.com/archon-research/multiread/internal/ports/outbound"
)

// MockMulticaller implements outbound.Multicaller for testing.
type MockMulticaller struct {
	mu        sync.Mutex
	ExecuteFn func(ctx context.Context, calls []outbound.Call, blockNumber *big.Int) ([]outbound.Result, error)
	CallCount int
	Addr      common.Address
}

func NewMockMulticaller() *MockMulticaller {
	return &MockMulticaller{
		Addr: common.HexToAddress("0xcA11bde05977b3631167028862bE2a173976CA11"),
	}
}

func (m *MockMulticaller) Execute(ctx context.Context, calls []outbound.Call, blockNumber *big.Int) ([]outbound.Result, error) {
	m.mu.Lock()
	m.CallCount++
	m.mu.Unlock()
	if m.ExecuteFn != nil {
		return m.ExecuteFn(ctx, calls, blockNumber)
	}
	return nil, errors.New("Execute not mocked")
}

func (m *MockMulticaller) Address() common.Address {
	return m.Addr
}

// Calls returns how many times Execute was invoked.
func (m *MockMulticaller) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}

// TransportCall records one MockTransport.Call invocation.
type TransportCall struct {
	To          common.Address
	Data        []byte
	BlockNumber *big.Int
}

// MockTransport implements outbound.Transport and outbound.CalldataLimiter for testing.
type MockTransport struct {
	mu       sync.Mutex
	CallFn   func(ctx context.Context, to common.Address, data []byte, blockNumber *big.Int) ([]byte, error)
	Received []TransportCall
	MaxSize  int
}

func (m *MockTransport) Call(ctx context.Context, to common.Address, data []byte, blockNumber *big.Int) ([]byte, error) {
	m.mu.Lock()
	m.Received = append(m.Received, TransportCall{To: to, Data: data, BlockNumber: blockNumber})
	m.mu.Unlock()
	if m.CallFn != nil {
		return m.CallFn(ctx, to, data, blockNumber)
	}
	return nil, errors.New("Call not mocked")
}

func (m *MockTransport) MaxCalldataSize() int {
	return m.MaxSize
}

// CallCount returns how many times Call was invoked.
func (m *MockTransport) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Received)
}

// MockSnapshotCache implements outbound.SnapshotCache in memory.
type MockSnapshotCache struct {
	mu      sync.Mutex
	Entries map[string]*outbound.CacheEntry
	FindErr error
	Stored  int
}

func NewMockSnapshotCache() *MockSnapshotCache {
	return &MockSnapshotCache{Entries: make(map[string]*outbound.CacheEntry)}
}

func (m *MockSnapshotCache) Find(_ context.Context, prefix string) (*outbound.CacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FindErr != nil {
		return nil, m.FindErr
	}
	return m.Entries[prefix], nil
}

func (m *MockSnapshotCache) Store(_ context.Context, prefix string, start, end int64, content json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries[prefix] = &outbound.CacheEntry{Content: content, Start: start, End: end}
	m.Stored++
	return nil
}

// MockBlockNumberReader implements outbound.BlockNumberReader.
type MockBlockNumberReader struct {
	Head uint64
	Err  error
}

func (m *MockBlockNumberReader) BlockNumber(context.Context) (uint64, error) {
	return m.Head, m.Err
}

// MockSnapshotRepository implements outbound.SnapshotRepository in memory.
type MockSnapshotRepository struct {
	mu        sync.Mutex
	Snapshots map[string]*entity.Snapshot
	SaveErr   error
	Saves     int
}

func NewMockSnapshotRepository() *MockSnapshotRepository {
	return &MockSnapshotRepository{Snapshots: make(map[string]*entity.Snapshot)}
}

func snapshotKey(source string, blockNumber int64) string {
	return fmt.Sprintf("%s/%d", source, blockNumber)
}

func (m *MockSnapshotRepository) SaveSnapshots(_ context.Context, snapshots []*entity.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Saves++
	if m.SaveErr != nil {
		return m.SaveErr
	}
	for _, s := range snapshots {
		key := snapshotKey(s.Source, s.BlockNumber)
		if _, ok := m.Snapshots[key]; !ok {
			m.Snapshots[key] = s
		}
	}
	return nil
}

func (m *MockSnapshotRepository) GetSnapshot(_ context.Context, source string, blockNumber int64) (*entity.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Snapshots[snapshotKey(source, blockNumber)], nil
}
