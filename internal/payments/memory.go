package payments

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MemoryProvider is an in-process Provider for local development and tests.
// Intents start pending; Settle or SetStatus moves them along.
type MemoryProvider struct {
	mu       sync.Mutex
	payments map[string]Payment

	// AutoSettle marks new intents settled immediately.
	AutoSettle bool
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{payments: make(map[string]Payment)}
}

func (m *MemoryProvider) CreateIntent(_ context.Context, amount int64, currency string, metadata map[string]string) (Intent, error) {
	id := "pi_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	md := make(map[string]string, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}
	status := StatusPending
	if m.AutoSettle {
		status = StatusSettled
	}

	m.mu.Lock()
	m.payments[id] = Payment{ID: id, Status: status, RawState: string(status), Amount: amount, Currency: currency, Metadata: md}
	m.mu.Unlock()

	return Intent{ID: id, ClientSecret: id + "_secret", Amount: amount, Currency: currency}, nil
}

func (m *MemoryProvider) Lookup(_ context.Context, paymentID string) (Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[paymentID]
	if !ok {
		return Payment{}, ErrPaymentNotFound
	}
	cp := p
	cp.Metadata = make(map[string]string, len(p.Metadata))
	for k, v := range p.Metadata {
		cp.Metadata[k] = v
	}
	return cp, nil
}

// Put registers a payment directly, replacing any existing one with the same id.
func (m *MemoryProvider) Put(p Payment) {
	if p.RawState == "" {
		p.RawState = string(p.Status)
	}
	m.mu.Lock()
	m.payments[p.ID] = p
	m.mu.Unlock()
}

// Settle marks an intent as settled. It reports false for unknown ids.
func (m *MemoryProvider) Settle(paymentID string) bool {
	return m.SetStatus(paymentID, StatusSettled)
}

func (m *MemoryProvider) SetStatus(paymentID string, s Status) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[paymentID]
	if !ok {
		return false
	}
	p.Status = s
	p.RawState = string(s)
	m.payments[paymentID] = p
	return true
}
