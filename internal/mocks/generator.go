package mocks

import (
	"context"
	"sync"

	"github.com/phrazzld/lumiere-api/internal/generation"
)

// MockGenerator implements generation.Generator for testing
type MockGenerator struct {
	// InitializeFn allows test cases to mock the Initialize behavior
	InitializeFn func(ctx context.Context) error

	// GenerateFn allows test cases to mock the Generate behavior
	GenerateFn func(ctx context.Context, req generation.Request, progress chan<- generation.Progress) (string, error)

	// Default response values
	Locator string
	Steps   int
	InitErr error
	Err     error

	mu         sync.Mutex
	initCalls  int
	closeCalls int
	requests   []generation.Request
}

// Initialize implements the generation.Generator interface
func (m *MockGenerator) Initialize(ctx context.Context) error {
	m.mu.Lock()
	m.initCalls++
	m.mu.Unlock()

	if m.InitializeFn != nil {
		return m.InitializeFn(ctx)
	}
	return m.InitErr
}

// Generate implements the generation.Generator interface.
// Without a GenerateFn it reports Steps progress events and returns Locator.
func (m *MockGenerator) Generate(
	ctx context.Context,
	req generation.Request,
	progress chan<- generation.Progress,
) (string, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.GenerateFn != nil {
		return m.GenerateFn(ctx, req, progress)
	}

	for i := 1; i <= m.Steps; i++ {
		select {
		case progress <- generation.Progress{Step: i, Total: m.Steps}:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if m.Err != nil {
		return "", m.Err
	}
	return m.Locator, nil
}

// InitializeCalls returns how many times Initialize was called.
func (m *MockGenerator) InitializeCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initCalls
}

// Requests returns the requests passed to Generate, in call order.
func (m *MockGenerator) Requests() []generation.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]generation.Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Close records the call. It never fails.
func (m *MockGenerator) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalls++
	return nil
}

// CloseCalls returns how many times Close was called.
func (m *MockGenerator) CloseCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCalls
}

// NewMockGeneratorWithLocator creates a MockGenerator that succeeds with locator
func NewMockGeneratorWithLocator(locator string) *MockGenerator {
	return &MockGenerator{Locator: locator}
}

// NewMockGeneratorWithError creates a MockGenerator whose Generate fails with err
func NewMockGeneratorWithError(err error) *MockGenerator {
	return &MockGenerator{Err: err}
}

// MockGeneratorThatFailsInit creates a MockGenerator whose Initialize fails
func MockGeneratorThatFailsInit() *MockGenerator {
	return &MockGenerator{InitErr: generation.ErrNotInitialized}
}

// MockPreparer implements generation.RequestPreparer for testing
type MockPreparer struct {
	PrepareFn func(ctx context.Context, req generation.Request) generation.Request
}

// Prepare implements the generation.RequestPreparer interface
func (m *MockPreparer) Prepare(ctx context.Context, req generation.Request) generation.Request {
	if m.PrepareFn != nil {
		return m.PrepareFn(ctx, req)
	}
	return req
}
