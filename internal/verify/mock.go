package verify

import (
	"context"
	"io"
	"sync"
)

// MockRuntime is a test double for Runtime. Each method delegates to
// the corresponding func field when set and records its invocation.
type MockRuntime struct {
	mu sync.Mutex

	PingFunc        func(ctx context.Context) error
	EnsureImageFunc func(ctx context.Context, image string) error
	CreateFunc      func(ctx context.Context, spec ContainerSpec) (string, error)
	ExecFunc        func(ctx context.Context, containerID, command string, w io.Writer) (int, error)
	DestroyFunc     func(containerID string) error

	PingCalls int
	Pulled    []string
	Created   []ContainerSpec
	Executed  []string
	Destroyed []string
}

func (m *MockRuntime) Ping(ctx context.Context) error {
	m.mu.Lock()
	m.PingCalls++
	m.mu.Unlock()
	if m.PingFunc != nil {
		return m.PingFunc(ctx)
	}
	return nil
}

func (m *MockRuntime) EnsureImage(ctx context.Context, image string) error {
	m.mu.Lock()
	m.Pulled = append(m.Pulled, image)
	m.mu.Unlock()
	if m.EnsureImageFunc != nil {
		return m.EnsureImageFunc(ctx, image)
	}
	return nil
}

func (m *MockRuntime) Create(ctx context.Context, spec ContainerSpec) (string, error) {
	m.mu.Lock()
	m.Created = append(m.Created, spec)
	m.mu.Unlock()
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, spec)
	}
	return "mock-container", nil
}

func (m *MockRuntime) Exec(ctx context.Context, containerID, command string, w io.Writer) (int, error) {
	m.mu.Lock()
	m.Executed = append(m.Executed, command)
	m.mu.Unlock()
	if m.ExecFunc != nil {
		return m.ExecFunc(ctx, containerID, command, w)
	}
	return 0, nil
}

func (m *MockRuntime) Destroy(containerID string) error {
	m.mu.Lock()
	m.Destroyed = append(m.Destroyed, containerID)
	m.mu.Unlock()
	if m.DestroyFunc != nil {
		return m.DestroyFunc(containerID)
	}
	return nil
}
