// Package concurrency provides inter-process synchronization for scratch
// directories, so two regenerate or migrate runs can never share a workdir.
package concurrency

import "github.com/gofrs/flock"

type InterProcessMutex struct {
	mu *flock.Flock
}

func New(path string) *InterProcessMutex {
	return &InterProcessMutex{mu: flock.New(path)}
}

func (m *InterProcessMutex) Lock() error {
	return m.mu.Lock()
}

func (m *InterProcessMutex) Unlock() error {
	return m.mu.Unlock()
}

func (m *InterProcessMutex) TryLock() (bool, error) {
	return m.mu.TryLock()
}
