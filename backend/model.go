package main

import (
	"bytes"
	"io"
	"sync"

	"golang.org/x/exp/rand"
)

// Model owns the shared network state. The trainer is the single writer;
// move-request evaluation takes shared read access, so a forward pass can
// never observe a half-applied weight update.
type Model struct {
	mu   sync.RWMutex
	net  *Network
	seed uint64

	statePool sync.Pool
}

func NewModel(seed uint64) *Model {
	m := &Model{
		net:  NewNetwork(rand.New(rand.NewSource(seed))),
		seed: seed,
	}
	m.statePool.New = func() any { return newForwardState() }
	return m
}

// Evaluate runs a forward pass and returns a score in [-1, 1] from White's
// perspective. Safe to call concurrently.
func (m *Model) Evaluate(features []float64) float64 {
	fs := m.statePool.Get().(*forwardState)
	m.mu.RLock()
	score := m.net.forward(fs, features)
	m.mu.RUnlock()
	m.statePool.Put(fs)
	return score
}

// TrainStep applies one gradient update toward target and returns the loss.
func (m *Model) TrainStep(features []float64, target float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.net.TrainStep(features, target)
}

// Snapshot serializes the current weights while holding read access, so a
// concurrent train step cannot tear the serialized state.
func (m *Model) Snapshot() ([]byte, error) {
	var buf bytes.Buffer
	m.mu.RLock()
	err := m.net.Encode(&buf)
	m.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Restore replaces the weights with a serialized snapshot. The current
// network is untouched if decoding fails.
func (m *Model) Restore(r io.Reader) error {
	fresh := NewNetwork(rand.New(rand.NewSource(m.seed)))
	if err := fresh.Decode(r); err != nil {
		return err
	}
	m.mu.Lock()
	m.net = fresh
	m.mu.Unlock()
	return nil
}
