// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package coordinator_test

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sigil-dev/recall/internal/store"
	recallerr "github.com/sigil-dev/recall/pkg/errors"
)

type fakeConfig struct {
	mu     sync.Mutex
	values map[string]string
	err    error
}

func (f *fakeConfig) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	v, ok := f.values[key]
	if !ok {
		return "", recallerr.New(recallerr.CodeStoreNotFound, "not found")
	}
	return v, nil
}

func (f *fakeConfig) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.values[key] = value
	return nil
}

type fakeHandle struct {
	gen    int64
	config *fakeConfig
	closed atomic.Bool
	closes atomic.Int32
}

func (h *fakeHandle) Path() string              { return "fake.db" }
func (h *fakeHandle) Config() store.ConfigStore { return h.config }
func (h *fakeHandle) Memories() store.MemoryStore {
	return nil
}

func (h *fakeHandle) Vectors(context.Context, string, int) (store.VectorStore, error) {
	return nil, recallerr.New(recallerr.CodeStoreBackendUnsupported, "no vectors in fake")
}

func (h *fakeHandle) Close() error {
	h.closed.Store(true)
	h.closes.Add(1)
	return nil
}

// fakeOpener hands out fresh fakeHandles sharing one config table and
// counts how often it ran.
type fakeOpener struct {
	opens  atomic.Int64
	config *fakeConfig

	mu      sync.Mutex
	gate    chan struct{} // when non-nil, Open blocks until closed
	entered chan struct{}
	fail    error
	handles []*fakeHandle
}

func newFakeOpener() *fakeOpener {
	return &fakeOpener{config: &fakeConfig{values: map[string]string{}}}
}

func (o *fakeOpener) Open(*store.StorageConfig) (store.Handle, error) {
	o.mu.Lock()
	gate, entered, fail := o.gate, o.entered, o.fail
	o.mu.Unlock()

	n := o.opens.Add(1)
	if entered != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
	}
	if gate != nil {
		<-gate
	}
	if fail != nil {
		return nil, fail
	}
	h := &fakeHandle{gen: n, config: o.config}
	o.mu.Lock()
	o.handles = append(o.handles, h)
	o.mu.Unlock()
	return h, nil
}

func (o *fakeOpener) opened() []*fakeHandle {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*fakeHandle(nil), o.handles...)
}

func (o *fakeOpener) block() (release func()) {
	gate := make(chan struct{})
	o.mu.Lock()
	o.gate = gate
	o.entered = make(chan struct{}, 1)
	o.mu.Unlock()
	return func() {
		o.mu.Lock()
		o.gate = nil
		o.mu.Unlock()
		close(gate)
	}
}

func (o *fakeOpener) waitEntered() {
	o.mu.Lock()
	ch := o.entered
	o.mu.Unlock()
	<-ch
}

func (o *fakeOpener) setFail(err error) {
	o.mu.Lock()
	o.fail = err
	o.mu.Unlock()
}

// recordingDependent remembers every handle it was given.
type recordingDependent struct {
	mu      sync.Mutex
	handles []store.Handle
	err     error
}

func (d *recordingDependent) Init(_ context.Context, h store.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handles = append(d.handles, h)
	return d.err
}

func (d *recordingDependent) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.handles)
}

func (d *recordingDependent) last() store.Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.handles) == 0 {
		return nil
	}
	return d.handles[len(d.handles)-1]
}
