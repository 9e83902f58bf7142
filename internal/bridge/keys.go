package bridge

import "sync"

// KeyListeners is a document-level key listener registry.
type KeyListeners struct {
	mu        sync.Mutex
	nextID    int
	listeners map[string]map[int]func()
}

// NewKeyListeners creates an empty registry.
func NewKeyListeners() *KeyListeners {
	return &KeyListeners{listeners: make(map[string]map[int]func())}
}

// Add registers fn for key and returns a function that removes it.
// Calling the remove function more than once is harmless.
func (k *KeyListeners) Add(key string, fn func()) func() {
	k.mu.Lock()
	defer k.mu.Unlock()

	id := k.nextID
	k.nextID++
	if k.listeners[key] == nil {
		k.listeners[key] = make(map[int]func())
	}
	k.listeners[key][id] = fn

	return func() {
		k.mu.Lock()
		defer k.mu.Unlock()
		delete(k.listeners[key], id)
		if len(k.listeners[key]) == 0 {
			delete(k.listeners, key)
		}
	}
}

// Dispatch calls every listener for key and reports whether any ran.
func (k *KeyListeners) Dispatch(key string) bool {
	k.mu.Lock()
	fns := make([]func(), 0, len(k.listeners[key]))
	for _, fn := range k.listeners[key] {
		fns = append(fns, fn)
	}
	k.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
	return len(fns) > 0
}

// Count returns how many listeners are attached for key.
func (k *KeyListeners) Count(key string) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.listeners[key])
}
