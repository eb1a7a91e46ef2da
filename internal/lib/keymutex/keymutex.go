// Package keymutex сериализует операции по ключу, не блокируя разные ключи.
package keymutex

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// KeyMutex набор мьютексов по ключу. Запись удаляется, когда ее никто не держит.
type KeyMutex[K comparable] struct {
	mu    sync.Mutex
	locks map[K]*entry
}

// New создает пустой KeyMutex.
func New[K comparable]() *KeyMutex[K] {
	return &KeyMutex[K]{locks: make(map[K]*entry)}
}

// Lock захватывает мьютекс ключа и возвращает функцию освобождения.
func (m *KeyMutex[K]) Lock(key K) (unlock func()) {
	m.mu.Lock()
	e, ok := m.locks[key]
	if !ok {
		e = &entry{}
		m.locks[key] = e
	}
	e.refs++
	m.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		m.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(m.locks, key)
		}
		m.mu.Unlock()
	}
}

// Len число ключей, которые сейчас захвачены или ожидают.
func (m *KeyMutex[K]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
