// Package clock единый источник времени в UTC для всех компонентов.
package clock

import (
	"sync"
	"time"
)

// Clock возвращает текущее время.
type Clock interface {
	Now() time.Time
}

// Real системные часы, всегда UTC.
type Real struct{}

// Now текущее время в UTC.
func (Real) Now() time.Time { return time.Now().UTC() }

// Fake управляемые часы для тестов.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake создает часы, стоящие в момент t.
func NewFake(t time.Time) *Fake {
	return &Fake{now: t.UTC()}
}

// Now текущее время часов.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance сдвигает часы вперед на d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// Set переводит часы на t.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.now = t.UTC()
	f.mu.Unlock()
}
