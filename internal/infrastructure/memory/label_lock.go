package memory

import (
	"context"
	"sync"
	"time"

	"github.com/jhoicas/Cotizador-api/internal/application/ports"
)

var _ ports.LabelLock = (*LabelLock)(nil)

// LabelLock candado en proceso con expiración, para despliegues de una sola instancia.
type LabelLock struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

// NewLabelLock construye el candado.
func NewLabelLock() *LabelLock {
	return &LabelLock{held: make(map[string]time.Time), now: time.Now}
}

func (l *LabelLock) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if exp, ok := l.held[key]; ok && now.Before(exp) {
		return func() {}, false, nil
	}
	exp := now.Add(ttl)
	l.held[key] = exp
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if cur, ok := l.held[key]; ok && cur.Equal(exp) {
				delete(l.held, key)
			}
		})
	}, true, nil
}
