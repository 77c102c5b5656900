package inventory

import (
	"context"
	"sort"
	"sync"
)

// ProductLocks arena de bloqueos exclusivos por producto, indexada por product id.
// Serializa reserva/liberación del mismo producto dentro del proceso; entre procesos
// lo garantiza el SELECT ... FOR UPDATE. Los bloqueos se adquieren siempre en orden
// ascendente de id para que dos canastas solapadas no se bloqueen mutuamente.
type ProductLocks struct {
	mu    sync.Mutex
	slots map[string]*lockSlot
}

type lockSlot struct {
	ch   chan struct{}
	refs int
}

// NewProductLocks construye la arena vacía.
func NewProductLocks() *ProductLocks {
	return &ProductLocks{slots: make(map[string]*lockSlot)}
}

// Lock adquiere los bloqueos de ids (deduplicados, orden ascendente).
// Si ctx se cancela durante la espera libera lo ya tomado y devuelve ctx.Err().
func (l *ProductLocks) Lock(ctx context.Context, ids []string) (unlock func(), err error) {
	ordered := uniqueSorted(ids)
	held := make([]heldSlot, 0, len(ordered))
	for _, id := range ordered {
		s := l.ref(id)
		select {
		case s.ch <- struct{}{}:
			held = append(held, heldSlot{id: id, slot: s})
		case <-ctx.Done():
			l.unref(id, s)
			l.releaseAll(held)
			return nil, ctx.Err()
		}
	}
	var once sync.Once
	return func() { once.Do(func() { l.releaseAll(held) }) }, nil
}

type heldSlot struct {
	id   string
	slot *lockSlot
}

func (l *ProductLocks) releaseAll(held []heldSlot) {
	for i := len(held) - 1; i >= 0; i-- {
		<-held[i].slot.ch
		l.unref(held[i].id, held[i].slot)
	}
}

func (l *ProductLocks) ref(id string) *lockSlot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[id]
	if !ok {
		s = &lockSlot{ch: make(chan struct{}, 1)}
		l.slots[id] = s
	}
	s.refs++
	return s
}

func (l *ProductLocks) unref(id string, s *lockSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, id)
	}
}

func uniqueSorted(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
