// Package memory implementa los repositorios y el TxRunner sobre un estado en memoria.
// Se usa en tests y en modo desarrollo sin base de datos (DB_DRIVER=memory).
package memory

import (
	"context"
	"sync"

	"github.com/jhoicas/Cotizador-api/internal/application/inventory"
	"github.com/jhoicas/Cotizador-api/internal/domain/entity"
)

var _ inventory.TxRunner = (*Store)(nil)

type state struct {
	products  map[string]entity.Product
	companies map[string]entity.Company
	movements []entity.StockMovement
	quotes    map[string]entity.Quote
	items     map[string][]entity.QuoteLineItem
	options   map[string]entity.CarrierOption
	outbox    []entity.OutboxMessage
}

func newState() *state {
	return &state{
		products:  make(map[string]entity.Product),
		companies: make(map[string]entity.Company),
		quotes:    make(map[string]entity.Quote),
		items:     make(map[string][]entity.QuoteLineItem),
		options:   make(map[string]entity.CarrierOption),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.companies {
		c.companies[k] = v
	}
	c.movements = append(c.movements, s.movements...)
	for k, v := range s.quotes {
		c.quotes[k] = v
	}
	for k, v := range s.items {
		c.items[k] = append([]entity.QuoteLineItem(nil), v...)
	}
	for k, v := range s.options {
		c.options[k] = v
	}
	for _, m := range s.outbox {
		m.Payload = append([]byte(nil), m.Payload...)
		c.outbox = append(c.outbox, m)
	}
	return c
}

// Store estado compartido. Una transacción toma el mutex global, trabaja sobre una copia
// y la publica solo si fn no devuelve error.
type Store struct {
	mu sync.Mutex
	st *state
}

// NewStore crea un store vacío.
func NewStore() *Store {
	return &Store{st: newState()}
}

// Repos repositorios fuera de transacción.
func (s *Store) Repos() inventory.Repos {
	return reposFor(s, nil)
}

// Companies repositorio de empresas.
func (s *Store) Companies() *CompanyRepository {
	return &CompanyRepository{base{store: s}}
}

// Run ejecuta fn con repositorios atados a una copia del estado. No reentrante:
// dentro de fn solo deben usarse los repos recibidos.
func (s *Store) Run(ctx context.Context, fn func(tx inventory.Repos) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.st.clone()
	if err := fn(reposFor(s, work)); err != nil {
		return err
	}
	s.st = work
	return nil
}

// PutProduct alta o reemplazo de un producto (seed y tests).
func (s *Store) PutProduct(p entity.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.products[p.ID] = p
}

// PutCompany alta o reemplazo de una empresa (seed y tests).
func (s *Store) PutCompany(c entity.Company) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.companies[c.ID] = c
}

// Outbox copia de los mensajes del outbox, en orden de inserción.
func (s *Store) Outbox() []entity.OutboxMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entity.OutboxMessage(nil), s.st.outbox...)
}

func reposFor(s *Store, tx *state) inventory.Repos {
	b := base{store: s, tx: tx}
	return inventory.Repos{
		Products:  &ProductRepository{b},
		Movements: &StockMovementRepository{b},
		Quotes:    &QuoteRepository{b},
		Outbox:    &OutboxRepository{b},
	}
}

type base struct {
	store *Store
	tx    *state
}

func (b base) read(fn func(st *state) error) error {
	if b.tx != nil {
		return fn(b.tx)
	}
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	return fn(b.store.st)
}
