package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jhoicas/Cotizador-api/internal/domain"
	"github.com/jhoicas/Cotizador-api/internal/domain/entity"
	"github.com/jhoicas/Cotizador-api/internal/domain/repository"
)

var (
	_ repository.ProductRepository       = (*ProductRepository)(nil)
	_ repository.CompanyRepository       = (*CompanyRepository)(nil)
	_ repository.StockMovementRepository = (*StockMovementRepository)(nil)
	_ repository.QuoteRepository         = (*QuoteRepository)(nil)
	_ repository.OutboxRepository        = (*OutboxRepository)(nil)
)

// ProductRepository implementación en memoria.
type ProductRepository struct{ base }

func (r *ProductRepository) GetByID(ctx context.Context, id string) (*entity.Product, error) {
	var out *entity.Product
	err := r.read(func(st *state) error {
		if p, ok := st.products[id]; ok {
			out = &p
		}
		return nil
	})
	return out, err
}

func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*entity.Product, error) {
	out := make(map[string]*entity.Product, len(ids))
	err := r.read(func(st *state) error {
		for _, id := range ids {
			if p, ok := st.products[id]; ok {
				out[id] = &p
			}
		}
		return nil
	})
	return out, err
}

func (r *ProductRepository) List(ctx context.Context) ([]*entity.Product, error) {
	var out []*entity.Product
	err := r.read(func(st *state) error {
		for _, p := range st.products {
			p := p
			out = append(out, &p)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, err
}

// LockForUpdate: la transacción en memoria ya es exclusiva.
func (r *ProductRepository) LockForUpdate(ctx context.Context, ids []string) (map[string]*entity.Product, error) {
	return r.GetByIDs(ctx, ids)
}

func (r *ProductRepository) AddProvisioned(ctx context.Context, productID string, delta int64) error {
	return r.read(func(st *state) error {
		p, ok := st.products[productID]
		if !ok {
			return fmt.Errorf("%w: producto %s", domain.ErrNotFound, productID)
		}
		p.ProvisionedQuantity += delta
		if p.ProvisionedQuantity < 0 {
			return fmt.Errorf("provisionado negativo para producto %s", productID)
		}
		p.UpdatedAt = time.Now().UTC()
		st.products[productID] = p
		return nil
	})
}

// CompanyRepository implementación en memoria.
type CompanyRepository struct{ base }

func (r *CompanyRepository) GetByID(ctx context.Context, id string) (*entity.Company, error) {
	var out *entity.Company
	err := r.read(func(st *state) error {
		if c, ok := st.companies[id]; ok {
			out = &c
		}
		return nil
	})
	return out, err
}

// StockMovementRepository implementación en memoria.
type StockMovementRepository struct{ base }

func (r *StockMovementRepository) Create(ctx context.Context, m *entity.StockMovement) error {
	return r.read(func(st *state) error {
		if _, ok := st.products[m.ProductID]; !ok {
			return fmt.Errorf("%w: producto %s", domain.ErrNotFound, m.ProductID)
		}
		st.movements = append(st.movements, *m)
		return nil
	})
}

func (r *StockMovementRepository) OnHand(ctx context.Context, productID string) (int64, error) {
	m, err := r.OnHandMany(ctx, []string{productID})
	return m[productID], err
}

func (r *StockMovementRepository) OnHandMany(ctx context.Context, productIDs []string) (map[string]int64, error) {
	want := make(map[string]struct{}, len(productIDs))
	for _, id := range productIDs {
		want[id] = struct{}{}
	}
	out := make(map[string]int64, len(productIDs))
	err := r.read(func(st *state) error {
		for i := range st.movements {
			m := &st.movements[i]
			if _, ok := want[m.ProductID]; ok {
				out[m.ProductID] += m.Signed()
			}
		}
		return nil
	})
	return out, err
}

func (r *StockMovementRepository) ListByProduct(ctx context.Context, productID string, limit, offset int) ([]*entity.StockMovement, error) {
	var all []*entity.StockMovement
	err := r.read(func(st *state) error {
		for i := len(st.movements) - 1; i >= 0; i-- {
			if st.movements[i].ProductID == productID {
				m := st.movements[i]
				all = append(all, &m)
			}
		}
		return nil
	})
	return page(all, limit, offset), err
}

func (r *StockMovementRepository) SettledForQuote(ctx context.Context, quoteID, productID string) (int64, error) {
	var total int64
	err := r.read(func(st *state) error {
		for _, m := range st.movements {
			if m.QuoteID == quoteID && m.ProductID == productID && m.Direction == entity.MovementOUT {
				total += m.Quantity
			}
		}
		return nil
	})
	return total, err
}

// QuoteRepository implementación en memoria.
type QuoteRepository struct{ base }

func (r *QuoteRepository) Create(ctx context.Context, q *entity.Quote) error {
	return r.read(func(st *state) error {
		if _, ok := st.quotes[q.ID]; ok {
			return domain.Conflict("cotización %s ya existe", q.ID)
		}
		now := time.Now().UTC()
		if q.CreatedAt.IsZero() {
			q.CreatedAt = now
		}
		q.UpdatedAt = now
		st.quotes[q.ID] = *q
		return nil
	})
}

func (r *QuoteRepository) CreateItems(ctx context.Context, items []entity.QuoteLineItem) error {
	return r.read(func(st *state) error {
		for _, it := range items {
			if _, ok := st.quotes[it.QuoteID]; !ok {
				return fmt.Errorf("%w: cotización %s", domain.ErrNotFound, it.QuoteID)
			}
			st.items[it.QuoteID] = append(st.items[it.QuoteID], it)
		}
		return nil
	})
}

func (r *QuoteRepository) GetByID(ctx context.Context, id string) (*entity.Quote, error) {
	var out *entity.Quote
	err := r.read(func(st *state) error {
		if q, ok := st.quotes[id]; ok {
			out = &q
		}
		return nil
	})
	return out, err
}

func (r *QuoteRepository) GetForUpdate(ctx context.Context, id string) (*entity.Quote, error) {
	return r.GetByID(ctx, id)
}

func (r *QuoteRepository) List(ctx context.Context, limit, offset int) ([]*entity.Quote, error) {
	var all []*entity.Quote
	err := r.read(func(st *state) error {
		for _, q := range st.quotes {
			q := q
			all = append(all, &q)
		}
		return nil
	})
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	return page(all, limit, offset), err
}

func (r *QuoteRepository) ListItems(ctx context.Context, quoteID string) ([]entity.QuoteLineItem, error) {
	var out []entity.QuoteLineItem
	err := r.read(func(st *state) error {
		out = append(out, st.items[quoteID]...)
		return nil
	})
	return out, err
}

func (r *QuoteRepository) DeleteItems(ctx context.Context, quoteID string) (int64, error) {
	var n int64
	err := r.read(func(st *state) error {
		n = int64(len(st.items[quoteID]))
		delete(st.items, quoteID)
		return nil
	})
	return n, err
}

func (r *QuoteRepository) TransitionStatus(ctx context.Context, id string, from []entity.QuoteStatus, to entity.QuoteStatus, reason string) (bool, error) {
	var applied bool
	err := r.read(func(st *state) error {
		q, ok := st.quotes[id]
		if !ok {
			return nil
		}
		for _, f := range from {
			if q.Status == f {
				q.Status = to
				q.FailureReason = reason
				q.UpdatedAt = time.Now().UTC()
				st.quotes[id] = q
				applied = true
				return nil
			}
		}
		return nil
	})
	return applied, err
}

func (r *QuoteRepository) SaveOptions(ctx context.Context, options []entity.CarrierOption) error {
	return r.read(func(st *state) error {
		for _, o := range options {
			if _, ok := st.quotes[o.QuoteID]; !ok {
				return fmt.Errorf("%w: cotización %s", domain.ErrNotFound, o.QuoteID)
			}
			st.options[o.ID] = o
		}
		return nil
	})
}

func (r *QuoteRepository) ListOptions(ctx context.Context, quoteID string) ([]entity.CarrierOption, error) {
	var out []entity.CarrierOption
	err := r.read(func(st *state) error {
		for _, o := range st.options {
			if o.QuoteID == quoteID {
				out = append(out, o)
			}
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Price.Equal(out[j].Price) {
			return out[i].ID < out[j].ID
		}
		return out[i].Price.LessThan(out[j].Price)
	})
	return out, err
}

func (r *QuoteRepository) GetOption(ctx context.Context, optionID string) (*entity.CarrierOption, error) {
	var out *entity.CarrierOption
	err := r.read(func(st *state) error {
		if o, ok := st.options[optionID]; ok {
			out = &o
		}
		return nil
	})
	return out, err
}

func (r *QuoteRepository) SaveLabelProgress(ctx context.Context, id, optionID, orderID, stage string) error {
	return r.read(func(st *state) error {
		q, ok := st.quotes[id]
		if !ok {
			return nil
		}
		q.LabelOptionID, q.LabelOrderID, q.LabelStage = optionID, orderID, stage
		q.UpdatedAt = time.Now().UTC()
		st.quotes[id] = q
		return nil
	})
}

func (r *QuoteRepository) Finalize(ctx context.Context, id, labelURL string, at time.Time) (bool, error) {
	var applied bool
	err := r.read(func(st *state) error {
		q, ok := st.quotes[id]
		if !ok || q.Status != entity.QuoteQuoted {
			return nil
		}
		q.Status = entity.QuoteFinalized
		q.LabelURL = labelURL
		q.FinalizedAt = &at
		q.UpdatedAt = at
		st.quotes[id] = q
		applied = true
		return nil
	})
	return applied, err
}

func (r *QuoteRepository) Delete(ctx context.Context, id string) error {
	return r.read(func(st *state) error {
		delete(st.quotes, id)
		delete(st.items, id)
		for k, o := range st.options {
			if o.QuoteID == id {
				delete(st.options, k)
			}
		}
		return nil
	})
}

func (r *QuoteRepository) ListStale(ctx context.Context, status entity.QuoteStatus, olderThan time.Time) ([]string, error) {
	var out []string
	err := r.read(func(st *state) error {
		for id, q := range st.quotes {
			if q.Status == status && q.CreatedAt.Before(olderThan) {
				out = append(out, id)
			}
		}
		return nil
	})
	sort.Strings(out)
	return out, err
}

// OutboxRepository implementación en memoria.
type OutboxRepository struct{ base }

func (r *OutboxRepository) Insert(ctx context.Context, msg *entity.OutboxMessage) error {
	return r.read(func(st *state) error {
		st.outbox = append(st.outbox, *msg)
		return nil
	})
}

func (r *OutboxRepository) GetPendingBatch(ctx context.Context, maxRetry, batchSize int) ([]*entity.OutboxMessage, error) {
	var out []*entity.OutboxMessage
	err := r.read(func(st *state) error {
		for _, m := range st.outbox {
			if m.ProcessedAt != nil || m.RetryCount >= maxRetry {
				continue
			}
			m := m
			out = append(out, &m)
			if len(out) == batchSize {
				break
			}
		}
		return nil
	})
	return out, err
}

func (r *OutboxRepository) Save(ctx context.Context, msg *entity.OutboxMessage) error {
	return r.read(func(st *state) error {
		for i := range st.outbox {
			if st.outbox[i].ID == msg.ID {
				st.outbox[i].RetryCount = msg.RetryCount
				if msg.ProcessedAt != nil {
					st.outbox[i].ProcessedAt = msg.ProcessedAt
				}
				return nil
			}
		}
		return fmt.Errorf("%w: mensaje de outbox %s", domain.ErrNotFound, msg.ID)
	})
}

func page[T any](all []T, limit, offset int) []T {
	if offset >= len(all) {
		return nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all
}
