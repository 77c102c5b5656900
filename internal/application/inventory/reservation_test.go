package inventory_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/Cotizador-api/internal/application/inventory"
	"github.com/jhoicas/Cotizador-api/internal/domain"
	"github.com/jhoicas/Cotizador-api/internal/domain/entity"
	"github.com/jhoicas/Cotizador-api/internal/domain/freight"
	"github.com/jhoicas/Cotizador-api/internal/infrastructure/memory"
)

// ──────────────────────────────────────────────────────────────────────────────
// Helpers de test
// ──────────────────────────────────────────────────────────────────────────────

type fixture struct {
	store    *memory.Store
	ledger   *inventory.StockLedger
	reserver *inventory.ReservationManager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	locks := inventory.NewProductLocks()
	return &fixture{
		store:    store,
		ledger:   inventory.NewStockLedger(store, store.Repos(), locks, nil),
		reserver: inventory.NewReservationManager(store, store.Repos(), locks, nil, nil),
	}
}

// seed crea el producto con entrada inicial de stock.
func (f *fixture) seed(t *testing.T, id string, onHand int64) {
	t.Helper()
	f.store.PutProduct(entity.Product{
		ID:     id,
		Code:   "SKU-" + id,
		Name:   "Producto " + id,
		Height: decimal.NewFromInt(10),
		Width:  decimal.NewFromInt(10),
		Depth:  decimal.NewFromInt(10),
		Weight: decimal.NewFromFloat(0.5),
	})
	if onHand > 0 {
		_, err := f.ledger.AppendMovement(context.Background(), inventory.MovementInput{
			ProductID: id, Direction: entity.MovementIN, Quantity: onHand,
		})
		require.NoError(t, err)
	}
}

func (f *fixture) level(t *testing.T, id string) *entity.StockLevel {
	t.Helper()
	lvl, err := f.ledger.Level(context.Background(), id)
	require.NoError(t, err)
	return lvl
}

func newQuote(id string) *entity.Quote {
	return &entity.Quote{ID: id, OriginCompanyID: "c1", DestinationPostalCode: "01310100", CreatedAt: time.Now().UTC()}
}

// ──────────────────────────────────────────────────────────────────────────────
// Reserve
// ──────────────────────────────────────────────────────────────────────────────

func TestReserve_ExitoIncrementaProvisionadoYCreaCotizacion(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "p1", 10)
	ctx := context.Background()

	err := f.reserver.Reserve(ctx, newQuote("q1"), []freight.BasketLine{{ProductID: "p1", Quantity: 4}})
	require.NoError(t, err)

	lvl := f.level(t, "p1")
	assert.Equal(t, int64(10), lvl.OnHand)
	assert.Equal(t, int64(4), lvl.Provisioned)
	assert.Equal(t, int64(6), lvl.Available())

	q, err := f.store.Repos().Quotes.GetByID(ctx, "q1")
	require.NoError(t, err)
	require.NotNil(t, q)
	assert.Equal(t, entity.QuoteProcessing, q.Status)

	items, err := f.store.Repos().Quotes.ListItems(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, []entity.QuoteLineItem{{QuoteID: "q1", ProductID: "p1", Quantity: 4}}, items)
}

func TestReserve_StockInsuficienteSinEfectos(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "p1", 7)
	f.seed(t, "p2", 2)
	ctx := context.Background()

	err := f.reserver.Reserve(ctx, newQuote("q1"), []freight.BasketLine{
		{ProductID: "p1", Quantity: 5},
		{ProductID: "p2", Quantity: 3},
	})
	require.Error(t, err)
	var insufficient *domain.InsufficientStockError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, "p2", insufficient.ProductID)
	assert.Equal(t, int64(3), insufficient.Requested)
	assert.Equal(t, int64(2), insufficient.Available)
	assert.True(t, errors.Is(err, domain.ErrInsufficientStock))

	// todo o nada: p1 no debe quedar provisionado
	assert.Equal(t, int64(0), f.level(t, "p1").Provisioned)
	q, err := f.store.Repos().Quotes.GetByID(ctx, "q1")
	require.NoError(t, err)
	assert.Nil(t, q, "no debe crearse la cotización")
	assert.Empty(t, f.store.Outbox())
}

func TestReserve_ProductosRepetidosSeSuman(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "p1", 5)

	err := f.reserver.Reserve(context.Background(), newQuote("q1"), []freight.BasketLine{
		{ProductID: "p1", Quantity: 3},
		{ProductID: "p1", Quantity: 3},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInsufficientStock), "3+3 excede 5 aunque cada línea por separado cabe")
}

func TestReserve_Validaciones(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "p1", 5)
	ctx := context.Background()

	tests := []struct {
		name  string
		lines []freight.BasketLine
	}{
		{"canasta vacía", nil},
		{"cantidad cero", []freight.BasketLine{{ProductID: "p1", Quantity: 0}}},
		{"cantidad negativa", []freight.BasketLine{{ProductID: "p1", Quantity: -1}}},
		{"producto inexistente", []freight.BasketLine{{ProductID: "nope", Quantity: 1}}},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.reserver.Reserve(ctx, newQuote(fmt.Sprintf("q%d", i)), tt.lines)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrInvalidInput))
		})
	}
	assert.Equal(t, int64(0), f.level(t, "p1").Provisioned)
}

func TestReserve_ConcurrenteNuncaSobrevende(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "p1", 10)
	ctx := context.Background()

	const workers = 25
	var ok int64
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := f.reserver.Reserve(ctx, newQuote(fmt.Sprintf("q%02d", i)), []freight.BasketLine{{ProductID: "p1", Quantity: 1}})
			if err == nil {
				atomic.AddInt64(&ok, 1)
				return
			}
			assert.True(t, errors.Is(err, domain.ErrInsufficientStock), "error inesperado: %v", err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(10), ok)
	lvl := f.level(t, "p1")
	assert.Equal(t, int64(10), lvl.Provisioned)
	assert.Equal(t, int64(0), lvl.Available())
}

func TestReserve_DosCotizacionesSieteDeSiete(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "p1", 7)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.reserver.Reserve(ctx, newQuote(fmt.Sprintf("q%d", i)), []freight.BasketLine{{ProductID: "p1", Quantity: 7}})
		}(i)
	}
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			failures++
			var insufficient *domain.InsufficientStockError
			require.True(t, errors.As(err, &insufficient))
			assert.Equal(t, int64(0), insufficient.Available)
		}
	}
	assert.Equal(t, 1, failures, "exactamente una de las dos debe fallar")
	assert.Equal(t, int64(7), f.level(t, "p1").Provisioned)
}

func TestReserve_CanastasSolapadasEnOrdenInversoNoSeBloquean(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "a", 100)
	f.seed(t, "b", 100)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			lines := []freight.BasketLine{{ProductID: "a", Quantity: 1}, {ProductID: "b", Quantity: 1}}
			if i%2 == 1 {
				lines[0], lines[1] = lines[1], lines[0]
			}
			assert.NoError(t, f.reserver.Reserve(ctx, newQuote(fmt.Sprintf("q%02d", i)), lines))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int64(20), f.level(t, "a").Provisioned)
	assert.Equal(t, int64(20), f.level(t, "b").Provisioned)
}

// ──────────────────────────────────────────────────────────────────────────────
// Release
// ──────────────────────────────────────────────────────────────────────────────

func TestRelease_DevuelveDisponibleYEsIdempotente(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "p1", 10)
	f.seed(t, "p2", 10)
	ctx := context.Background()
	require.NoError(t, f.reserver.Reserve(ctx, newQuote("q1"), []freight.BasketLine{
		{ProductID: "p1", Quantity: 3},
		{ProductID: "p2", Quantity: 2},
	}))

	released, err := f.reserver.Release(ctx, "q1", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(5), released)
	assert.Equal(t, int64(0), f.level(t, "p1").Provisioned)
	assert.Equal(t, int64(0), f.level(t, "p2").Provisioned)

	released, err = f.reserver.Release(ctx, "q1", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), released, "la segunda liberación no devuelve nada")
	assert.Equal(t, int64(0), f.level(t, "p1").Provisioned)
}

func TestRelease_CotizacionInexistente(t *testing.T) {
	f := newFixture(t)
	_, err := f.reserver.Release(context.Background(), "nope", nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestRelease_FinalizadaSeRechaza(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "p1", 5)
	ctx := context.Background()
	require.NoError(t, f.reserver.Reserve(ctx, newQuote("q1"), []freight.BasketLine{{ProductID: "p1", Quantity: 2}}))
	forceStatus(t, f.store, "q1", entity.QuoteQuoted)
	ok, err := f.store.Repos().Quotes.Finalize(ctx, "q1", "https://label", time.Now())
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.reserver.Release(ctx, "q1", nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConflict))
	assert.Equal(t, int64(2), f.level(t, "p1").Provisioned)
}

func TestRelease_EstadoNoPermitidoNoLibera(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "p1", 5)
	ctx := context.Background()
	require.NoError(t, f.reserver.Reserve(ctx, newQuote("q1"), []freight.BasketLine{{ProductID: "p1", Quantity: 2}}))
	forceStatus(t, f.store, "q1", entity.QuoteQuoted)

	_, err := f.reserver.Release(ctx, "q1", []entity.QuoteStatus{entity.QuoteProcessing}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConflict))
	assert.Equal(t, int64(2), f.level(t, "p1").Provisioned)
}

func TestRelease_HookFallaRevierteTodo(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "p1", 5)
	ctx := context.Background()
	require.NoError(t, f.reserver.Reserve(ctx, newQuote("q1"), []freight.BasketLine{{ProductID: "p1", Quantity: 2}}))

	boom := errors.New("boom")
	_, err := f.reserver.Release(ctx, "q1", nil, func(ctx context.Context, tx inventory.Repos, q *entity.Quote, released []entity.QuoteLineItem) error {
		assert.Len(t, released, 1)
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, int64(2), f.level(t, "p1").Provisioned, "la liberación debe revertirse con el hook")
}

func forceStatus(t *testing.T, store *memory.Store, id string, to entity.QuoteStatus) {
	t.Helper()
	ok, err := store.Repos().Quotes.TransitionStatus(context.Background(), id,
		[]entity.QuoteStatus{entity.QuoteProcessing, entity.QuoteQuoted, entity.QuoteInvalid, entity.QuoteError}, to, "")
	require.NoError(t, err)
	require.True(t, ok)
}
