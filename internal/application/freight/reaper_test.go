package freight_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/Cotizador-api/internal/domain/entity"
	domfreight "github.com/jhoicas/Cotizador-api/internal/domain/freight"
)

func TestStaleQuoteReaper_PasaAErrorYLibera(t *testing.T) {
	e := newEnv(t)
	e.product(t, "p1", 10)
	ctx := context.Background()

	old := &entity.Quote{ID: "q-old", OriginCompanyID: "c1", DestinationPostalCode: "20040020", CreatedAt: time.Now().UTC().Add(-time.Hour)}
	fresh := &entity.Quote{ID: "q-new", OriginCompanyID: "c1", DestinationPostalCode: "20040020", CreatedAt: time.Now().UTC()}
	require.NoError(t, e.reservations.Reserve(ctx, old, []domfreight.BasketLine{{ProductID: "p1", Quantity: 3}}))
	require.NoError(t, e.reservations.Reserve(ctx, fresh, []domfreight.BasketLine{{ProductID: "p1", Quantity: 2}}))

	n, err := e.reaper.ReapOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int64(2), e.level(t, "p1").Provisioned)

	got, err := e.queries.Get(ctx, "q-old")
	require.NoError(t, err)
	assert.Equal(t, entity.QuoteError, got.Quote.Status)

	got, err = e.queries.Get(ctx, "q-new")
	require.NoError(t, err)
	assert.Equal(t, entity.QuoteProcessing, got.Quote.Status)

	n, err = e.reaper.ReapOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
