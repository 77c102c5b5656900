package freight_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/Cotizador-api/internal/application/freight"
	"github.com/jhoicas/Cotizador-api/internal/infrastructure/memory"
)

// recordingLock delega en el candado en memoria y guarda el TTL pedido por llave.
type recordingLock struct {
	inner *memory.LabelLock
	mu    sync.Mutex
	ttls  map[string]time.Duration
}

func (l *recordingLock) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	l.mu.Lock()
	l.ttls[key] = ttl
	l.mu.Unlock()
	return l.inner.Acquire(ctx, key, ttl)
}

func TestLabelLockLease_CubreElPeorCasoDelSaga(t *testing.T) {
	cfg := freight.DefaultConfig()
	// cart, checkout, generate, print y 5 consultas de estado a 15s, más 0.5+1+2+4+4s de espera.
	worst := 9*cfg.CarrierTimeout + 11500*time.Millisecond
	assert.Greater(t, cfg.LabelLockLease(), worst)
	assert.Greater(t, cfg.LabelLockLease(), cfg.LabelLockTTL, "el TTL configurado se queda corto con los timeouts por defecto")

	sinPolling := cfg
	sinPolling.LabelPollAttempts = 0
	assert.Greater(t, sinPolling.LabelLockLease(), 4*cfg.CarrierTimeout+cfg.LabelSettle)

	holgado := cfg
	holgado.LabelLockTTL = time.Hour
	assert.Equal(t, time.Hour, holgado.LabelLockLease(), "un TTL mayor al peor caso se respeta")
}

func TestIssueLabel_TomaElCandadoConElLeaseDerivado(t *testing.T) {
	e := newEnv(t)
	view, option := e.quotedWithOption(t, 2)

	lock := &recordingLock{inner: memory.NewLabelLock(), ttls: map[string]time.Duration{}}
	saga := freight.NewLabelSaga(e.store, e.store.Repos(), e.store.Companies(), e.carrier, lock, nil, nil, e.cfg)

	res, err := saga.IssueLabel(context.Background(), freight.IssueLabelInput{QuoteID: view.Quote.ID, OptionID: option.ID, To: recipient()})
	require.NoError(t, err)
	assert.True(t, res.Finalized)
	assert.Equal(t, e.cfg.LabelLockLease(), lock.ttls["label:"+view.Quote.ID])
}
