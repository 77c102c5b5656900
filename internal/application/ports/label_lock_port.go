package ports

import (
	"context"
	"time"
)

// LabelLock evita dos sagas de etiqueta simultáneos sobre la misma cotización.
// No se usa para excluir la cancelación: esa se resuelve revalidando el estado en cada paso.
type LabelLock interface {
	// Acquire devuelve ok=false si otra emisión tiene la llave. release es idempotente.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}
