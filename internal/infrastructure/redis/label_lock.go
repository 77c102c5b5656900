// Package redis candado distribuido de emisión de etiquetas.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/jhoicas/Cotizador-api/internal/application/ports"
)

var _ ports.LabelLock = (*LabelLock)(nil)

// releaseScript borra la llave solo si sigue teniendo nuestro token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LabelLock SET NX PX con token; sirve para varias instancias detrás de un balanceador.
type LabelLock struct {
	rdb    goredis.UniversalClient
	prefix string
}

// NewClient abre el cliente y verifica la conexión.
func NewClient(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}

// NewLabelLock construye el candado. prefix separa llaves entre ambientes.
func NewLabelLock(rdb goredis.UniversalClient, prefix string) *LabelLock {
	return &LabelLock{rdb: rdb, prefix: prefix}
}

func (l *LabelLock) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	full := l.prefix + key
	token := uuid.New().String()
	ok, err := l.rdb.SetNX(ctx, full, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis setnx %s: %w", full, err)
	}
	if !ok {
		return func() {}, false, nil
	}
	return func() {
		// la liberación no depende del request: puede haber expirado ya
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(rctx, l.rdb, []string{full}, token).Err()
	}, true, nil
}
