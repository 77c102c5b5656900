package domain

import (
	"errors"
	"fmt"
)

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound          = errors.New("recurso no encontrado")
	ErrInvalidInput      = errors.New("entrada inválida")
	ErrUnauthorized      = errors.New("no autorizado")
	ErrConflict          = errors.New("conflicto con el estado actual")
	ErrInsufficientStock = errors.New("stock insuficiente")
	ErrAggregator        = errors.New("error del agregador de fletes")
)

// Invalid envuelve ErrInvalidInput con el detalle del campo que falló.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// Conflict envuelve ErrConflict con un mensaje legible para el cliente.
func Conflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// InsufficientStockError identifica el primer producto de la canasta sin disponible suficiente.
type InsufficientStockError struct {
	ProductID   string
	ProductName string
	Requested   int64
	Available   int64
}

func (e *InsufficientStockError) Error() string {
	name := e.ProductName
	if name == "" {
		name = e.ProductID
	}
	return fmt.Sprintf("stock insuficiente para %s. Disponible: %d, Solicitado: %d", name, e.Available, e.Requested)
}

// Is permite errors.Is(err, ErrInsufficientStock).
func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

// AggregatorError falla de red, 4xx o 5xx del agregador de fletes.
// Message conserva el texto devuelto por el agregador cuando existe.
type AggregatorError struct {
	Op         string // calculate, cart, checkout, generate, print, status
	StatusCode int    // 0 si no hubo respuesta HTTP
	Message    string
	Err        error
}

func (e *AggregatorError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("agregador %s (HTTP %d): %s", e.Op, e.StatusCode, msg)
	}
	return fmt.Sprintf("agregador %s: %s", e.Op, msg)
}

func (e *AggregatorError) Unwrap() error { return e.Err }

// Is permite errors.Is(err, ErrAggregator).
func (e *AggregatorError) Is(target error) bool { return target == ErrAggregator }
