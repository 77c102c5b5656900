package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/Cotizador-api/internal/domain"
	"github.com/jhoicas/Cotizador-api/internal/domain/entity"
	"github.com/jhoicas/Cotizador-api/internal/domain/repository"
)

var _ repository.QuoteRepository = (*QuoteRepo)(nil)

const quoteColumns = `id, origin_company_id, destination_postal_code, recipient_name, status, failure_reason,
	label_option_id, label_order_id, label_stage, label_url, finalized_at, created_by, created_at, updated_at`

// QuoteRepo cotizaciones, ítems y opciones sobre PostgreSQL.
// Las transiciones de estado son UPDATE condicionales: la BD decide quién gana una carrera.
type QuoteRepo struct {
	q Querier
}

// NewQuoteRepository construye el adaptador. Pasar pool o tx (Querier).
func NewQuoteRepository(q Querier) *QuoteRepo {
	return &QuoteRepo{q: q}
}

func scanQuote(row pgx.Row) (*entity.Quote, error) {
	var q entity.Quote
	var status string
	err := row.Scan(&q.ID, &q.OriginCompanyID, &q.DestinationPostalCode, &q.RecipientName, &status,
		&q.FailureReason, &q.LabelOptionID, &q.LabelOrderID, &q.LabelStage, &q.LabelURL,
		&q.FinalizedAt, &q.CreatedBy, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return nil, err
	}
	q.Status = entity.QuoteStatus(status)
	return &q, nil
}

// Create inserta la cabecera de la cotización.
func (r *QuoteRepo) Create(ctx context.Context, q *entity.Quote) error {
	now := time.Now().UTC()
	if q.CreatedAt.IsZero() {
		q.CreatedAt = now
	}
	q.UpdatedAt = now
	_, err := r.q.Exec(ctx, `
		INSERT INTO quotes (id, origin_company_id, destination_postal_code, recipient_name, status,
		                    failure_reason, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		q.ID, q.OriginCompanyID, q.DestinationPostalCode, q.RecipientName, string(q.Status),
		q.FailureReason, q.CreatedBy, q.CreatedAt, q.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Conflict("cotización %s ya existe", q.ID)
		}
		return fmt.Errorf("insert quote: %w", err)
	}
	return nil
}

// CreateItems inserta los ítems de la cotización.
func (r *QuoteRepo) CreateItems(ctx context.Context, items []entity.QuoteLineItem) error {
	for _, it := range items {
		_, err := r.q.Exec(ctx,
			`INSERT INTO quote_items (quote_id, product_id, quantity) VALUES ($1, $2, $3)`,
			it.QuoteID, it.ProductID, it.Quantity,
		)
		if err != nil {
			return fmt.Errorf("insert quote item: %w", err)
		}
	}
	return nil
}

// GetByID nil, nil si no existe.
func (r *QuoteRepo) GetByID(ctx context.Context, id string) (*entity.Quote, error) {
	return r.get(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE id = $1`, id)
}

// GetForUpdate igual que GetByID pero bloquea la fila hasta el fin de la tx.
func (r *QuoteRepo) GetForUpdate(ctx context.Context, id string) (*entity.Quote, error) {
	return r.get(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE id = $1 FOR UPDATE`, id)
}

func (r *QuoteRepo) get(ctx context.Context, query, id string) (*entity.Quote, error) {
	q, err := scanQuote(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get quote: %w", err)
	}
	return q, nil
}

// List más recientes primero.
func (r *QuoteRepo) List(ctx context.Context, limit, offset int) ([]*entity.Quote, error) {
	rows, err := r.q.Query(ctx,
		`SELECT `+quoteColumns+` FROM quotes ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list quotes: %w", err)
	}
	defer rows.Close()
	var list []*entity.Quote
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan quote: %w", err)
		}
		list = append(list, q)
	}
	return list, rows.Err()
}

// ListItems ítems ordenados por producto.
func (r *QuoteRepo) ListItems(ctx context.Context, quoteID string) ([]entity.QuoteLineItem, error) {
	rows, err := r.q.Query(ctx,
		`SELECT quote_id, product_id, quantity FROM quote_items WHERE quote_id = $1 ORDER BY product_id`,
		quoteID,
	)
	if err != nil {
		return nil, fmt.Errorf("list quote items: %w", err)
	}
	defer rows.Close()
	var list []entity.QuoteLineItem
	for rows.Next() {
		var it entity.QuoteLineItem
		if err := rows.Scan(&it.QuoteID, &it.ProductID, &it.Quantity); err != nil {
			return nil, fmt.Errorf("scan quote item: %w", err)
		}
		list = append(list, it)
	}
	return list, rows.Err()
}

// DeleteItems devuelve cuántas filas borró.
func (r *QuoteRepo) DeleteItems(ctx context.Context, quoteID string) (int64, error) {
	cmd, err := r.q.Exec(ctx, `DELETE FROM quote_items WHERE quote_id = $1`, quoteID)
	if err != nil {
		return 0, fmt.Errorf("delete quote items: %w", err)
	}
	return cmd.RowsAffected(), nil
}

// TransitionStatus UPDATE condicional: solo aplica si el estado actual está en from.
func (r *QuoteRepo) TransitionStatus(ctx context.Context, id string, from []entity.QuoteStatus, to entity.QuoteStatus, reason string) (bool, error) {
	fromStr := make([]string, len(from))
	for i, s := range from {
		fromStr[i] = string(s)
	}
	cmd, err := r.q.Exec(ctx, `
		UPDATE quotes SET status = $3, failure_reason = $4, updated_at = now()
		WHERE id = $1 AND status = ANY($2)`,
		id, fromStr, string(to), reason,
	)
	if err != nil {
		return false, fmt.Errorf("transition quote: %w", err)
	}
	return cmd.RowsAffected() == 1, nil
}

// SaveOptions inserta las opciones devueltas por el agregador.
func (r *QuoteRepo) SaveOptions(ctx context.Context, options []entity.CarrierOption) error {
	for _, o := range options {
		_, err := r.q.Exec(ctx, `
			INSERT INTO quote_options (id, quote_id, external_service_id, carrier_name, service_name, price, lead_time_days, logo_url)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			o.ID, o.QuoteID, o.ExternalServiceID, o.CarrierName, o.ServiceName, o.Price, o.LeadTimeDays, o.LogoURL,
		)
		if err != nil {
			return fmt.Errorf("insert quote option: %w", err)
		}
	}
	return nil
}

const optionColumns = `id, quote_id, external_service_id, carrier_name, service_name, price, lead_time_days, logo_url`

func scanOption(row pgx.Row) (*entity.CarrierOption, error) {
	var o entity.CarrierOption
	if err := row.Scan(&o.ID, &o.QuoteID, &o.ExternalServiceID, &o.CarrierName, &o.ServiceName,
		&o.Price, &o.LeadTimeDays, &o.LogoURL); err != nil {
		return nil, err
	}
	return &o, nil
}

// ListOptions precio ascendente; empate por id.
func (r *QuoteRepo) ListOptions(ctx context.Context, quoteID string) ([]entity.CarrierOption, error) {
	rows, err := r.q.Query(ctx,
		`SELECT `+optionColumns+` FROM quote_options WHERE quote_id = $1 ORDER BY price ASC, id ASC`,
		quoteID,
	)
	if err != nil {
		return nil, fmt.Errorf("list quote options: %w", err)
	}
	defer rows.Close()
	var list []entity.CarrierOption
	for rows.Next() {
		o, err := scanOption(rows)
		if err != nil {
			return nil, fmt.Errorf("scan quote option: %w", err)
		}
		list = append(list, *o)
	}
	return list, rows.Err()
}

// GetOption nil, nil si no existe.
func (r *QuoteRepo) GetOption(ctx context.Context, optionID string) (*entity.CarrierOption, error) {
	o, err := scanOption(r.q.QueryRow(ctx, `SELECT `+optionColumns+` FROM quote_options WHERE id = $1`, optionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get quote option: %w", err)
	}
	return o, nil
}

// SaveLabelProgress guarda la etapa completada del saga de etiqueta.
func (r *QuoteRepo) SaveLabelProgress(ctx context.Context, id, optionID, orderID, stage string) error {
	_, err := r.q.Exec(ctx, `
		UPDATE quotes SET label_option_id = $2, label_order_id = $3, label_stage = $4, updated_at = now()
		WHERE id = $1`,
		id, optionID, orderID, stage,
	)
	if err != nil {
		return fmt.Errorf("save label progress: %w", err)
	}
	return nil
}

// Finalize QUOTED -> FINALIZED. false si otro proceso la borró o ya la finalizó.
func (r *QuoteRepo) Finalize(ctx context.Context, id, labelURL string, at time.Time) (bool, error) {
	cmd, err := r.q.Exec(ctx, `
		UPDATE quotes SET status = $2, label_url = $3, finalized_at = $4, updated_at = $4
		WHERE id = $1 AND status = $5`,
		id, string(entity.QuoteFinalized), labelURL, at, string(entity.QuoteQuoted),
	)
	if err != nil {
		return false, fmt.Errorf("finalize quote: %w", err)
	}
	return cmd.RowsAffected() == 1, nil
}

// Delete borra la cotización; ítems y opciones caen por ON DELETE CASCADE.
func (r *QuoteRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM quotes WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete quote: %w", err)
	}
	return nil
}

// ListStale ids con el estado dado creados antes de olderThan.
func (r *QuoteRepo) ListStale(ctx context.Context, status entity.QuoteStatus, olderThan time.Time) ([]string, error) {
	rows, err := r.q.Query(ctx,
		`SELECT id FROM quotes WHERE status = $1 AND created_at < $2 ORDER BY id`,
		string(status), olderThan,
	)
	if err != nil {
		return nil, fmt.Errorf("list stale quotes: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan stale quote: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
