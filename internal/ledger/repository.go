package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/yourusername/debt-tracer/internal/database"
)

// ErrUnknownUser は貸し手か借り手が存在しないときに返ります。
var ErrUnknownUser = errors.New("unknown user")

// Debt は一覧表示用の debt です。両者のユーザー名を含みます。
type Debt struct {
	DebtID       uuid.UUID `json:"debt_id"`
	CreditorID   uuid.UUID `json:"creditor_id"`
	CreditorName string    `json:"creditor_name"`
	DebtorID     uuid.UUID `json:"debtor_id"`
	DebtorName   string    `json:"debtor_name"`
	Amount       float64   `json:"amount"`
	Currency     string    `json:"currency"`
	Description  string    `json:"description"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

// Repository は debts テーブルへのアクセスです。
type Repository struct {
	db database.DBTX
}

// NewRepository は Repository を作成します。
func NewRepository(db database.DBTX) *Repository {
	return &Repository{db: db}
}

// Create は debt を登録し、採番した ID を返します。
func (r *Repository) Create(ctx context.Context, d NewDebt) (uuid.UUID, error) {
	id := uuid.New()
	_, err := r.db.Exec(ctx,
		`INSERT INTO debts (debt_id, creditor_id, debtor_id, amount, currency, description, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, d.CreditorID, d.DebtorID, float64(d.Amount), string(d.Currency), string(d.Description), string(d.Status),
	)
	if err == nil {
		return id, nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
		return uuid.Nil, ErrUnknownUser
	}
	return uuid.Nil, oops.Code("DEBT_INSERT_FAILED").
		With("operation", "insert debt").
		Wrap(err)
}

const listByUserSQL = `SELECT d.debt_id::text, c.user_id::text, c.username, b.user_id::text, b.username,
       d.amount::float8, d.currency, d.description, d.status, d.created_at
  FROM debts d
  JOIN users c ON d.creditor_id = c.user_id
  JOIN users b ON d.debtor_id = b.user_id
 WHERE d.creditor_id = $1 OR d.debtor_id = $1
 ORDER BY d.created_at DESC`

// ListByUser は userID が貸し手または借り手の debt を新しい順に返します。
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]Debt, error) {
	rows, err := r.db.Query(ctx, listByUserSQL, userID)
	if err != nil {
		return nil, oops.Code("DEBT_QUERY_FAILED").With("operation", "list debts").Wrap(err)
	}
	defer rows.Close()

	debts := []Debt{}
	for rows.Next() {
		var (
			d                            Debt
			debtID, creditorID, debtorID string
			status                       string
		)
		if err := rows.Scan(&debtID, &creditorID, &d.CreditorName, &debtorID, &d.DebtorName,
			&d.Amount, &d.Currency, &d.Description, &status, &d.CreatedAt); err != nil {
			return nil, oops.Code("DEBT_QUERY_FAILED").With("operation", "scan debt").Wrap(err)
		}
		if d.DebtID, err = uuid.Parse(debtID); err != nil {
			return nil, oops.Code("DEBT_CORRUPT_ROW").Wrap(err)
		}
		if d.CreditorID, err = uuid.Parse(creditorID); err != nil {
			return nil, oops.Code("DEBT_CORRUPT_ROW").Wrap(err)
		}
		if d.DebtorID, err = uuid.Parse(debtorID); err != nil {
			return nil, oops.Code("DEBT_CORRUPT_ROW").Wrap(err)
		}
		d.Status = Status(status)
		debts = append(debts, d)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("DEBT_QUERY_FAILED").With("operation", "iterate debts").Wrap(err)
	}
	return debts, nil
}
