package mysql

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"fraudpulse/internal/application"
	"fraudpulse/internal/domain"

	_ "github.com/go-sql-driver/mysql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(dsn string) (*Repository, error) {
	if dsn == "" {
		return nil, errors.New("db dsn is required")
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetMaxOpenConns(10)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repository{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS transactions (
		id BIGINT NOT NULL,
		df_idx BIGINT NOT NULL,
		time DOUBLE NOT NULL,
		amount DOUBLE NOT NULL,
		is_fraud TINYINT(1) NOT NULL,
		risk_level VARCHAR(16) NOT NULL,
		combined_confidence DOUBLE NOT NULL,
		recommendation VARCHAR(16) NOT NULL,
		if_label VARCHAR(32) NOT NULL,
		ae_label VARCHAR(32) NOT NULL,
		received_at BIGINT NOT NULL,
		PRIMARY KEY (id),
		KEY transactions_risk_idx (risk_level, id)
	)`)
	return err
}

func (r *Repository) StoreTransactions(ctx context.Context, txs []domain.ScoredTransaction) error {
	if len(txs) == 0 {
		return nil
	}
	ctx, span := startDBSpan(ctx, "mysql.StoreTransactions", attribute.Int("transaction.count", len(txs)))
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	placeholders := make([]string, 0, len(txs))
	args := make([]any, 0, len(txs)*11)
	receivedAt := time.Now().Unix()
	for _, row := range txs {
		placeholders = append(placeholders, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args, row.ID, row.DFIdx, row.Time, row.Amount, row.IsFraud, string(row.RiskLevel),
			row.CombinedConfidence, string(row.Recommendation), row.IFLabel, row.AELabel, receivedAt)
	}
	query := `INSERT IGNORE INTO transactions (id, df_idx, time, amount, is_fraud, risk_level, combined_confidence, recommendation, if_label, ae_label, received_at)
		VALUES ` + strings.Join(placeholders, ", ")
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		recordSpanError(span, err)
		return err
	}
	return nil
}

func (r *Repository) QueryTransactions(ctx context.Context, filter application.ArchiveQueryFilter) ([]domain.ScoredTransaction, error) {
	ctx, span := startDBSpan(ctx, "mysql.QueryTransactions", attribute.Int64("since_id", filter.SinceID))
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `SELECT id, df_idx, time, amount, is_fraud, risk_level, combined_confidence, recommendation, if_label, ae_label
		FROM transactions WHERE id > ?`
	args := []any{filter.SinceID}
	if filter.RiskLevel != "" {
		query += " AND risk_level = ?"
		args = append(args, string(filter.RiskLevel))
	}
	query += " ORDER BY id ASC LIMIT ?"
	args = append(args, application.NormalizeLimit(filter.Limit, application.DefaultArchiveLimit, application.MaxArchiveLimit))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	defer rows.Close()

	var out []domain.ScoredTransaction
	for rows.Next() {
		var row domain.ScoredTransaction
		var risk, recommendation string
		if err := rows.Scan(&row.ID, &row.DFIdx, &row.Time, &row.Amount, &row.IsFraud, &risk,
			&row.CombinedConfidence, &recommendation, &row.IFLabel, &row.AELabel); err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		row.RiskLevel = domain.RiskLevel(risk)
		row.Recommendation = domain.Recommendation(recommendation)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return out, nil
}

func (r *Repository) LatestID(ctx context.Context) (int64, bool, error) {
	var latest sql.NullInt64
	if err := r.db.QueryRowContext(ctx, `SELECT MAX(id) FROM transactions`).Scan(&latest); err != nil {
		return 0, false, err
	}
	return latest.Int64, latest.Valid, nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func startDBSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("db.system", "mysql"))
	return otel.Tracer("fraudpulse/mysql").Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(attrs...))
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
