package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fraudpulse/internal/application"
	"fraudpulse/internal/domain"

	_ "modernc.org/sqlite"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(dbPath string) (*Repository, error) {
	if dbPath == "" {
		return nil, errors.New("db path is required")
	}
	if !strings.HasPrefix(dbPath, ":memory:") && !strings.HasPrefix(dbPath, "file:") {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create archive directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// one writer; also keeps a :memory: database on a single connection
	db.SetMaxOpenConns(1)
	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repository{db: db}, nil
}

func createSchema(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS transactions (
			id INTEGER PRIMARY KEY,
			df_idx INTEGER NOT NULL,
			time REAL NOT NULL,
			amount REAL NOT NULL,
			is_fraud INTEGER NOT NULL,
			risk_level TEXT NOT NULL,
			combined_confidence REAL NOT NULL,
			recommendation TEXT NOT NULL,
			if_label TEXT NOT NULL,
			ae_label TEXT NOT NULL,
			received_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS transactions_risk_idx ON transactions (risk_level, id)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) StoreTransactions(ctx context.Context, txs []domain.ScoredTransaction) error {
	if len(txs) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO transactions (id, df_idx, time, amount, is_fraud, risk_level, combined_confidence, recommendation, if_label, ae_label, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	receivedAt := time.Now().Unix()
	for _, row := range txs {
		if _, err := stmt.ExecContext(ctx, row.ID, row.DFIdx, row.Time, row.Amount, row.IsFraud, string(row.RiskLevel),
			row.CombinedConfidence, string(row.Recommendation), row.IFLabel, row.AELabel, receivedAt); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

func (r *Repository) QueryTransactions(ctx context.Context, filter application.ArchiveQueryFilter) ([]domain.ScoredTransaction, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	clauses := []string{"id > ?"}
	args := []any{filter.SinceID}
	if filter.RiskLevel != "" {
		clauses = append(clauses, "risk_level = ?")
		args = append(args, string(filter.RiskLevel))
	}
	query := `SELECT id, df_idx, time, amount, is_fraud, risk_level, combined_confidence, recommendation, if_label, ae_label
		FROM transactions WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY id ASC LIMIT ?`
	args = append(args, application.NormalizeLimit(filter.Limit, application.DefaultArchiveLimit, application.MaxArchiveLimit))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ScoredTransaction
	for rows.Next() {
		var row domain.ScoredTransaction
		var risk, recommendation string
		if err := rows.Scan(&row.ID, &row.DFIdx, &row.Time, &row.Amount, &row.IsFraud, &risk,
			&row.CombinedConfidence, &recommendation, &row.IFLabel, &row.AELabel); err != nil {
			return nil, err
		}
		row.RiskLevel = domain.RiskLevel(risk)
		row.Recommendation = domain.Recommendation(recommendation)
		out = append(out, row)
	}
	return out, rows.Err()
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
