package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"document-processor/internal/config"
	"document-processor/internal/models"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
)

// ChunkResultRecord is one archived chunk result. A (file_hash, chunk_index)
// pair is stored once.
type ChunkResultRecord struct {
	bun.BaseModel `bun:"table:chunk_results,alias:cr"`

	ID           int64     `bun:"id,pk,autoincrement"`
	FileHash     string    `bun:"file_hash,notnull,unique:file_chunk"`
	ChunkIndex   int       `bun:"chunk_index,notnull,unique:file_chunk"`
	FilePath     string    `bun:"file_path,notnull"`
	Model        string    `bun:"model,notnull"`
	Response     string    `bun:"response,notnull"`
	InputTokens  int       `bun:"input_tokens,notnull"`
	OutputTokens int       `bun:"output_tokens,notnull"`
	Cost         float64   `bun:"cost,notnull"`
	CompletedAt  time.Time `bun:"completed_at,notnull"`
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens the configured driver. Nothing is dialled until first use.
func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	switch cfg.Driver {
	case "", "pgdriver":
		return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN))), nil
	case "pq":
		return sql.Open("postgres", cfg.DSN)
	}
	return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
}

func InitDB(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().Model((*ChunkResultRecord)(nil)).IfNotExists().Exec(ctx)
	return err
}

// Records converts the results of st into archive rows.
func Records(st *models.ProcessingState) []ChunkResultRecord {
	recs := make([]ChunkResultRecord, 0, len(st.Results))
	for _, r := range st.Results {
		recs = append(recs, ChunkResultRecord{
			FileHash:     st.FileHash,
			ChunkIndex:   r.ChunkIndex,
			FilePath:     st.FilePath,
			Model:        r.Model,
			Response:     r.Response,
			InputTokens:  r.InputTokens,
			OutputTokens: r.OutputTokens,
			Cost:         r.Cost,
			CompletedAt:  r.CompletedAt,
		})
	}
	return recs
}

func insertQuery(db *bun.DB, recs *[]ChunkResultRecord) *bun.InsertQuery {
	return db.NewInsert().Model(recs).On("CONFLICT (file_hash, chunk_index) DO NOTHING")
}

func StoreResults(ctx context.Context, db *bun.DB, recs []ChunkResultRecord) error {
	if len(recs) == 0 {
		return nil
	}
	_, err := insertQuery(db, &recs).Exec(ctx)
	return err
}

// Archive stores completed results in Postgres.
type Archive struct {
	db *bun.DB
}

// OpenArchive connects and creates the table when missing.
func OpenArchive(ctx context.Context, cfg *config.DatabaseConfig) (*Archive, error) {
	sqldb, err := ConnectDB(cfg)
	if err != nil {
		return nil, err
	}
	db := NewDB(sqldb, cfg.Debug)
	if err := InitDB(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init archive: %w", err)
	}
	log.Info().Str("driver", cfg.Driver).Msg("Result archive ready")
	return &Archive{db: db}, nil
}

func (a *Archive) StoreResults(ctx context.Context, st *models.ProcessingState) error {
	recs := Records(st)
	if err := StoreResults(ctx, a.db, recs); err != nil {
		return fmt.Errorf("archive results: %w", err)
	}
	log.Info().Str("hash", st.FileHash).Int("results", len(recs)).Msg("Results archived")
	return nil
}

func (a *Archive) Close() error {
	return a.db.Close()
}
