package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"

	"document-processor/internal/config"
	"document-processor/internal/helper"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
)

var ErrNoCollection = errors.New("collection is not open")

// Document is one indexed item with a precomputed embedding.
type Document struct {
	ID        string
	Content   string
	Metadata  map[string]string
	Embedding []float32
}

// metadata keys
const (
	MetaFileHash   = "file_hash"
	MetaFilePath   = "file_path"
	MetaChunkIndex = "chunk_index"
	MetaModel      = "model"
)

// VectorDBManager wraps a chromem database and one open collection.
type VectorDBManager struct {
	db            *chromem.DB
	collection    *chromem.Collection
	dbPath        string
	compress      bool
	encryptionKey string
	filePath      string
}

const compress = false

// NewVectorDBManager opens a persistent database at cfg.Path, or an in-memory
// one when cfg.InMemory is set.
func NewVectorDBManager(cfg config.IndexConfig) (*VectorDBManager, error) {
	var db *chromem.DB
	if cfg.InMemory {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(cfg.Path, compress)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	return &VectorDBManager{
		db:            db,
		dbPath:        cfg.Path,
		compress:      compress,
		encryptionKey: cfg.EncryptionKey,
		filePath:      filepath.Join(cfg.Path, cfg.Collection+".chromem"),
	}, nil
}

// GetOrCreateCollection opens name. Embeddings are always supplied by the
// caller so no embedding function is registered.
func (m *VectorDBManager) GetOrCreateCollection(name string) (*chromem.Collection, error) {
	c, err := m.db.GetOrCreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %w", err)
	}
	m.collection = c
	return c, nil
}

func (m *VectorDBManager) Count() int {
	if m.collection == nil {
		return 0
	}
	return m.collection.Count()
}

// CreateDocs adds or replaces documents by ID.
func (m *VectorDBManager) CreateDocs(ctx context.Context, docs []Document) error {
	if m.collection == nil {
		return ErrNoCollection
	}
	if len(docs) == 0 {
		return nil
	}
	chromemDocs := make([]chromem.Document, len(docs))
	for i, d := range docs {
		chromemDocs[i] = chromem.Document{
			ID:        d.ID,
			Content:   d.Content,
			Metadata:  d.Metadata,
			Embedding: d.Embedding,
		}
	}
	if err := m.collection.AddDocuments(ctx, chromemDocs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	return nil
}

// Search returns up to topK documents closest to embedding. where filters
// on exact metadata values.
func (m *VectorDBManager) Search(ctx context.Context, embedding []float32, topK int, where map[string]string) ([]chromem.Result, error) {
	if m.collection == nil {
		return nil, ErrNoCollection
	}
	if len(embedding) == 0 {
		return nil, errors.New("query embedding is required")
	}
	n := min(topK, m.collection.Count())
	if n <= 0 {
		return nil, nil
	}

	results, err := m.collection.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: embedding,
		NResults:       n,
		Where:          where,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}
	return results, nil
}

// DeleteFile removes every document indexed for a file hash.
func (m *VectorDBManager) DeleteFile(ctx context.Context, fileHash string) error {
	if m.collection == nil {
		return ErrNoCollection
	}
	return m.collection.Delete(ctx, map[string]string{MetaFileHash: fileHash}, nil)
}

func (m *VectorDBManager) DeleteCollection() error {
	if m.collection == nil {
		return ErrNoCollection
	}
	if err := m.db.DeleteCollection(m.collection.Name); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	m.collection = nil
	return nil
}

// Export writes the open collection to an encrypted file next to the database.
func (m *VectorDBManager) Export() error {
	if m.encryptionKey == "" {
		return errors.New("encryption key is required")
	}
	if m.collection == nil {
		return ErrNoCollection
	}

	log.Debug().
		Str("collection", m.collection.Name).
		Str("file", m.filePath).
		Bool("compress", m.compress).
		Msg("Exporting collection")
	if err := helper.CreateFolder(filepath.Dir(m.filePath)); err != nil {
		return err
	}
	if err := m.db.ExportToFile(m.filePath, m.compress, m.encryptionKey, m.collection.Name); err != nil {
		return fmt.Errorf("failed to export database: %w", err)
	}
	return nil
}

// Import loads the collection previously written by Export.
func (m *VectorDBManager) Import() error {
	if m.collection == nil {
		return ErrNoCollection
	}
	name := m.collection.Name
	if err := m.db.ImportFromFile(m.filePath, m.encryptionKey, name); err != nil {
		return fmt.Errorf("failed to import database: %w", err)
	}
	// the import replaces the collection object
	m.collection = m.db.GetCollection(name, nil)
	return nil
}
