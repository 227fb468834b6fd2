package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/mutation-workflow/internal/application/port"
	"github.com/garyjia/mutation-workflow/internal/domain/entity"
	"github.com/garyjia/mutation-workflow/internal/infrastructure/persistence/sqlite"
)

// DocumentRepository implements port.DocumentRepository
type DocumentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *sql.DB, logger *zap.Logger) port.DocumentRepository {
	return &DocumentRepository{
		db:     db,
		logger: logger,
	}
}

// Upsert stores an artifact, replacing an earlier one of the same type
func (r *DocumentRepository) Upsert(ctx context.Context, doc *entity.DocumentArtifact) error {
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}

	err := sqlite.Conn(ctx, r.db).QueryRowContext(ctx, `
		INSERT INTO document_artifacts (
			request_id, document_type, file_id, size_bytes, page_count, created_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (request_id, document_type) DO UPDATE SET
			file_id = excluded.file_id,
			size_bytes = excluded.size_bytes,
			page_count = excluded.page_count,
			created_at = excluded.created_at
		RETURNING id`,
		doc.RequestID, doc.Type, doc.FileID, doc.SizeBytes, doc.PageCount, utc(doc.CreatedAt),
	).Scan(&doc.ID)
	if err != nil {
		r.logger.Error("Failed to store document",
			zap.String("request_id", doc.RequestID),
			zap.String("document_type", string(doc.Type)),
			zap.Error(err))
		return fmt.Errorf("failed to store document: %w", err)
	}
	return nil
}

// GetByRequestID lists the artifacts generated for a request
func (r *DocumentRepository) GetByRequestID(ctx context.Context, requestID string) ([]*entity.DocumentArtifact, error) {
	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, `
		SELECT id, request_id, document_type, file_id, size_bytes, page_count, created_at
		FROM document_artifacts
		WHERE request_id = ?
		ORDER BY id ASC`, requestID)
	if err != nil {
		r.logger.Error("Failed to list documents", zap.String("request_id", requestID), zap.Error(err))
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*entity.DocumentArtifact
	for rows.Next() {
		var d entity.DocumentArtifact
		if err := rows.Scan(&d.ID, &d.RequestID, &d.Type, &d.FileID, &d.SizeBytes, &d.PageCount, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, &d)
	}
	return docs, rows.Err()
}

var _ port.DocumentRepository = (*DocumentRepository)(nil)
