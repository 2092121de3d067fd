package service

import (
	"context"
	"time"

	"wallet-service/internal/core/domain"
	"wallet-service/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// auditService implements ports.AuditService. Writes are best-effort:
// a failed audit insert is logged and never fails the audited operation.
type auditService struct {
	repo ports.AuditRepository
	log  zerolog.Logger
}

// NewAuditService creates a new audit service.
func NewAuditService(repo ports.AuditRepository, log zerolog.Logger) ports.AuditService {
	return &auditService{repo: repo, log: log}
}

// Record persists an audit log entry.
func (s *auditService) Record(ctx context.Context, entry domain.AuditLog) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	if err := s.repo.Create(ctx, &entry); err != nil {
		s.log.Warn().Err(err).
			Str("action", string(entry.Action)).
			Str("resource_id", entry.ResourceID).
			Msg("audit log write failed")
	}
}
