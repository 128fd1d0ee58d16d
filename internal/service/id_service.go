package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/taxdesk/taxdesk-api/internal/models"
	appErrors "github.com/taxdesk/taxdesk-api/pkg/errors"
)

type counterStore interface {
	Next(ctx context.Context, prefix string) (int64, error)
}

// IDService mints the human-readable prefixed identifiers used across the
// portal: ADM/MGR/EMP/CUS account codes, ORD order numbers, SER service
// codes and LEAD lead numbers. Sequences never repeat and gaps are fine.
type IDService struct {
	counters counterStore
	logger   *zap.Logger
}

// NewIDService constructs the service.
func NewIDService(counters counterStore, logger *zap.Logger) *IDService {
	return &IDService{counters: counters, logger: logger}
}

// NextAccountID mints the next account code for a role, e.g. CUS00042.
func (s *IDService) NextAccountID(ctx context.Context, role models.Role) (string, error) {
	prefix := role.Prefix()
	if prefix == "" {
		return "", appErrors.Clone(appErrors.ErrValidation, "unknown account role")
	}
	return s.next(ctx, prefix)
}

// NextOrderID mints the next order number.
func (s *IDService) NextOrderID(ctx context.Context) (string, error) {
	return s.next(ctx, "ORD")
}

// NextServiceID mints the next catalog service code.
func (s *IDService) NextServiceID(ctx context.Context) (string, error) {
	return s.next(ctx, "SER")
}

// NextLeadID mints the next lead number.
func (s *IDService) NextLeadID(ctx context.Context) (string, error) {
	return s.next(ctx, "LEAD")
}

func (s *IDService) next(ctx context.Context, prefix string) (string, error) {
	seq, err := s.counters.Next(ctx, prefix)
	if err != nil {
		s.logger.Error("allocate id", zap.String("prefix", prefix), zap.Error(err))
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to allocate identifier")
	}
	return FormatID(prefix, seq), nil
}

// FormatID renders a prefixed identifier with a zero-padded sequence. Padding
// widens naturally past 99999.
func FormatID(prefix string, seq int64) string {
	return fmt.Sprintf("%s%05d", prefix, seq)
}
