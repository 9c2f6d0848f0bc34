package maps

import (
	"context"
	"time"

	"go.uber.org/zap"

	"leadcaller/models"
	"leadcaller/utils"
)

// ExtractField reads one field from the surface and appends exactly one
// value to acc: the field's text, or models.NotAvailable when the element is
// missing, slow, or the read fails. It never returns an error.
func ExtractField(ctx context.Context, s Surface, locator string, acc *[]string, timeout time.Duration, logger *utils.Logger) {
	*acc = append(*acc, readOr(ctx, s, locator, timeout, models.NotAvailable, logger))
}

// readOr returns the field text or fallback on any failure.
func readOr(ctx context.Context, s Surface, locator string, timeout time.Duration, fallback string, logger *utils.Logger) string {
	n, err := s.Count(ctx, locator)
	if err != nil {
		logger.Z().Warn("skipping field: count failed", zap.String("locator", locator), zap.Error(err))
		return fallback
	}
	if n == 0 {
		return fallback
	}

	text, err := s.Text(ctx, locator, timeout)
	if err != nil {
		logger.Z().Warn("skipping field: read failed", zap.String("locator", locator), zap.Error(err))
		return fallback
	}
	return text
}
