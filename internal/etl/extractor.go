// Package etl extracts training records from the compliance database and
// turns them into labelled feature matrices.
package etl

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Aidin1998/modelserver/pkg/models"
)

// Extraction queries. Each returns at most the 10000 newest rows.
const (
	complianceQuery = "SELECT * FROM compliance_records ORDER BY created_at DESC LIMIT 10000"
	regulatoryQuery = "SELECT * FROM compliance_records WHERE regulation_id IS NOT NULL ORDER BY created_at DESC LIMIT 10000"
	userQuery       = "SELECT * FROM users ORDER BY created_at DESC LIMIT 10000"
)

// Extractor reads raw training records. Extraction never fails: an
// unreachable or broken source yields no records, and training then
// bootstraps from synthetic data.
type Extractor interface {
	ExtractComplianceData(ctx context.Context) []models.Record
	ExtractRegulatoryData(ctx context.Context) []models.Record
	ExtractUserData(ctx context.Context) []models.Record
}

// NopExtractor is used when no database is configured.
type NopExtractor struct{}

func (NopExtractor) ExtractComplianceData(context.Context) []models.Record { return nil }
func (NopExtractor) ExtractRegulatoryData(context.Context) []models.Record { return nil }
func (NopExtractor) ExtractUserData(context.Context) []models.Record       { return nil }

// GormExtractor runs the extraction queries through gorm.
type GormExtractor struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewGormExtractor(db *gorm.DB, logger *zap.Logger) *GormExtractor {
	return &GormExtractor{db: db, logger: logger.Named("etl")}
}

func (e *GormExtractor) ExtractComplianceData(ctx context.Context) []models.Record {
	return e.query(ctx, "compliance", complianceQuery)
}

func (e *GormExtractor) ExtractRegulatoryData(ctx context.Context) []models.Record {
	return e.query(ctx, "regulatory", regulatoryQuery)
}

func (e *GormExtractor) ExtractUserData(ctx context.Context) []models.Record {
	return e.query(ctx, "user", userQuery)
}

func (e *GormExtractor) query(ctx context.Context, dataset, sql string) []models.Record {
	var rows []map[string]any
	if err := e.db.WithContext(ctx).Raw(sql).Scan(&rows).Error; err != nil {
		e.logger.Warn("Could not extract data", zap.String("dataset", dataset), zap.Error(err))
		return nil
	}
	out := make([]models.Record, len(rows))
	for i, row := range rows {
		out[i] = models.Record(row)
	}
	e.logger.Debug("Extracted records", zap.String("dataset", dataset), zap.Int("count", len(out)))
	return out
}
