package telemetry

import (
	"fmt"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// InstrumentDB registers the otelgorm plugin so every query gets a span. Query
// variables are never recorded. It does nothing when telemetry is disabled.
func InstrumentDB(db *gorm.DB, cfg Config, dbSystem string, logger *zap.Logger) error {
	if !cfg.Enabled {
		return nil
	}

	if err := db.Use(otelgorm.NewPlugin(
		otelgorm.WithDBName(dbSystem),
		otelgorm.WithoutQueryVariables(),
	)); err != nil {
		return fmt.Errorf("failed to register otelgorm plugin: %w", err)
	}

	logger.Debug("Database tracing enabled", zap.String("db_system", dbSystem))
	return nil
}
