package telemetry

import (
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// InstrumentDB registers the otelgorm plugin so ledger, mapping and cursor
// queries appear as child spans of the sync run that issued them. Query
// variables are left out of the spans.
func InstrumentDB(db *gorm.DB, driver string, logger *zap.Logger) error {
	system := "postgresql"
	if driver == "sqlite" {
		system = "sqlite"
	}

	if err := db.Use(otelgorm.NewPlugin(
		otelgorm.WithDBName(system),
		otelgorm.WithoutQueryVariables(),
	)); err != nil {
		return err
	}

	logger.Debug("Database tracing enabled", zap.String("db_system", system))
	return nil
}
