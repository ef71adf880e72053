package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/storefront/backend/internal/infrastructure/config"
)

const defaultSlowQuery = 200 * time.Millisecond

type queryStartKey struct{}

// dbInstrumentation times every GORM statement, records the duration
// histogram and flags slow queries on the active span and in the log
type dbInstrumentation struct {
	duration metric.Float64Histogram
	slow     time.Duration
	logger   *zap.Logger
}

// InstrumentDB installs otelgorm tracing (when enabled) and query timing.
// meter may come from a disabled Providers, in which case the histogram
// is a no-op.
func InstrumentDB(db *gorm.DB, cfg config.TelemetryConfig, meter metric.Meter, logger *zap.Logger) error {
	if cfg.Enabled && cfg.DBTraceEnabled {
		opts := []otelgorm.Option{otelgorm.WithDBName("postgresql")}
		if !cfg.DBLogFullSQL {
			opts = append(opts, otelgorm.WithoutQueryVariables())
		}
		if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
			return err
		}
	}

	duration, err := meter.Float64Histogram("db.query.duration",
		metric.WithDescription("Duration of database statements"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}
	inst := &dbInstrumentation{duration: duration, slow: cfg.DBSlowQueryThresh, logger: logger.Named("db")}
	if inst.slow <= 0 {
		inst.slow = defaultSlowQuery
	}
	return inst.register(db)
}

func (d *dbInstrumentation) register(db *gorm.DB) error {
	cb := db.Callback()
	registrations := []error{
		cb.Create().Before("gorm:create").Register("telemetry:before_create", d.start),
		cb.Create().After("gorm:create").Register("telemetry:after_create", d.finish("create")),
		cb.Query().Before("gorm:query").Register("telemetry:before_query", d.start),
		cb.Query().After("gorm:query").Register("telemetry:after_query", d.finish("query")),
		cb.Update().Before("gorm:update").Register("telemetry:before_update", d.start),
		cb.Update().After("gorm:update").Register("telemetry:after_update", d.finish("update")),
		cb.Delete().Before("gorm:delete").Register("telemetry:before_delete", d.start),
		cb.Delete().After("gorm:delete").Register("telemetry:after_delete", d.finish("delete")),
		cb.Row().Before("gorm:row").Register("telemetry:before_row", d.start),
		cb.Row().After("gorm:row").Register("telemetry:after_row", d.finish("row")),
		cb.Raw().Before("gorm:raw").Register("telemetry:before_raw", d.start),
		cb.Raw().After("gorm:raw").Register("telemetry:after_raw", d.finish("raw")),
	}
	return errors.Join(registrations...)
}

func (d *dbInstrumentation) start(db *gorm.DB) {
	if db.Statement.Context != nil {
		db.Statement.Context = context.WithValue(db.Statement.Context, queryStartKey{}, time.Now())
	}
}

func (d *dbInstrumentation) finish(op string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		ctx := db.Statement.Context
		if ctx == nil {
			return
		}
		started, ok := ctx.Value(queryStartKey{}).(time.Time)
		if !ok {
			return
		}
		elapsed := time.Since(started)
		failed := db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound)

		d.duration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
			attribute.String("db.operation", op),
			attribute.String("db.table", db.Statement.Table),
			attribute.Bool("error", failed),
		))

		if elapsed < d.slow {
			return
		}
		span := trace.SpanFromContext(ctx)
		if span.IsRecording() {
			span.SetAttributes(attribute.Bool("db.slow_query", true), attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()))
		}
		d.logger.Warn("Slow query",
			zap.String("operation", op),
			zap.String("table", db.Statement.Table),
			zap.Duration("elapsed", elapsed),
			zap.Duration("threshold", d.slow),
		)
	}
}
