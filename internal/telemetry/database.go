package telemetry

import (
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/br0z1/social-media-app/internal/metrics"
)

const (
	dbSystemKey    = "db.system"
	dbTableKey     = "db.table"
	dbOperationKey = "db.operation"
	dbStatementKey = "db.statement"

	maxStatementLen = 500
)

// GORMTracingPlugin returns a GORM plugin that traces database operations
func GORMTracingPlugin() gorm.Plugin {
	return &tracingPlugin{tracer: otel.Tracer("gorm")}
}

type tracingPlugin struct {
	tracer trace.Tracer
	system string
}

func (p *tracingPlugin) Name() string {
	return "telemetry:tracing"
}

func (p *tracingPlugin) Initialize(db *gorm.DB) error {
	p.system = dbSystem(db.Dialector.Name())

	cbs := db.Callback()
	if err := cbs.Query().Before("gorm:query").Register("telemetry:before_query", p.starter("SELECT")); err != nil {
		return fmt.Errorf("failed to register before_query callback: %w", err)
	}
	if err := cbs.Create().Before("gorm:create").Register("telemetry:before_create", p.starter("INSERT")); err != nil {
		return fmt.Errorf("failed to register before_create callback: %w", err)
	}
	if err := cbs.Update().Before("gorm:update").Register("telemetry:before_update", p.starter("UPDATE")); err != nil {
		return fmt.Errorf("failed to register before_update callback: %w", err)
	}
	if err := cbs.Delete().Before("gorm:delete").Register("telemetry:before_delete", p.starter("DELETE")); err != nil {
		return fmt.Errorf("failed to register before_delete callback: %w", err)
	}
	if err := cbs.Row().Before("gorm:row").Register("telemetry:before_row", p.starter("SELECT")); err != nil {
		return fmt.Errorf("failed to register before_row callback: %w", err)
	}

	if err := cbs.Query().After("gorm:query").Register("telemetry:after_query", p.finish); err != nil {
		return fmt.Errorf("failed to register after_query callback: %w", err)
	}
	if err := cbs.Create().After("gorm:create").Register("telemetry:after_create", p.finish); err != nil {
		return fmt.Errorf("failed to register after_create callback: %w", err)
	}
	if err := cbs.Update().After("gorm:update").Register("telemetry:after_update", p.finish); err != nil {
		return fmt.Errorf("failed to register after_update callback: %w", err)
	}
	if err := cbs.Delete().After("gorm:delete").Register("telemetry:after_delete", p.finish); err != nil {
		return fmt.Errorf("failed to register after_delete callback: %w", err)
	}
	if err := cbs.Row().After("gorm:row").Register("telemetry:after_row", p.finish); err != nil {
		return fmt.Errorf("failed to register after_row callback: %w", err)
	}

	return nil
}

func dbSystem(dialect string) string {
	switch dialect {
	case "postgres":
		return "postgresql"
	case "":
		return "unknown"
	default:
		return dialect
	}
}

func (p *tracingPlugin) starter(operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		ctx := db.Statement.Context
		if ctx == nil {
			return
		}

		table := db.Statement.Table
		if table == "" {
			table = "unknown"
		}

		_, span := p.tracer.Start(ctx, "db."+strings.ToLower(operation),
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				attribute.String(dbSystemKey, p.system),
				attribute.String(dbTableKey, table),
				attribute.String(dbOperationKey, operation),
			),
		)

		db.InstanceSet("otel:span", span)
		db.InstanceSet("otel:startTime", time.Now())
		db.InstanceSet("otel:operation", operation)
		db.InstanceSet("otel:table", table)
	}
}

func (p *tracingPlugin) finish(db *gorm.DB) {
	spanRaw, exists := db.InstanceGet("otel:span")
	if !exists {
		return
	}
	span, ok := spanRaw.(trace.Span)
	if !ok {
		return
	}
	defer span.End()

	if startRaw, exists := db.InstanceGet("otel:startTime"); exists {
		if start, ok := startRaw.(time.Time); ok {
			elapsed := time.Since(start)
			span.SetAttributes(attribute.Int64("db.duration_ms", elapsed.Milliseconds()))

			operation, _ := db.InstanceGet("otel:operation")
			table, _ := db.InstanceGet("otel:table")
			op, _ := operation.(string)
			tbl, _ := table.(string)
			metrics.Get().DatabaseQueryDuration.WithLabelValues(op, tbl).Observe(elapsed.Seconds())
		}
	}

	if sql := db.Statement.SQL.String(); sql != "" {
		if len(sql) > maxStatementLen {
			sql = sql[:maxStatementLen] + "... (truncated)"
		}
		span.SetAttributes(attribute.String(dbStatementKey, sql))
	}

	if db.RowsAffected > 0 {
		span.SetAttributes(attribute.Int64("db.rows_affected", db.RowsAffected))
	}

	// Not-found lookups are expected on the read path.
	if db.Error != nil && db.Error != gorm.ErrRecordNotFound {
		span.SetStatus(codes.Error, db.Error.Error())
		span.RecordError(db.Error)
	}
}
