package obs

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const maxStatementLen = 300

type queryTraceKey struct{}

type queryTrace struct {
	span      trace.Span
	operation string
	start     time.Time
}

// PGXTracer implements pgx.QueryTracer. Each statement gets a client span and
// a DBQueryDuration observation labelled by its leading SQL keyword.
type PGXTracer struct {
	// Name overrides the tracer name, "solar-symphony/pgx" by default.
	Name string
}

// TraceQueryStart starts a span for the SQL statement.
func (t PGXTracer) TraceQueryStart(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	name := t.Name
	if name == "" {
		name = "solar-symphony/pgx"
	}
	op := sqlOperation(data.SQL)
	ctx, span := otel.Tracer(name).Start(ctx, "pgx "+op, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", op),
		attribute.String("db.statement", truncateSQL(data.SQL)),
	)
	if conn != nil {
		if cfg := conn.Config(); cfg != nil {
			span.SetAttributes(attribute.String("db.name", cfg.Database))
		}
	}
	return context.WithValue(ctx, queryTraceKey{}, &queryTrace{span: span, operation: op, start: time.Now()})
}

// TraceQueryEnd ends the span, records any error and observes the latency.
func (PGXTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	qt, ok := ctx.Value(queryTraceKey{}).(*queryTrace)
	if !ok {
		return
	}
	ObserveDBQuery(qt.operation, time.Since(qt.start))
	if data.Err != nil && data.Err != pgx.ErrNoRows {
		qt.span.RecordError(data.Err)
		qt.span.SetStatus(codes.Error, data.Err.Error())
	} else {
		qt.span.SetAttributes(attribute.Int64("db.rows_affected", data.CommandTag.RowsAffected()))
	}
	qt.span.End()
}

func sqlOperation(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "UNKNOWN"
	}
	return strings.ToUpper(fields[0])
}

func truncateSQL(sql string) string {
	trimmed := strings.TrimSpace(sql)
	if len(trimmed) > maxStatementLen {
		return trimmed[:maxStatementLen] + "..."
	}
	return trimmed
}
