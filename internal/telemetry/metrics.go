package telemetry

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelglobal "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const meterName = "aicoo"

// InitMeterProvider installs a global MeterProvider backed by a Prometheus
// registry and returns the handler serving it.
func InitMeterProvider(ctx context.Context, serviceName string) (http.Handler, error) {
	if serviceName == "" {
		serviceName = "aicoo"
	}
	reg := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, err
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)
	otelglobal.SetMeterProvider(provider)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true}), nil
}

func Meter() metric.Meter {
	return otelglobal.Meter(meterName)
}

var (
	AttrStatus    = attribute.Key("status")
	AttrOperation = attribute.Key("operation")
	AttrProvider  = attribute.Key("provider")
	AttrLevel     = attribute.Key("risk_level")
)

var (
	initMetricsOnce sync.Once
	initMetricsErr  error

	taskOpsCounter      metric.Int64Counter
	planOutcomesCounter metric.Int64Counter
	planDuration        metric.Float64Histogram
	sprintEvalCounter   metric.Int64Counter
)

// InitMetrics creates the instruments once. Call after InitMeterProvider.
func InitMetrics(ctx context.Context) error {
	initMetricsOnce.Do(func() {
		m := Meter()
		var err error
		defer func() { initMetricsErr = err }()
		taskOpsCounter, err = m.Int64Counter("aicoo_task_operations_total", metric.WithDescription("Task operations by kind and resulting status"))
		if err != nil {
			return
		}
		planOutcomesCounter, err = m.Int64Counter("aicoo_plan_outcomes_total", metric.WithDescription("Plan generations by provider status"))
		if err != nil {
			return
		}
		planDuration, err = m.Float64Histogram("aicoo_plan_duration_seconds", metric.WithDescription("Plan generation duration in seconds"))
		if err != nil {
			return
		}
		sprintEvalCounter, err = m.Int64Counter("aicoo_sprint_evaluations_total", metric.WithDescription("Sprint risk recomputations by resulting level"))
	})
	return initMetricsErr
}

// RecordTaskOp records one task operation (create, patch, run).
func RecordTaskOp(ctx context.Context, op, status string) {
	if taskOpsCounter == nil {
		return
	}
	taskOpsCounter.Add(ctx, 1, metric.WithAttributes(AttrOperation.String(op), AttrStatus.String(status)))
}

// RecordPlan records a plan generation outcome and how long it took.
func RecordPlan(ctx context.Context, provider, status string, d time.Duration) {
	attrs := metric.WithAttributes(AttrProvider.String(provider), AttrStatus.String(status))
	if planOutcomesCounter != nil {
		planOutcomesCounter.Add(ctx, 1, attrs)
	}
	if planDuration != nil {
		planDuration.Record(ctx, d.Seconds(), attrs)
	}
}

func RecordSprintEvaluation(ctx context.Context, level string) {
	if sprintEvalCounter == nil {
		return
	}
	sprintEvalCounter.Add(ctx, 1, metric.WithAttributes(AttrLevel.String(level)))
}

// TaskCountFunc returns task counts keyed by status.
type TaskCountFunc func(ctx context.Context) (map[string]int, error)

var taskStatuses = []string{"pending", "in_progress", "completed", "failed"}

// InitMetricsWithTaskCount also reports the aicoo_tasks gauge when taskCount is set.
func InitMetricsWithTaskCount(ctx context.Context, taskCount TaskCountFunc) error {
	if err := InitMetrics(ctx); err != nil {
		return err
	}
	if taskCount == nil {
		return nil
	}
	m := Meter()
	gauge, err := m.Int64ObservableGauge("aicoo_tasks", metric.WithDescription("Number of tasks by status"))
	if err != nil {
		return err
	}
	_, err = m.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		counts, err := taskCount(ctx)
		if err != nil {
			return err
		}
		for _, s := range taskStatuses {
			o.ObserveInt64(gauge, int64(counts[s]), metric.WithAttributes(AttrStatus.String(s)))
		}
		return nil
	}, gauge)
	return err
}
