package telemetry

import (
	"context"
	"net/http"

	"github.com/linemk/bookstore/internal/domain/models"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

// InitMeterProvider поднимает Prometheus exporter и глобальный MeterProvider.
// Возвращает обработчик для /metrics и функцию остановки.
func InitMeterProvider(serviceName, serviceVersion string) (http.Handler, func(context.Context) error, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	mp := metric.NewMeterProvider(
		metric.WithReader(exporter),
		metric.WithResource(newResource(serviceName, serviceVersion)),
	)
	otel.SetMeterProvider(mp)

	return promhttp.Handler(), mp.Shutdown, nil
}

// ShopMetrics счётчики жизненного цикла заказа
type ShopMetrics struct {
	ordersPlaced  otelmetric.Int64Counter
	revenue       otelmetric.Float64Counter
	statusChanges otelmetric.Int64Counter
}

// NewShopMetrics регистрирует счётчики в переданном MeterProvider
func NewShopMetrics(mp otelmetric.MeterProvider) (*ShopMetrics, error) {
	meter := mp.Meter("bookstore")

	ordersPlaced, err := meter.Int64Counter("bookstore.orders.placed",
		otelmetric.WithDescription("Number of orders placed"))
	if err != nil {
		return nil, err
	}
	revenue, err := meter.Float64Counter("bookstore.orders.revenue",
		otelmetric.WithDescription("Sum of placed order totals"))
	if err != nil {
		return nil, err
	}
	statusChanges, err := meter.Int64Counter("bookstore.orders.status_changes",
		otelmetric.WithDescription("Number of order status transitions"))
	if err != nil {
		return nil, err
	}

	return &ShopMetrics{
		ordersPlaced:  ordersPlaced,
		revenue:       revenue,
		statusChanges: statusChanges,
	}, nil
}

func (m *ShopMetrics) OrderPlaced(ctx context.Context, total decimal.Decimal) {
	m.ordersPlaced.Add(ctx, 1)
	m.revenue.Add(ctx, total.InexactFloat64())
}

func (m *ShopMetrics) StatusChanged(ctx context.Context, status models.OrderStatus) {
	m.statusChanges.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("status", string(status))))
}
