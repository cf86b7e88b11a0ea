package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"blocklotto/config"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
)

// MetricsProvider manages OpenTelemetry metrics for the lottery service
type MetricsProvider struct {
	config        *config.Config
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
	initialized   bool
	mu            sync.RWMutex

	ticketsSoldCounter           metric.Int64Counter
	phaseTransitionsCounter      metric.Int64Counter
	drawsCounter                 metric.Int64Counter
	settlementsCounter           metric.Int64Counter
	prizeAmountCounter           metric.Int64Counter
	operationErrorsCounter       metric.Int64Counter
	driveDurationHist            metric.Float64Histogram
	oracleTipGauge               metric.Int64Gauge
	natsMessagesPublishedCounter metric.Int64Counter
}

// NewMetricsProvider creates a new metrics provider
func NewMetricsProvider(cfg *config.Config) *MetricsProvider {
	return &MetricsProvider{
		config: cfg,
	}
}

// Initialize sets up the OpenTelemetry metrics provider
func (mp *MetricsProvider) Initialize(ctx context.Context) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.initialized {
		return nil
	}

	if !mp.config.OTelEnabled {
		log.Info("OpenTelemetry metrics disabled")
		mp.initialized = true
		return nil
	}

	var reader sdkmetric.Reader
	switch mp.config.OTelExporterType {
	case "console":
		exporter, err := stdoutmetric.New()
		if err != nil {
			return fmt.Errorf("failed to create console exporter: %w", err)
		}
		reader = mp.periodicReader(exporter)
		log.Info("Using console metric exporter")

	case "otlp":
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		exporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(mp.config.OTelOTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		reader = mp.periodicReader(exporter)
		log.WithField("endpoint", mp.config.OTelOTLPEndpoint).Info("Using OTLP metric exporter")

	case "none":
		log.Info("Metrics export disabled (exporter_type='none')")
		mp.initialized = true
		return nil

	default:
		return fmt.Errorf("unknown exporter type: %s", mp.config.OTelExporterType)
	}

	res, err := mp.resource()
	if err != nil {
		_ = reader.Shutdown(ctx)
		return err
	}

	return mp.initializeWithReader(reader, res)
}

// resource describes this service. The semconv import must track the schema
// version of the SDK's default resource or Merge rejects the pair.
func (mp *MetricsProvider) resource() (*resource.Resource, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(mp.config.OTelServiceName),
			attribute.String("environment", mp.config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

// InitializeWithReader installs instruments over a caller supplied reader
func (mp *MetricsProvider) InitializeWithReader(reader sdkmetric.Reader) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	res, err := mp.resource()
	if err != nil {
		return err
	}
	return mp.initializeWithReader(reader, res)
}

func (mp *MetricsProvider) initializeWithReader(reader sdkmetric.Reader, res *resource.Resource) error {
	mp.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)

	otel.SetMeterProvider(mp.meterProvider)
	mp.meter = mp.meterProvider.Meter("blocklotto")

	if err := mp.createInstruments(); err != nil {
		return fmt.Errorf("failed to create instruments: %w", err)
	}

	mp.initialized = true
	log.Info("Metrics provider initialized successfully")
	return nil
}

func (mp *MetricsProvider) periodicReader(exporter sdkmetric.Exporter) sdkmetric.Reader {
	return sdkmetric.NewPeriodicReader(
		exporter,
		sdkmetric.WithInterval(time.Duration(mp.config.OTelExportIntervalMillis)*time.Millisecond),
	)
}

// createInstruments creates all metric instruments
func (mp *MetricsProvider) createInstruments() error {
	var err error

	counters := []struct {
		dst         *metric.Int64Counter
		name        string
		description string
	}{
		{&mp.ticketsSoldCounter, TicketsSoldTotal, "Total number of tickets sold"},
		{&mp.phaseTransitionsCounter, PhaseTransitionsTotal, "Total number of lottery phase transitions"},
		{&mp.drawsCounter, DrawsTotal, "Total number of draws recorded"},
		{&mp.settlementsCounter, SettlementsTotal, "Total number of settlement attempts by outcome"},
		{&mp.prizeAmountCounter, PrizeAmountTotal, "Total prize amount disbursed"},
		{&mp.operationErrorsCounter, OperationErrorsTotal, "Total number of rejected lottery operations"},
		{&mp.natsMessagesPublishedCounter, NATSMessagesPublishedTotal, "Total number of NATS messages published"},
	}
	for _, c := range counters {
		*c.dst, err = mp.meter.Int64Counter(c.name,
			metric.WithDescription(c.description),
			metric.WithUnit("1"),
		)
		if err != nil {
			return fmt.Errorf("failed to create counter %s: %w", c.name, err)
		}
	}

	mp.oracleTipGauge, err = mp.meter.Int64Gauge(
		OracleTipHeight,
		metric.WithDescription("Latest block height observed from the randomness oracle"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create oracle tip gauge: %w", err)
	}

	mp.driveDurationHist, err = mp.meter.Float64Histogram(
		DriveIterationDuration,
		metric.WithDescription("Duration of one drive pass over active lotteries in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return fmt.Errorf("failed to create drive duration histogram: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the metrics provider
func (mp *MetricsProvider) Shutdown(ctx context.Context) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.meterProvider != nil {
		return mp.meterProvider.Shutdown(ctx)
	}
	return nil
}

// RecordTicketsSold records a successful purchase
func (mp *MetricsProvider) RecordTicketsSold(count int64) {
	if !mp.isEnabled() {
		return
	}
	mp.ticketsSoldCounter.Add(context.Background(), count)
}

// RecordPhaseTransition records a lottery moving between phases
func (mp *MetricsProvider) RecordPhaseTransition(from, to string) {
	if !mp.isEnabled() {
		return
	}
	mp.phaseTransitionsCounter.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String(LabelFromPhase, from),
			attribute.String(LabelToPhase, to),
		),
	)
}

// RecordDraw records a committed draw
func (mp *MetricsProvider) RecordDraw() {
	if !mp.isEnabled() {
		return
	}
	mp.drawsCounter.Add(context.Background(), 1)
}

// RecordSettlement records a settlement attempt and, on success, the amount paid
func (mp *MetricsProvider) RecordSettlement(outcome, method string, amount int64) {
	if !mp.isEnabled() {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(LabelOutcome, outcome),
		attribute.String(LabelMethod, method),
	)
	mp.settlementsCounter.Add(context.Background(), 1, attrs)
	if outcome == OutcomeSuccess {
		mp.prizeAmountCounter.Add(context.Background(), amount, attrs)
	}
}

// RecordOperationError records a rejected operation by reason code
func (mp *MetricsProvider) RecordOperationError(operation, kind string) {
	if !mp.isEnabled() {
		return
	}
	mp.operationErrorsCounter.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String(LabelOperation, operation),
			attribute.String(LabelErrorKind, kind),
		),
	)
}

// RecordOracleTip records the latest oracle tip height
func (mp *MetricsProvider) RecordOracleTip(height int64) {
	if !mp.isEnabled() {
		return
	}
	mp.oracleTipGauge.Record(context.Background(), height)
}

// RecordDriveDuration records one pass of the drive worker
func (mp *MetricsProvider) RecordDriveDuration(duration time.Duration) {
	if !mp.isEnabled() {
		return
	}
	mp.driveDurationHist.Record(context.Background(), duration.Seconds())
}

// RecordNATSMessagePublished records a NATS message being published
func (mp *MetricsProvider) RecordNATSMessagePublished(eventType string) {
	if !mp.isEnabled() {
		return
	}
	mp.natsMessagesPublishedCounter.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String(LabelEventType, eventType),
		),
	)
}

// isEnabled checks if instruments exist. A nil provider is disabled.
func (mp *MetricsProvider) isEnabled() bool {
	if mp == nil {
		return false
	}
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return mp.initialized && mp.meter != nil
}

// Global metrics provider instance
var (
	globalMetrics *MetricsProvider
	metricsOnce   sync.Once
)

// InitializeGlobalMetrics initializes the global metrics provider
func InitializeGlobalMetrics(ctx context.Context, cfg *config.Config) error {
	var err error
	metricsOnce.Do(func() {
		globalMetrics = NewMetricsProvider(cfg)
		err = globalMetrics.Initialize(ctx)
	})
	return err
}

// GetMetrics returns the global metrics provider, nil before initialization
func GetMetrics() *MetricsProvider {
	return globalMetrics
}

// ShutdownGlobalMetrics shuts down the global metrics provider
func ShutdownGlobalMetrics(ctx context.Context) error {
	if globalMetrics != nil {
		return globalMetrics.Shutdown(ctx)
	}
	return nil
}
