package di

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"Tradeflow/internal/domain/models"
	domrepo "Tradeflow/internal/domain/repository"
	domsvc "Tradeflow/internal/domain/service"
	"Tradeflow/internal/handler/api"
	"Tradeflow/internal/handler/ws"
	mid "Tradeflow/internal/middleware"
	"Tradeflow/internal/repository"
	apimetrics "Tradeflow/internal/service/metrics"
	"Tradeflow/internal/service/ratelimit"
	"Tradeflow/internal/services/analytics"
	"Tradeflow/internal/services/broker"
	"Tradeflow/internal/services/structure"
	"Tradeflow/internal/usecase"
	"Tradeflow/pkg/cache"
	"Tradeflow/pkg/calendar"
	pkgch "Tradeflow/pkg/clickhouse"
	"Tradeflow/pkg/config"
	xhttp "Tradeflow/pkg/http"
	pkgkafka "Tradeflow/pkg/kafka"
	"Tradeflow/pkg/logger"
	"Tradeflow/pkg/metrics"
	"Tradeflow/pkg/server"
)

// ProvideLogger builds the process logger. With a producer and the collector
// enabled, repeated warnings and errors are also shipped to Kafka in batches.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*logger.Logger, func(), error) {
	l, err := logger.New(&logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	l = l.With(logger.String("service", "tradeflow"), logger.String("env", cfg.Environment))
	if cfg.Logging.Collector.Enabled && producer != nil {
		l.AddCollector(&logger.CollectionConfig{
			TimeInterval:   cfg.Logging.Collector.Interval,
			CountThreshold: cfg.Logging.Collector.Threshold,
			Topic:          cfg.Logging.Collector.Topic,
			Publisher:      producer,
		})
	}
	return l, l.RemoveCollector, nil
}

// ProvideReplayLogger logs to stderr so stdout stays free for events.
func ProvideReplayLogger(cfg *config.Config) (*logger.Logger, error) {
	l, err := logger.NewWithWriter(os.Stderr, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

func ProvideRegisterer() prometheus.Registerer {
	return prometheus.DefaultRegisterer
}

func ProvideMetrics(reg prometheus.Registerer) domrepo.Metrics {
	return metrics.New(reg)
}

func ProvideAPIMetrics(reg prometheus.Registerer) *apimetrics.API {
	return apimetrics.NewAPI(reg)
}

func ProvideCalendar(cfg *config.Config) (*calendar.Calendar, error) {
	loc, err := time.LoadLocation(cfg.Session.Timezone)
	if err != nil {
		return nil, fmt.Errorf("calendar timezone: %w", err)
	}
	start, end, err := cfg.QuietWindow()
	if err != nil {
		return nil, err
	}
	return calendar.New(
		calendar.WithLocation(loc),
		calendar.WithNearClose(cfg.Session.NearClose),
		calendar.WithQuietWindow(start, end),
	), nil
}

// ProvideRedisCache connects to Redis unless the phase store is memory only.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, func(), error) {
	if cfg.Redis.Mode == config.CacheMemory {
		return nil, func() {}, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPort(cfg.Redis.Port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPool(cfg.Redis.PoolSize, cfg.Redis.MinIdle, cfg.Redis.Timeout),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, func() { _ = rc.Close() }, nil
}

func ProvideCache(cfg *config.Config, rc *cache.RedisCache) (cache.Service, func()) {
	switch cfg.Redis.Mode {
	case config.CacheRedis:
		return rc, func() {}
	case config.CacheLayered:
		lc := cache.NewLayeredCache(rc,
			cache.WithLayeredMemorySize(cfg.Redis.MemorySize),
			cache.WithLayeredMemoryTTL(cfg.Redis.MemoryTTL),
		)
		// Also closes Redis; the second close from ProvideRedisCache is ignored.
		return lc, func() { _ = lc.Close() }
	default:
		mc := cache.NewMemoryCache(
			cache.WithMemoryMaxSize(cfg.Redis.MemorySize),
			cache.WithMemoryCleanup(cfg.Redis.MemoryClean),
		)
		return mc, func() { _ = mc.Close() }
	}
}

func ProvidePhaseStore(c cache.Service, cfg *config.Config, l *logger.Logger) *repository.PhaseStore {
	return repository.NewPhaseStore(c, l, repository.WithPhaseTTL(cfg.Phases.CacheTTL))
}

// ProvideClickHouseClient connects unless bars come from a file.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, func(), error) {
	if cfg.BarSource.Type == config.BarSourceFile {
		return nil, func() {}, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, repository.BarSchema(cfg.BarSource.Table)); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

func ProvideCHBarSource(client *pkgch.Client, cfg *config.Config, l *logger.Logger) *repository.CHBarSource {
	if client == nil {
		return nil
	}
	return repository.NewCHBarSource(client, cfg.BarSource.Table, cfg.Engine.Symbol, l)
}

// ProvideStreamSource holds live bars when the Kafka feed drives the engine.
func ProvideStreamSource(cfg *config.Config) (*repository.StreamBarSource, func()) {
	if cfg.BarSource.Type != config.BarSourceStream {
		return nil, func() {}
	}
	s := repository.NewStreamBarSource(repository.WithRetention(cfg.BarSource.Retention))
	return s, func() { _ = s.Close() }
}

func ProvideBarSource(cfg *config.Config, ch *repository.CHBarSource, stream *repository.StreamBarSource) (domrepo.BarSource, error) {
	switch cfg.BarSource.Type {
	case config.BarSourceFile:
		f, err := os.Open(cfg.BarSource.File)
		if err != nil {
			return nil, fmt.Errorf("bar file: %w", err)
		}
		defer f.Close()
		src, err := repository.LoadBarsJSONL(f)
		if err != nil {
			return nil, fmt.Errorf("bar file %s: %w", cfg.BarSource.File, err)
		}
		return src, nil
	case config.BarSourceStream:
		return repository.NewTieredBarSource(ch, stream), nil
	default:
		return ch, nil
	}
}

func ProvideDetector(cfg *config.Config, cal *calendar.Calendar) (domsvc.StructureDetector, error) {
	zoneTF, err := models.ParseTimeframe(cfg.Strategy.PlanZoneTimeframe)
	if err != nil {
		return nil, fmt.Errorf("strategy.plan_zone_timeframe: %w", err)
	}
	tradingTF, err := models.ParseTimeframe(cfg.Engine.TradingTimeframe)
	if err != nil {
		return nil, fmt.Errorf("engine.trading_timeframe: %w", err)
	}
	return structure.NewDetector(structure.Config{
		SwingStrength:    cfg.Engine.SwingStrength,
		ZoneTimeframe:    zoneTF,
		ExtremeTimeframe: tradingTF,
	}, cal), nil
}

func ProvideBroker(cfg *config.Config, l *logger.Logger) domsvc.Broker {
	return broker.NewPaper(l.With(logger.String("component", "paper_broker")),
		broker.WithTickSize(cfg.Strategy.Risk.TickSize),
		broker.WithPointValue(cfg.Strategy.Risk.PointValue),
	)
}

// ProvidePredictor returns nil when no model service is configured.
func ProvidePredictor(cfg *config.Config, l *logger.Logger) *analytics.HTTPPredictor {
	if cfg.Predictor.URL == "" {
		return nil
	}
	base := analytics.NewHTTPServiceBase(cfg.Predictor.URL, cfg.Predictor.Timeout)
	return analytics.NewHTTPPredictor(base, cfg.Predictor.Attempts, l.With(logger.String("component", "predictor")))
}

func ProvideRiskConstructor(cfg *config.Config) *usecase.RiskConstructor {
	r := cfg.Strategy.Risk
	return usecase.NewRiskConstructor(usecase.RiskConfig{
		TickSize:         r.TickSize,
		PointValue:       r.PointValue,
		StopTicks:        r.StopTicks,
		ProfitMultiplier: r.ProfitMultiplier,
		MaxRisk:          r.MaxRisk,
		MaxContracts:     r.MaxContracts,
		TrailTicks:       r.TrailTicks,
		MarketEntry:      r.MarketEntry,
	})
}

// ProvideProbes builds the configured probes in priority order.
func ProvideProbes(cfg *config.Config, risk *usecase.RiskConstructor, predictor *analytics.HTTPPredictor) ([]usecase.Probe, error) {
	zoneTF, err := models.ParseTimeframe(cfg.Strategy.PlanZoneTimeframe)
	if err != nil {
		return nil, fmt.Errorf("strategy.plan_zone_timeframe: %w", err)
	}
	tradingTF, err := models.ParseTimeframe(cfg.Engine.TradingTimeframe)
	if err != nil {
		return nil, fmt.Errorf("engine.trading_timeframe: %w", err)
	}
	probes := make([]usecase.Probe, 0, len(cfg.Strategy.Probes))
	for _, name := range cfg.Strategy.Probes {
		switch name {
		case "zone_fade":
			probes = append(probes, usecase.NewZoneFadeProbe(risk.Default()))
		case "plan_zone":
			probes = append(probes, usecase.NewPlanZoneProbe(zoneTF, risk.Default()))
		case "trend_cross":
			probes = append(probes, usecase.NewTrendCrossProbe(cfg.Strategy.CrossMinutesAgo, cfg.Strategy.CrossMinStrength, risk.Default()))
		case "model":
			if predictor == nil {
				return nil, fmt.Errorf("strategy.probes: model probe needs predictor.url")
			}
			probes = append(probes, usecase.NewModelProbe(predictor, cfg.Strategy.ModelThreshold, tradingTF, risk))
		default:
			return nil, fmt.Errorf("strategy.probes: unknown probe %q", name)
		}
	}
	return probes, nil
}

// ProvideEngineFactory builds a fresh lifecycle and strategy engine per day so
// no order state leaks between days.
func ProvideEngineFactory(
	cfg *config.Config,
	source domrepo.BarSource,
	detector domsvc.StructureDetector,
	brk domsvc.Broker,
	probes []usecase.Probe,
	m domrepo.Metrics,
	l *logger.Logger,
) (usecase.EngineFactory, error) {
	tradingTF, err := models.ParseTimeframe(cfg.Engine.TradingTimeframe)
	if err != nil {
		return nil, fmt.Errorf("engine.trading_timeframe: %w", err)
	}
	tieBreak, err := usecase.ParseTieBreak(cfg.Lifecycle.TieBreak)
	if err != nil {
		return nil, err
	}
	engineCfg := usecase.EngineConfig{
		Symbol:           cfg.Engine.Symbol,
		TradingTimeframe: tradingTF,
		TrendCapacity:    cfg.Engine.TrendCapacity,
	}
	return func(date string, session calendar.Session) *usecase.DayEngine {
		dl := l.With(logger.String("trading_date", date))
		lc := usecase.NewLifecycle(brk, m, dl,
			usecase.WithTieBreak(tieBreak),
			usecase.WithStaleAfter(cfg.Lifecycle.StaleAfter),
			usecase.WithLifecycleTickSize(cfg.Strategy.Risk.TickSize),
		)
		se := usecase.NewStrategyEngine(dl, probes,
			usecase.WithLookback(cfg.Strategy.Lookback),
			usecase.WithMomentumPeriod(cfg.Strategy.MomentumPeriod),
			usecase.WithTradingTimeframe(tradingTF),
		)
		return usecase.NewDayEngine(date, session, engineCfg, source, detector, lc, se, m, l)
	}, nil
}

func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		// Events of one trading day share a key and so a partition.
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}

// ProvideEventPublisher publishes to Kafka, or to stdout when Kafka is off.
func ProvideEventPublisher(cfg *config.Config, producer *pkgkafka.Producer) domrepo.Publisher {
	if producer == nil {
		return repository.NewJSONLinesPublisher(os.Stdout)
	}
	return repository.NewKafkaEventPublisher(producer, cfg.Kafka.EventsTopic)
}

func ProvideJSONLinesPublisher(out io.Writer) domrepo.Publisher {
	return repository.NewJSONLinesPublisher(out)
}

func ProvideEventPipeline(cfg *config.Config, pub domrepo.Publisher, m domrepo.Metrics, l *logger.Logger) *mid.EventPipeline {
	return mid.NewEventPipeline(pub, m, l.With(logger.String("component", "event_pipeline")),
		mid.WithBufferSize(cfg.Engine.PublishBuffer),
		mid.WithPublishAttempts(cfg.Engine.PublishAttempts),
		mid.WithRetryBackoff(cfg.Engine.RetryBackoff),
	)
}

func ProvidePhaseService(
	cfg *config.Config,
	cal *calendar.Calendar,
	factory usecase.EngineFactory,
	store *repository.PhaseStore,
	pipeline *mid.EventPipeline,
	m domrepo.Metrics,
	l *logger.Logger,
) (*usecase.PhaseService, error) {
	planningTF, err := models.ParseTimeframe(cfg.Phases.PlanningTimeframe)
	if err != nil {
		return nil, fmt.Errorf("phases.planning_timeframe: %w", err)
	}
	return usecase.NewPhaseService(cal, usecase.PhaseConfig{
		PlanningTimeframe:    planningTF,
		PlanningLookbackDays: cfg.Phases.PlanningLookbackDays,
		AutoChain:            cfg.Phases.AutoChain,
		ClaimTTL:             cfg.Phases.ClaimTTL,
		SubscriberBuffer:     cfg.Phases.SubscriberBuffer,
	}, factory, store, store, pipeline, m, l.With(logger.String("component", "phase_service"))), nil
}

// ProvideBarFeedHandler consumes the live bar topic in stream mode; bars are
// also written to ClickHouse when persistence is on.
func ProvideBarFeedHandler(cfg *config.Config, stream *repository.StreamBarSource, ch *repository.CHBarSource, m domrepo.Metrics, l *logger.Logger) *usecase.BarFeedHandler {
	if stream == nil {
		return nil
	}
	var store usecase.BarStore
	if cfg.BarSource.Persist && ch != nil {
		store = ch
	}
	return usecase.NewBarFeedHandler(cfg.Kafka.BarsTopic, cfg.Engine.Symbol, stream, store, m, l.With(logger.String("component", "bar_feed")))
}

func ProvideKafkaConsumer(cfg *config.Config, feed *usecase.BarFeedHandler, l *logger.Logger) (*pkgkafka.Consumer, error) {
	if feed == nil {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		// Bars of one symbol must be applied in order.
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.NewHookChain(pkgkafka.TraceHook{}))
	consumer.RegisterHandler(feed)
	return consumer, nil
}

func ProvidePhaseHandler(l *logger.Logger, svc *usecase.PhaseService, m *apimetrics.API) *api.PhaseEchoHandler {
	return api.NewPhaseEchoHandler(l, svc, m)
}

func ProvideCommandHandler(cfg *config.Config, svc *usecase.PhaseService, m *apimetrics.API, l *logger.Logger) *ws.CommandHandler {
	return ws.NewCommandHandler(svc, ratelimit.New(), m, l.With(logger.String("component", "ws")),
		ws.WithPingInterval(cfg.Server.WebSocket.PingInterval),
		ws.WithCommandRate(cfg.Server.WebSocket.CommandBurst, cfg.Server.WebSocket.CommandRate),
	)
}

// ProvideHealthHandler pings whichever backends are in use.
func ProvideHealthHandler(ch *pkgch.Client, rc *cache.RedisCache, predictor *analytics.HTTPPredictor) *api.HealthEchoHandler {
	var checks []api.Checker
	if ch != nil {
		checks = append(checks, api.CheckFunc{Label: "clickhouse", Ping: ch.Health})
	}
	if rc != nil {
		checks = append(checks, api.CheckFunc{Label: "redis", Ping: func(ctx context.Context) error {
			return rc.Client().Ping(ctx).Err()
		}})
	}
	if predictor != nil {
		checks = append(checks, api.CheckFunc{Label: "predictor", Ping: predictor.Health})
	}
	return api.NewHealthEchoHandler(checks...)
}

func ProvideHTTPServer(cfg *config.Config, l *logger.Logger, phases *api.PhaseEchoHandler, cmds *ws.CommandHandler, health *api.HealthEchoHandler) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer(l, []xhttp.Handler{phases, cmds, health},
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(cfg.Server.CORS),
		xhttp.WithMetricsPath(metricsPath),
	)
}

func ProvideApp(
	cfg *config.Config,
	l *logger.Logger,
	phases *usecase.PhaseService,
	pipeline *mid.EventPipeline,
	httpServer *xhttp.Server,
	consumer *pkgkafka.Consumer,
) *server.App {
	var opts []server.Option
	if consumer != nil {
		opts = append(opts, server.WithConsumer(consumer))
	}
	return server.New(cfg, l, phases, pipeline, httpServer, opts...)
}

func ProvideReplay(l *logger.Logger, phases *usecase.PhaseService, pipeline *mid.EventPipeline) *server.Replay {
	return server.NewReplay(l, phases, pipeline)
}
