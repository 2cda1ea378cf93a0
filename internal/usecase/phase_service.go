package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"Tradeflow/internal/domain/models"
	domrepo "Tradeflow/internal/domain/repository"
	"Tradeflow/pkg/calendar"
	"Tradeflow/pkg/logger"
)

var ErrNotTradingDay = calendar.ErrNotTradingDay

type PhaseConfig struct {
	PlanningTimeframe models.Timeframe
	// PlanningLookbackDays is how many trading days before the date the planning window reaches.
	PlanningLookbackDays int
	TradingTimeframes    []models.Timeframe
	AutoChain            bool
	ClaimTTL             time.Duration
	SubscriberBuffer     int
}

// EngineFactory builds a fresh engine for one trading day.
type EngineFactory func(date string, session calendar.Session) *DayEngine

// StartResult is the acknowledgement of a start request.
type StartResult struct {
	Status    models.PhaseStatus `json:"status"`
	Lifecycle string             `json:"lifecycle"`
}

type phaseRun struct {
	ref     models.PhaseRef
	status  models.PhaseStatus
	options map[string]string
}

// PhaseService runs phases one at a time on a single worker, so trading days
// never overlap, and chains planning -> preparing -> trading.
type PhaseService struct {
	cal       *calendar.Calendar
	cfg       PhaseConfig
	newEngine EngineFactory
	cache     domrepo.PhaseCache
	archive   domrepo.DayArchive
	out       Sink
	metrics   domrepo.Metrics
	logger    *logger.Logger
	now       func() time.Time

	wake chan struct{}

	mu        sync.Mutex
	runs      map[string]*phaseRun
	queue     []*phaseRun
	running   *phaseRun
	completed []models.PhaseRef
	engines   map[string]*dayEngine
	subs      map[int]chan models.Frame
	nextSub   int
}

func NewPhaseService(
	cal *calendar.Calendar,
	cfg PhaseConfig,
	newEngine EngineFactory,
	cache domrepo.PhaseCache,
	archive domrepo.DayArchive,
	out Sink,
	m domrepo.Metrics,
	l *logger.Logger,
) *PhaseService {
	if cfg.PlanningTimeframe == "" {
		cfg.PlanningTimeframe = models.TF1h
	}
	if cfg.PlanningLookbackDays <= 0 {
		cfg.PlanningLookbackDays = 5
	}
	if len(cfg.TradingTimeframes) == 0 {
		cfg.TradingTimeframes = []models.Timeframe{models.TF5m, models.TF1m}
	}
	if cfg.ClaimTTL <= 0 {
		cfg.ClaimTTL = 30 * time.Minute
	}
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = 256
	}
	return &PhaseService{
		cal:       cal,
		cfg:       cfg,
		newEngine: newEngine,
		cache:     cache,
		archive:   archive,
		out:       out,
		metrics:   m,
		logger:    l,
		now:       time.Now,
		wake:      make(chan struct{}, 1),
		runs:      make(map[string]*phaseRun),
		engines:   make(map[string]*dayEngine),
		subs:      make(map[int]chan models.Frame),
	}
}

// ResolveDate parses date, defaulting to the current or next trading day.
func (s *PhaseService) ResolveDate(date string) (string, error) {
	var d time.Time
	if date == "" {
		d = s.cal.Day(s.now())
		if !s.cal.IsTradingDay(d) {
			d = s.cal.NextTradingDay(d)
		}
		return s.cal.FormatDate(d), nil
	}
	d, err := s.cal.ParseDate(date)
	if err != nil {
		return "", err
	}
	if !s.cal.IsTradingDay(d) {
		return "", fmt.Errorf("%w: %s", ErrNotTradingDay, date)
	}
	return s.cal.FormatDate(d), nil
}

// StartPhase queues a phase unless it already completed or is in flight.
func (s *PhaseService) StartPhase(ctx context.Context, phase models.Phase, date string, options map[string]string) (StartResult, error) {
	if _, err := models.ParsePhase(string(phase)); err != nil {
		return StartResult{}, err
	}
	date, err := s.ResolveDate(date)
	if err != nil {
		return StartResult{}, err
	}
	key := models.PhaseKey(date, phase)

	s.mu.Lock()
	if run, ok := s.runs[key]; ok && !run.status.Errored {
		st := cloneStatus(run.status)
		s.mu.Unlock()
		if st.Complete {
			return StartResult{Status: st, Lifecycle: models.LifecycleCached}, nil
		}
		return StartResult{Status: st, Lifecycle: models.LifecycleRunning}, nil
	}
	s.mu.Unlock()

	cached, err := s.cache.Get(ctx, date, phase)
	switch {
	case err == nil && cached.Complete:
		s.mu.Lock()
		s.runs[key] = &phaseRun{ref: models.PhaseRef{TradingDate: date, Phase: phase}, status: cached}
		s.mu.Unlock()
		return StartResult{Status: cached, Lifecycle: models.LifecycleCached}, nil
	case err != nil && !errors.Is(err, domrepo.ErrNotFound):
		s.logger.Warn("phase cache read failed", logger.String("key", key), logger.Error(err))
	}

	st, queued := s.enqueue(date, phase, options)
	if !queued {
		if st.Complete {
			return StartResult{Status: st, Lifecycle: models.LifecycleCached}, nil
		}
		return StartResult{Status: st, Lifecycle: models.LifecycleRunning}, nil
	}
	s.broadcast(models.LifecycleFrame(date, phase, models.LifecycleStarted))
	return StartResult{Status: st, Lifecycle: models.LifecycleStarted}, nil
}

// enqueue adds a run unless a live one exists for the key.
func (s *PhaseService) enqueue(date string, phase models.Phase, options map[string]string) (models.PhaseStatus, bool) {
	key := models.PhaseKey(date, phase)
	s.mu.Lock()
	defer s.mu.Unlock()
	if run, ok := s.runs[key]; ok && !run.status.Errored {
		return cloneStatus(run.status), false
	}
	run := &phaseRun{
		ref:     models.PhaseRef{TradingDate: date, Phase: phase},
		status:  models.PhaseStatus{TradingDate: date, Phase: phase, Started: true},
		options: options,
	}
	s.runs[key] = run
	s.queue = append(s.queue, run)
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return run.status, true
}

// Run is the worker loop. It returns when ctx ends.
func (s *PhaseService) Run(ctx context.Context) error {
	s.logger.Info("phase worker started")
	for {
		run := s.dequeue()
		if run == nil {
			select {
			case <-ctx.Done():
				return nil
			case <-s.wake:
				continue
			}
		}
		s.execute(ctx, run)
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (s *PhaseService) dequeue() *phaseRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil
	}
	run := s.queue[0]
	s.queue = s.queue[1:]
	s.running = run
	return run
}

func (s *PhaseService) execute(ctx context.Context, run *phaseRun) {
	date, phase := run.ref.TradingDate, run.ref.Phase
	log := s.logger.With(logger.String("trading_date", date), logger.String("phase", string(phase)))
	started := time.Now()
	defer func() {
		s.mu.Lock()
		s.running = nil
		s.mu.Unlock()
	}()

	release, ok, err := s.cache.Claim(ctx, date, phase, s.cfg.ClaimTTL)
	if err != nil {
		log.Warn("phase claim failed, running anyway", logger.Error(err))
	} else if !ok {
		s.fail(ctx, run, time.Now(), errors.New("phase is being processed by another worker"))
		return
	}
	if release != nil {
		defer release()
	}

	engine, err := s.engineFor(ctx, date, phase)
	if err != nil {
		s.fail(ctx, run, time.Now(), err)
		return
	}
	w := s.window(phase, engine.Session())

	last := w.End
	sink := SinkFunc(func(ctx context.Context, ev models.Event) error {
		if ev.Timestamp.After(last) {
			last = ev.Timestamp
		}
		s.record(run, ev)
		return s.out.Emit(ctx, ev)
	})

	log.Info("phase started")
	if err := engine.Replay(ctx, w, sink); err != nil {
		if ctx.Err() != nil {
			log.Warn("phase interrupted", logger.Error(err))
			return
		}
		s.dropEngine(date, engine)
		s.fail(ctx, run, last, err)
		return
	}
	s.consumed(date, engine, phase)

	done := models.NewPhaseCompleteEvent(last)
	done.TradingDate, done.Phase = date, phase
	_ = sink.Emit(ctx, done)

	s.mu.Lock()
	run.status.Complete = true
	status := cloneStatus(run.status)
	s.completed = append(s.completed, run.ref)
	s.mu.Unlock()

	if err := s.cache.Put(ctx, status); err != nil {
		log.Warn("phase cache write failed", logger.Error(err))
	}
	s.metrics.RecordLatency("phase_"+string(phase), time.Since(started).Seconds())
	s.broadcast(models.LifecycleFrame(date, phase, models.LifecycleCompleted))
	log.Info("phase completed", logger.Int("events", len(status.Events)), logger.Duration("elapsed", time.Since(started)))

	if phase == models.PhaseTrading {
		if err := s.archive.Save(ctx, engine.Snapshot()); err != nil {
			log.Warn("archive day failed", logger.Error(err))
		}
		s.dropEngine(date, engine)
		return
	}

	if next, ok := phase.Next(); ok && s.chains(run) {
		if _, queued := s.enqueue(date, next, run.options); queued {
			s.broadcast(models.LifecycleFrame(date, next, models.LifecycleStarted))
		}
	}
}

func (s *PhaseService) chains(run *phaseRun) bool {
	if v, ok := run.options["autoChain"]; ok {
		return v != "false"
	}
	return s.cfg.AutoChain
}

func (s *PhaseService) fail(ctx context.Context, run *phaseRun, at time.Time, cause error) {
	date, phase := run.ref.TradingDate, run.ref.Phase
	s.metrics.RecordError("phase_" + string(phase))
	s.logger.Error("phase errored",
		logger.String("trading_date", date),
		logger.String("phase", string(phase)),
		logger.Error(cause),
	)

	ev := models.NewPhaseErroredEvent(at, cause)
	ev.TradingDate, ev.Phase = date, phase
	s.record(run, ev)
	if err := s.out.Emit(ctx, ev); err != nil {
		s.logger.Warn("emit phase errored failed", logger.Error(err))
	}

	s.mu.Lock()
	run.status.Errored = true
	run.status.Error = cause.Error()
	s.mu.Unlock()
	s.broadcast(models.LifecycleFrame(date, phase, models.LifecycleErrored))
}

// dayEngine is a day's engine and the position of the last phase replayed
// into it. Only the worker goroutine advances through.
type dayEngine struct {
	engine  *DayEngine
	through int
}

// engineFor returns an engine positioned just before phase. The day's engine
// is reused when it has not replayed phase yet; skipped earlier phases are
// replayed silently. A phase the day's engine already consumed runs on a
// fresh engine, since its bars would be rejected as out of order.
func (s *PhaseService) engineFor(ctx context.Context, date string, phase models.Phase) (*DayEngine, error) {
	s.mu.Lock()
	day, ok := s.engines[date]
	s.mu.Unlock()
	if ok && day.through < phase.Order() {
		if err := s.catchUpTo(ctx, day, phase); err != nil {
			return nil, err
		}
		return day.engine, nil
	}

	d, err := s.cal.ParseDate(date)
	if err != nil {
		return nil, err
	}
	session, err := s.cal.Session(d)
	if err != nil {
		return nil, err
	}
	fresh := &dayEngine{engine: s.newEngine(date, session), through: -1}
	if err := s.catchUpTo(ctx, fresh, phase); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if _, held := s.engines[date]; !held {
		s.engines[date] = fresh
	}
	s.mu.Unlock()
	return fresh.engine, nil
}

// catchUpTo replays the phases between day.through and phase without
// publishing anything.
func (s *PhaseService) catchUpTo(ctx context.Context, day *dayEngine, phase models.Phase) error {
	discard := SinkFunc(func(context.Context, models.Event) error { return nil })
	session := day.engine.Session()
	for i := day.through + 1; i < phase.Order(); i++ {
		earlier := models.Phases[i]
		if err := day.engine.Replay(ctx, s.window(earlier, session), discard); err != nil {
			return fmt.Errorf("rebuild %s: %w", earlier, err)
		}
		day.through = i
	}
	return nil
}

// consumed records that engine replayed phase, when engine is the day's.
func (s *PhaseService) consumed(date string, engine *DayEngine, phase models.Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if day, ok := s.engines[date]; ok && day.engine == engine && day.through < phase.Order() {
		day.through = phase.Order()
	}
}

// dropEngine forgets the day's engine when it is engine.
func (s *PhaseService) dropEngine(date string, engine *DayEngine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if day, ok := s.engines[date]; ok && day.engine == engine {
		delete(s.engines, date)
	}
}

// window maps a phase onto the bars it replays.
func (s *PhaseService) window(phase models.Phase, session calendar.Session) Window {
	switch phase {
	case models.PhasePlanning:
		from := s.cal.TradingDaysBack(session.Date, s.cfg.PlanningLookbackDays)
		fromSession, err := s.cal.Session(from)
		start := fromSession.Open
		if err != nil {
			start = session.PreMarketStart.AddDate(0, 0, -s.cfg.PlanningLookbackDays)
		}
		return Window{Phase: phase, Start: start, End: session.PreMarketStart, Timeframes: []models.Timeframe{s.cfg.PlanningTimeframe}}
	case models.PhasePreparing:
		return Window{Phase: phase, Start: session.PreMarketStart, End: session.Open, Timeframes: s.cfg.TradingTimeframes}
	default:
		return Window{Phase: phase, Start: session.Open, End: session.Close, Timeframes: s.cfg.TradingTimeframes, Trading: true}
	}
}

func (s *PhaseService) record(run *phaseRun, ev models.Event) {
	s.mu.Lock()
	run.status.Events = append(run.status.Events, ev)
	s.mu.Unlock()
	s.broadcast(models.EventFrame(ev))
}

// Poll returns the events of a phase from offset since, and whether it is done.
func (s *PhaseService) Poll(ctx context.Context, date string, phase models.Phase, since int) (models.PhaseStatus, error) {
	key := models.PhaseKey(date, phase)
	s.mu.Lock()
	run, ok := s.runs[key]
	var st models.PhaseStatus
	if ok {
		st = cloneStatus(run.status)
	}
	s.mu.Unlock()

	if !ok {
		cached, err := s.cache.Get(ctx, date, phase)
		if err != nil {
			return models.PhaseStatus{}, err
		}
		st = cached
	}
	if since > len(st.Events) {
		since = len(st.Events)
	}
	st.Events = st.Events[since:]
	if st.Events == nil {
		st.Events = []models.Event{}
	}
	return st, nil
}

// Status reports the running, queued and completed phases.
func (s *PhaseService) Status() models.ServiceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := models.ServiceStatus{
		Queued:    make([]models.PhaseRef, 0, len(s.queue)),
		Completed: append([]models.PhaseRef{}, s.completed...),
	}
	if s.running != nil {
		ref := s.running.ref
		out.Running = &ref
	}
	for _, run := range s.queue {
		out.Queued = append(out.Queued, run.ref)
	}
	return out
}

// Snapshot returns the live state of a day being processed, or its archive.
func (s *PhaseService) Snapshot(ctx context.Context, date string) (*models.TradingDayState, error) {
	s.mu.Lock()
	day, ok := s.engines[date]
	s.mu.Unlock()
	if ok {
		return day.engine.Snapshot(), nil
	}
	return s.archive.Load(ctx, date)
}

// Subscribe streams frames until cancel is called. A subscriber that falls
// behind is dropped and its channel closed.
func (s *PhaseService) Subscribe() (<-chan models.Frame, func()) {
	ch := make(chan models.Frame, s.cfg.SubscriberBuffer)
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

func (s *PhaseService) broadcast(f models.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.subs {
		select {
		case ch <- f:
		default:
			delete(s.subs, id)
			close(ch)
			s.metrics.RecordError("slow_subscriber")
			s.logger.Warn("dropping slow subscriber", logger.Int("subscriber", id))
		}
	}
}

func cloneStatus(st models.PhaseStatus) models.PhaseStatus {
	st.Events = append([]models.Event(nil), st.Events...)
	return st
}
