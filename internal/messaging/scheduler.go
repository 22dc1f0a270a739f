package messaging

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/Windi-Fikriyansyah/pasar_tani/internal/logger"
	"github.com/Windi-Fikriyansyah/pasar_tani/internal/metrics"
)

const (
	scopeList   = "list"
	scopeThread = "thread"
)

// Scheduler keeps the Cache fresh. Poller is the polling implementation; a
// push based source can satisfy the same contract.
type Scheduler interface {
	// Start enters the polling state for the conversation list.
	Start(ctx context.Context)
	// Stop returns to idle and cancels every timer and in-flight request.
	Stop()
	// OpenThread polls the authoritative thread with peer, replacing any
	// previously open thread.
	OpenThread(ctx context.Context, peer Identity)
	CloseThread()
	// SetVisible suspends polling while the consuming view is hidden.
	SetVisible(visible bool)
	// Refresh polls once on demand.
	Refresh(ctx context.Context) error
}

type PollerConfig struct {
	ThreadInterval time.Duration
	ListInterval   time.Duration
	// RefreshPerMinute caps on-demand refreshes; zero means unlimited.
	RefreshPerMinute int
}

func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		ThreadInterval:   5 * time.Second,
		ListInterval:     30 * time.Second,
		RefreshPerMinute: 12,
	}
}

type Poller struct {
	store   Store
	cache   *Cache
	cfg     PollerConfig
	log     *zap.Logger
	metrics *metrics.Sync
	limiter *rate.Limiter

	listBusy atomic.Bool

	mu           sync.Mutex
	parent       context.Context
	running      bool
	visible      bool
	peer         Identity
	loopPeer     Identity
	cancelList   context.CancelFunc
	cancelThread context.CancelFunc
	wg           sync.WaitGroup
}

func NewPoller(store Store, cache *Cache, cfg PollerConfig, log *zap.Logger, m *metrics.Sync) *Poller {
	def := DefaultPollerConfig()
	if cfg.ThreadInterval <= 0 {
		cfg.ThreadInterval = def.ThreadInterval
	}
	if cfg.ListInterval <= 0 {
		cfg.ListInterval = def.ListInterval
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RefreshPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RefreshPerMinute)), cfg.RefreshPerMinute)
	}

	return &Poller{
		store:   store,
		cache:   cache,
		cfg:     cfg,
		log:     logger.OrNop(log),
		metrics: m,
		limiter: limiter,
		visible: true,
	}
}

func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enter(ctx)
	p.syncLoops()
}

func (p *Poller) Stop() {
	p.mu.Lock()
	p.running = false
	p.syncLoops()
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Poller) OpenThread(ctx context.Context, peer Identity) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.peer != peer {
		p.cache.Update(func(s State) State {
			s.ThreadPeer = peer
			s.Thread = nil
			return s
		})
	}
	p.peer = peer
	p.enter(ctx)
	p.syncLoops()
}

func (p *Poller) CloseThread() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.peer == 0 {
		return
	}
	p.peer = 0
	p.cache.Update(func(s State) State {
		s.ThreadPeer = 0
		s.Thread = nil
		return s
	})
	p.syncLoops()
}

func (p *Poller) SetVisible(visible bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.visible = visible
	p.syncLoops()
}

// Polling reports whether any timer is active.
func (p *Poller) Polling() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancelList != nil || p.cancelThread != nil
}

func (p *Poller) Refresh(ctx context.Context) error {
	if !p.limiter.Allow() {
		p.log.Debug("refresh rate limited")
		return nil
	}

	p.mu.Lock()
	peer := p.peer
	p.mu.Unlock()

	var err error
	if peer != 0 {
		err = multierr.Append(err, p.pollThread(ctx, peer))
	}
	return multierr.Append(err, p.pollList(ctx))
}

func (p *Poller) enter(ctx context.Context) {
	if p.running {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	p.parent = ctx
	p.running = true
}

// syncLoops starts or cancels the list and thread loops to match the current
// state. Callers hold p.mu.
func (p *Poller) syncLoops() {
	wantList := p.running && p.visible
	wantThread := wantList && p.peer != 0

	switch {
	case wantList && p.cancelList == nil:
		ctx, cancel := context.WithCancel(p.parent)
		p.cancelList = cancel
		p.loop(ctx, p.cfg.ListInterval, func(ctx context.Context) {
			p.tickList(ctx)
		})
	case !wantList && p.cancelList != nil:
		p.cancelList()
		p.cancelList = nil
	}

	if p.cancelThread != nil && (!wantThread || p.loopPeer != p.peer) {
		p.cancelThread()
		p.cancelThread = nil
		p.loopPeer = 0
	}
	if wantThread && p.cancelThread == nil {
		ctx, cancel := context.WithCancel(p.parent)
		p.cancelThread = cancel
		peer := p.peer
		p.loopPeer = peer
		// a fresh flag so a cancelled fetch for the previous peer cannot
		// hold back the first poll of this one
		busy := new(atomic.Bool)
		p.loop(ctx, p.cfg.ThreadInterval, func(ctx context.Context) {
			p.tickThread(ctx, peer, busy)
			p.tickList(ctx)
		})
	}
}

func (p *Poller) loop(ctx context.Context, every time.Duration, tick func(context.Context)) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		tick(ctx)

		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				tick(ctx)
			}
		}
	}()
}

func (p *Poller) tickList(ctx context.Context) {
	p.background(ctx, scopeList, &p.listBusy, func(ctx context.Context) error {
		return p.pollList(ctx)
	})
}

func (p *Poller) tickThread(ctx context.Context, peer Identity, busy *atomic.Bool) {
	p.background(ctx, scopeThread, busy, func(ctx context.Context) error {
		return p.pollThread(ctx, peer)
	})
}

// background runs one poll without blocking the ticker. A tick that fires
// while the previous poll of the same scope is in flight is skipped, and poll
// failures never leave the scheduler.
func (p *Poller) background(ctx context.Context, scope string, busy *atomic.Bool, poll func(context.Context) error) {
	if !busy.CompareAndSwap(false, true) {
		p.metrics.Skipped(scope)
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer busy.Store(false)

		err := poll(ctx)
		switch {
		case err == nil, errors.Is(err, context.Canceled):
		case errors.Is(err, ErrMethodNotSupported):
			p.log.Warn("poll endpoint unavailable", zap.String("scope", scope), zap.Error(err))
		default:
			p.log.Debug("poll failed, retrying next tick", zap.String("scope", scope), zap.Error(err))
		}
	}()
}

func (p *Poller) pollList(ctx context.Context) error {
	seq := p.cache.Issue(scopeList)

	var received, sent []Message
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		received, err = p.store.FetchReceived(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		sent, err = p.store.FetchSent(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		p.metrics.Poll(scopeList, "error")
		return err
	}

	applied := p.cache.applyIfLatest(scopeList, seq, applyList(received, sent))
	if !applied {
		p.metrics.Stale(scopeList)
		p.log.Debug("discarded stale list response", zap.Uint64("seq", seq))
		return nil
	}
	p.metrics.Poll(scopeList, "ok")
	return nil
}

func (p *Poller) pollThread(ctx context.Context, peer Identity) error {
	seq := p.cache.Issue(scopeThread)

	msgs, err := p.store.FetchConversation(ctx, peer)
	if err != nil {
		p.metrics.Poll(scopeThread, "error")
		return err
	}

	applied := p.cache.applyIfLatest(scopeThread, seq, applyThread(peer, msgs))
	if !applied {
		p.metrics.Stale(scopeThread)
		p.log.Debug("discarded stale thread response", zap.Uint64("seq", seq), zap.Int64("peer", int64(peer)))
		return nil
	}
	p.metrics.Poll(scopeThread, "ok")
	return nil
}

// applyList stores a list response.
func applyList(received, sent []Message) func(State) (State, bool) {
	return func(s State) (State, bool) {
		s.Received = received
		s.Sent = sent
		return reconcile(s), true
	}
}

// applyThread stores a thread response, declining it when the thread with
// peer was closed or replaced while the fetch was in flight.
func applyThread(peer Identity, msgs []Message) func(State) (State, bool) {
	return func(s State) (State, bool) {
		if s.ThreadPeer != peer {
			return s, false
		}
		s.Thread = msgs
		return reconcile(s), true
	}
}
