// Package poll is the degraded-mode fallback: when the realtime
// transport exhausts its reconnect budget the poller keeps the store
// current over REST, fetching the chat list and the active chat's
// messages on an interval while the app is visible. The fetches land in
// the same store entry points as pushed frames, so the rest of the
// client cannot tell the two sources apart.
package poll

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/tmarcondes/pulse/internal/bus"
	"github.com/tmarcondes/pulse/internal/state"
	"go.uber.org/zap"
)

// API is the read surface the poller needs from the REST client.
type API interface {
	Chats(ctx context.Context) ([]*state.Chat, error)
	Messages(ctx context.Context, chatID int64, limit int, beforeID int64) ([]*state.Message, bool, error)
}

// Options tune the polling loop.
type Options struct {
	Interval          time.Duration
	ResumeProbability float64
}

// Poller runs the fallback loop. It activates on conn.degraded and
// deactivates on conn.connected.
type Poller struct {
	api    API
	store  *state.Store
	bus    *bus.Bus
	logger *zap.Logger
	resume func(ctx context.Context) error

	interval   time.Duration
	resumeProb float64
	rand       func() float64

	mu      sync.Mutex
	active  bool
	visible bool
}

// New creates a poller. resume is invoked to probe the primary
// transport for recovery.
func New(api API, s *state.Store, b *bus.Bus, logger *zap.Logger, resume func(ctx context.Context) error, opts Options) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.ResumeProbability <= 0 {
		opts.ResumeProbability = 0.2
	}
	return &Poller{
		api:        api,
		store:      s,
		bus:        b,
		logger:     logger,
		resume:     resume,
		interval:   opts.Interval,
		resumeProb: opts.ResumeProbability,
		rand:       rand.Float64,
		visible:    true,
	}
}

// SetVisible reports app foreground visibility. Polling pauses while
// hidden.
func (p *Poller) SetVisible(visible bool) {
	p.mu.Lock()
	p.visible = visible
	p.mu.Unlock()
}

// Active reports whether the poller is in fallback mode.
func (p *Poller) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

func (p *Poller) shouldPoll() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active && p.visible
}

// Run drives the poller until ctx is cancelled. Meant to run on its own
// goroutine.
func (p *Poller) Run(ctx context.Context) {
	events, unsub := p.bus.Subscribe("conn.", 16)
	defer unsub()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev := <-events:
			switch ev.Kind {
			case bus.ConnDegraded:
				p.mu.Lock()
				entered := !p.active
				p.active = true
				p.mu.Unlock()
				if entered {
					p.logger.Warn("realtime transport degraded, polling over http")
					if p.shouldPoll() {
						p.pollOnce(ctx)
					}
				}
			case bus.ConnConnected:
				p.mu.Lock()
				left := p.active
				p.active = false
				p.mu.Unlock()
				if left {
					p.logger.Info("realtime transport recovered, polling stopped")
				}
			}

		case <-ticker.C:
			if !p.shouldPoll() {
				continue
			}
			p.pollOnce(ctx)
			if p.rand() < p.resumeProb {
				p.logger.Debug("probing realtime transport")
				if err := p.resume(ctx); err != nil {
					p.logger.Debug("transport probe failed", zap.Error(err))
				}
			}
		}
	}
}

// pollOnce fetches the chat list and active chat history. Failures are
// logged and retried on the next tick.
func (p *Poller) pollOnce(ctx context.Context) {
	chats, err := p.api.Chats(ctx)
	if err != nil {
		p.logger.Warn("chat poll failed", zap.Error(err))
		return
	}
	p.store.ReplaceChats(chats)

	chatID := p.store.ActiveChat()
	if chatID == 0 {
		return
	}
	msgs, hasModerator, err := p.api.Messages(ctx, chatID, state.DefaultPageSize, 0)
	if err != nil {
		p.logger.Warn("message poll failed", zap.Int64("chat_id", chatID), zap.Error(err))
		return
	}
	p.store.MergeMessages(chatID, msgs, hasModerator)
}
