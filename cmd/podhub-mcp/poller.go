package main

import (
	"context"
	"sync"
	"time"

	"github.com/matthewjhunter/podhub"
	"github.com/sirupsen/logrus"
)

// poller runs a background refresh loop over every subscribed podcast.
type poller struct {
	engine   *podhub.Engine
	interval time.Duration
	log      *logrus.Entry

	mu   sync.Mutex
	done chan struct{}
}

func newPoller(engine *podhub.Engine, interval time.Duration, log *logrus.Entry) *poller {
	return &poller{
		engine:   engine,
		interval: interval,
		log:      log,
		done:     make(chan struct{}),
	}
}

// start launches the background poll loop. It polls immediately, then on
// each tick of the configured interval.
func (p *poller) start(ctx context.Context) {
	go p.loop(ctx)
	p.log.WithField("interval", p.interval).Info("poller started")
}

// stop signals the poll loop to exit.
func (p *poller) stop() {
	close(p.done)
	p.log.Info("poller stopped")
}

// poll runs a single refresh cycle. Cycles never overlap; the podcast_refresh
// tool shares this lock with the background loop.
func (p *poller) poll(ctx context.Context) (*podhub.RefreshAllResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	result, err := p.engine.RefreshAll(ctx)
	if err != nil {
		return nil, err
	}

	p.log.WithFields(logrus.Fields{
		"shows":        result.Total,
		"refreshed":    result.Refreshed,
		"not_modified": result.NotModified,
		"failed":       result.Failed,
		"added":        result.Added,
	}).Info("poll completed")
	return result, nil
}

func (p *poller) loop(ctx context.Context) {
	if _, err := p.poll(ctx); err != nil {
		p.log.WithError(err).Warn("initial poll error")
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.poll(ctx); err != nil {
				p.log.WithError(err).Warn("poll error")
			}
		}
	}
}
