package whatsapp

import (
	"context"
	"time"
)

// poller runs fn on a fixed interval until stopped or until fn returns false.
type poller struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func startPoller(interval time.Duration, immediate bool, fn func(ctx context.Context) bool) *poller {
	ctx, cancel := context.WithCancel(context.Background())
	p := &poller{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(p.done)
		if immediate && !fn(ctx) {
			return
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if ctx.Err() != nil || !fn(ctx) {
					return
				}
			}
		}
	}()
	return p
}

// stop cancels the poller and waits for an in-flight run to return. It must
// not be called from inside fn.
func (p *poller) stop() {
	if p == nil {
		return
	}
	p.cancel()
	<-p.done
}

func (p *poller) running() bool {
	if p == nil {
		return false
	}
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}
