package transit

import (
	"errors"
	"sync"
	"time"
)

// ErrFeedUnavailable is returned when a feed's breaker is open and the
// fetch was skipped.
var ErrFeedUnavailable = errors.New("feed temporarily unavailable")

const (
	breakerClosed = iota
	breakerOpen
	breakerHalfOpen
)

// feedBreaker trips per feed id after consecutive fetch failures so a dead
// MTA feed is not re-fetched on every refresh tick. After the cooldown one
// probe fetch is allowed through; consecutive successes close the breaker
// again.
type feedBreaker struct {
	mu    sync.Mutex
	feeds map[string]*feedState
	now   func() time.Time

	failureThreshold int
	successThreshold int
	cooldown         time.Duration
}

type feedState struct {
	state       int
	failures    int
	successes   int
	lastFailure time.Time
}

func newFeedBreaker(failureThreshold, successThreshold int, cooldown time.Duration) *feedBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if successThreshold <= 0 {
		successThreshold = 2
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &feedBreaker{
		feeds:            make(map[string]*feedState),
		now:              time.Now,
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		cooldown:         cooldown,
	}
}

// allow reports whether a fetch of feedID may proceed. An open breaker
// transitions to half-open once the cooldown has elapsed and admits a
// single probe.
func (b *feedBreaker) allow(feedID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.feeds[feedID]
	if !ok {
		return true
	}
	switch st.state {
	case breakerOpen:
		if b.now().Sub(st.lastFailure) >= b.cooldown {
			st.state = breakerHalfOpen
			st.successes = 0
			return true
		}
		return false
	default:
		return true
	}
}

// record feeds the outcome of a fetch back into the breaker.
func (b *feedBreaker) record(feedID string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.feeds[feedID]
	if !ok {
		st = &feedState{}
		b.feeds[feedID] = st
	}

	if err != nil {
		st.failures++
		st.lastFailure = b.now()
		if st.state == breakerHalfOpen || st.failures >= b.failureThreshold {
			st.state = breakerOpen
		}
		return
	}

	switch st.state {
	case breakerHalfOpen:
		st.successes++
		if st.successes >= b.successThreshold {
			st.state = breakerClosed
			st.failures = 0
		}
	default:
		st.failures = 0
	}
}
