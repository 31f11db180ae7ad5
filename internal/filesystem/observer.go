package filesystem

import "sync/atomic"

// RetryEvent is a step in the life of a retried operation.
type RetryEvent string

const (
	// RetryStale is recorded for every ESTALE error.
	RetryStale RetryEvent = "stale"
	// RetryRecovered is recorded when an operation succeeds after a retry.
	RetryRecovered RetryEvent = "recovered"
	// RetryExhausted is recorded when the last retry is still stale.
	RetryExhausted RetryEvent = "exhausted"
)

// RetryEvents lists every RetryEvent.
var RetryEvents = []RetryEvent{RetryStale, RetryRecovered, RetryExhausted}

// Observer receives filesystem metrics. The metrics package implements it;
// this package cannot import metrics without a cycle.
type Observer interface {
	// ObserveOperation records one finished operation ("stat" or "open") on
	// the volume, including its retries.
	ObserveOperation(volume, op string, seconds float64, err error)
	ObserveRetry(volume, op string, ev RetryEvent)
}

type observerHolder struct{ Observer }

var observer atomic.Pointer[observerHolder]

// SetObserver installs o. A nil o turns recording off.
func SetObserver(o Observer) {
	if o == nil {
		observer.Store(nil)
		return
	}
	observer.Store(&observerHolder{o})
}

func observe() Observer {
	if h := observer.Load(); h != nil {
		return h.Observer
	}
	return nil
}
