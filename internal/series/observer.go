package series

import "time"

// Observer receives lifecycle events from registries and workers. Calls are
// made synchronously from the goroutine that produced the event, so
// implementations must be safe for concurrent use and should return quickly.
type Observer interface {
	WorkerStarted(info WorkerInfo)
	WorkerSetupFailed(key string, err error)
	ItemHandled(info WorkerInfo, elapsed time.Duration, err error)
	WorkerFinished(info WorkerInfo, err error)
	DispatchRejected(key string, err error)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) WorkerStarted(WorkerInfo) {}
func (NopObserver) WorkerSetupFailed(string, error) {}
func (NopObserver) ItemHandled(WorkerInfo, time.Duration, error) {}
func (NopObserver) WorkerFinished(WorkerInfo, error) {}
func (NopObserver) DispatchRejected(string, error) {}

type multiObserver []Observer

// Observers fans events out to every non-nil observer in order.
func Observers(observers ...Observer) Observer {
	out := make(multiObserver, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return NopObserver{}
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

func (m multiObserver) WorkerStarted(info WorkerInfo) {
	for _, o := range m {
		o.WorkerStarted(info)
	}
}

func (m multiObserver) WorkerSetupFailed(key string, err error) {
	for _, o := range m {
		o.WorkerSetupFailed(key, err)
	}
}

func (m multiObserver) ItemHandled(info WorkerInfo, elapsed time.Duration, err error) {
	for _, o := range m {
		o.ItemHandled(info, elapsed, err)
	}
}

func (m multiObserver) WorkerFinished(info WorkerInfo, err error) {
	for _, o := range m {
		o.WorkerFinished(info, err)
	}
}

func (m multiObserver) DispatchRejected(key string, err error) {
	for _, o := range m {
		o.DispatchRejected(key, err)
	}
}
