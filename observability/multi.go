package observability

import "context"

type multiObserver []Observer

func (m multiObserver) OnEvent(ctx context.Context, event Event) {
	for _, obs := range m {
		obs.OnEvent(ctx, event)
	}
}

// Combine returns an Observer that forwards each event to every given
// observer in order. Nil and no-op observers are dropped and nested
// combinations are flattened; with nothing left Combine returns
// NoOpObserver, and with one observer it returns that observer.
func Combine(observers ...Observer) Observer {
	var flat multiObserver
	for _, obs := range observers {
		switch o := obs.(type) {
		case nil, NoOpObserver:
		case multiObserver:
			flat = append(flat, o...)
		default:
			flat = append(flat, o)
		}
	}

	switch len(flat) {
	case 0:
		return NoOpObserver{}
	case 1:
		return flat[0]
	default:
		return flat
	}
}
