package usecase

import "context"

// uiLoop serializes every Session mutation onto one goroutine. Adapters
// never touch controller state directly: they post closures here.
type uiLoop struct {
	queue chan func()
	done  chan struct{}
}

func newUILoop() *uiLoop {
	return &uiLoop{
		queue: make(chan func(), 128),
		done:  make(chan struct{}),
	}
}

// post enqueues fn. It reports false once the loop has exited.
func (l *uiLoop) post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}

	select {
	case l.queue <- fn:
		return true
	case <-l.done:
		return false
	}
}

// call runs fn on the loop and waits for it. Never call it from the loop.
func (l *uiLoop) call(fn func()) bool {
	finished := make(chan struct{})
	if !l.post(func() {
		defer close(finished)
		fn()
	}) {
		return false
	}

	select {
	case <-finished:
		return true
	case <-l.done:
		return false
	}
}

func (l *uiLoop) run(ctx context.Context) {
	defer close(l.done)

	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-l.queue:
			fn()
		}
	}
}
