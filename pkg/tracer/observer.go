//go:build linux

package tracer

import "go.uber.org/zap"

// Observer follows the lifecycle of traced processes. Calls come from the
// goroutine running Session.Run and must not block.
type Observer interface {
	// ProcessStarted is called once the process's first image is known.
	ProcessStarted(*Process) error
	// ProcessReplaced is called after every exec.
	ProcessReplaced(*Process) error
	// ProcessStopped is called after the trace streams are closed.
	ProcessStopped(*Process) error
}

type DefaultObserver struct{}

func (d *DefaultObserver) ProcessStarted(proc *Process) error {
	return nil
}

func (d *DefaultObserver) ProcessReplaced(proc *Process) error {
	return nil
}

func (d *DefaultObserver) ProcessStopped(proc *Process) error {
	return nil
}

// WithObserver adds o to the observers notified of process lifecycle
// changes.
func WithObserver(o Observer) Option {
	return func(s *Session) { s.observers = append(s.observers, o) }
}

func (s *Session) notify(p *Process, event string, fn func(Observer, *Process) error) {
	for _, o := range s.observers {
		if err := fn(o, p); err != nil {
			s.logger.Warn("observer failed",
				zap.String("event", event),
				zap.Int("pid", p.Pid),
				zap.Error(err))
		}
	}
}

func (s *Session) started(p *Process) {
	p.started = true
	s.notify(p, "started", Observer.ProcessStarted)
}

// Exe is the executable path of the current image, empty until the first
// maps scan.
func (p *Process) Exe() string { return p.exe }

// Written is the number of uncompressed bytes accepted into the context
// stream.
func (p *Process) Written() uint64 { return p.streams.Context.Written() }

// Dropped is the number of events refused by the context size cap.
func (p *Process) Dropped() uint64 { return p.streams.Context.Dropped() }
