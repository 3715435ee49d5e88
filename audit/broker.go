package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/stephnangue/vortex/logger"
)

var ErrNoSinkSucceeded = errors.New("no audit sink accepted the entry")

// Broker fans audit entries out to every registered sink. An entry counts as
// recorded when at least one sink accepted it.
type Broker struct {
	mu     sync.RWMutex
	sinks  map[string]Sink
	salter *Salter
	log    logger.Logger
	now    func() time.Time
}

// NewBroker returns a broker without sinks. salter may be nil, in which case
// binding contexts are dropped from entries instead of salted.
func NewBroker(salter *Salter, log logger.Logger) *Broker {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Broker{
		sinks:  make(map[string]Sink),
		salter: salter,
		log:    log,
		now:    time.Now,
	}
}

// RegisterSink adds a named sink.
func (b *Broker) RegisterSink(name string, sink Sink) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.sinks[name]; exists {
		return fmt.Errorf("audit sink %q already registered", name)
	}
	b.sinks[name] = sink
	return nil
}

// Sinks returns the registered sink names in order.
func (b *Broker) Sinks() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	names := make([]string, 0, len(b.sinks))
	for name := range b.sinks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Log records e. A nil broker or one without sinks discards it.
func (b *Broker) Log(ctx context.Context, e *Entry) error {
	if b == nil {
		return nil
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.sinks) == 0 {
		return nil
	}

	out := *e
	if out.Timestamp.IsZero() {
		out.Timestamp = b.now().UTC()
	}
	if b.salter != nil {
		out.BindingContext = b.salter.Salt(out.BindingContext)
	} else {
		out.BindingContext = ""
	}

	line, err := json.Marshal(&out)
	if err != nil {
		return fmt.Errorf("failed to format audit entry: %w", err)
	}

	var errs []error
	for name, sink := range b.sinks {
		if err := sink.Write(line); err != nil {
			b.log.Error("audit sink write failed",
				logger.String("sink", name),
				logger.String("event", out.Type),
				logger.Err(err))
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if len(errs) == len(b.sinks) {
		return errors.Join(append([]error{ErrNoSinkSucceeded}, errs...)...)
	}
	return nil
}

// Close closes every sink.
func (b *Broker) Close() error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	var errs []error
	for name, sink := range b.sinks {
		if err := sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	b.sinks = make(map[string]Sink)
	return errors.Join(errs...)
}
