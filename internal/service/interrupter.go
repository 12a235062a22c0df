package service

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/model"
)

type interrupterKey struct {
	userID string
	name   string
}

// Interrupter tracks the cancel functions of running operations per user and
// interrupter name so they can be cancelled from another request.
type Interrupter struct {
	mu      sync.Mutex
	running map[interrupterKey]map[string]context.CancelFunc
}

// NewInterrupter creates an empty Interrupter.
func NewInterrupter() *Interrupter {
	return &Interrupter{
		running: make(map[interrupterKey]map[string]context.CancelFunc),
	}
}

// Register derives a cancellable context for an operation. The returned release
// function must be called when the operation ends.
func (i *Interrupter) Register(ctx context.Context, userID, name string) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	key := interrupterKey{userID: userID, name: name}
	token := uuid.New().String()

	i.mu.Lock()
	if i.running[key] == nil {
		i.running[key] = make(map[string]context.CancelFunc)
	}
	i.running[key][token] = cancel
	i.mu.Unlock()

	release := func() {
		i.mu.Lock()
		delete(i.running[key], token)
		if len(i.running[key]) == 0 {
			delete(i.running, key)
		}
		i.mu.Unlock()
		cancel()
	}

	return ctx, release
}

// Interrupt cancels every running operation of userID registered under name.
// Returns true if at least one operation was signalled.
func (i *Interrupter) Interrupt(userID, name string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	cancels := i.running[interrupterKey{userID: userID, name: name}]
	for _, cancel := range cancels {
		cancel()
	}
	return len(cancels) > 0
}

// InterruptAll cancels every running operation of userID.
func (i *Interrupter) InterruptAll(userID string) bool {
	interrupted := false
	for _, name := range model.InterrupterNames {
		if i.Interrupt(userID, name) {
			interrupted = true
		}
	}
	return interrupted
}

// Running returns the number of registered operations of userID under name.
func (i *Interrupter) Running(userID, name string) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.running[interrupterKey{userID: userID, name: name}])
}
