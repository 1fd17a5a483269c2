package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/username/ledgerdesk/backend/src/apperrors"
	"github.com/username/ledgerdesk/backend/src/logger"
	"github.com/username/ledgerdesk/backend/src/models"
)

// BootstrapState is the customer-resolution state of a transaction session.
type BootstrapState string

const (
	StateIdle              BootstrapState = "idle"
	StateResolvingCustomer BootstrapState = "resolving_customer"
	StateReady             BootstrapState = "ready"
	StateFailed            BootstrapState = "failed"
)

// bootstrapTransitions lists the allowed moves. Restore may enter Ready from anywhere;
// Failed is reachable only from ResolvingCustomer.
var bootstrapTransitions = map[BootstrapState]map[BootstrapState]bool{
	StateIdle:              {StateIdle: true, StateResolvingCustomer: true, StateReady: true},
	StateResolvingCustomer: {StateIdle: true, StateResolvingCustomer: true, StateReady: true, StateFailed: true},
	StateReady:             {StateIdle: true, StateResolvingCustomer: true, StateReady: true},
	StateFailed:            {StateIdle: true, StateResolvingCustomer: true, StateReady: true},
}

// ErrorView is an error turned into displayable state.
type ErrorView struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func newErrorView(err error) *ErrorView {
	if err == nil {
		return nil
	}
	return &ErrorView{Kind: apperrors.KindName(err), Message: apperrors.UserMessage(err)}
}

// BootstrapStatus is a consistent copy of the bootstrap state.
type BootstrapStatus struct {
	State      BootstrapState           `json:"state"`
	CustomerID string                   `json:"customerId,omitempty"`
	Snapshot   *models.CustomerSnapshot `json:"snapshot,omitempty"`
	Generation uint64                   `json:"generation"`
	Error      *ErrorView               `json:"error,omitempty"`
	ResolvedAt *time.Time               `json:"resolvedAt,omitempty"`
}

// TransactionBootstrap resolves the active customer of one transaction session.
//
// Every selection takes a new generation token. A resolution result is applied only if
// its token is still the latest; older requests are cancelled and their results dropped.
type TransactionBootstrap struct {
	resolver  CustomerSnapshotResolver
	sessionID string
	now       func() time.Time

	mu         sync.Mutex
	state      BootstrapState
	customerID string
	snapshot   *models.CustomerSnapshot
	generation uint64
	cancel     context.CancelFunc
	lastErr    error
	resolvedAt time.Time
}

// NewTransactionBootstrap creates a bootstrap in the Idle state.
func NewTransactionBootstrap(resolver CustomerSnapshotResolver, sessionID string) *TransactionBootstrap {
	return &TransactionBootstrap{
		resolver:  resolver,
		sessionID: sessionID,
		now:       time.Now,
		state:     StateIdle,
	}
}

// SelectCustomer resolves customerID and blocks until the resolution settles. Failures
// are recorded in the returned status, not returned as errors. A call whose request was
// superseded returns the status produced by the newer request.
func (b *TransactionBootstrap) SelectCustomer(ctx context.Context, customerID string) BootstrapStatus {
	customerID = strings.TrimSpace(customerID)
	log := logger.WithSession(ctx, "transaction", b.sessionID)

	b.mu.Lock()
	if customerID == "" {
		b.resetLocked(StateIdle)
		status := b.statusLocked()
		b.mu.Unlock()
		return status
	}
	if customerID == b.customerID && (b.state == StateReady || b.state == StateResolvingCustomer) {
		status := b.statusLocked()
		b.mu.Unlock()
		log.Debug("Customer already active, ignoring re-selection", "customerID", customerID)
		return status
	}

	b.cancelInFlightLocked()
	b.mustTransitionLocked(StateResolvingCustomer)
	b.generation++
	token := b.generation
	b.customerID = customerID
	b.snapshot = nil
	b.lastErr = nil
	reqCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.mu.Unlock()

	log.Info("Resolving customer", "customerID", customerID, "generation", token)
	snapshot, err := b.resolver.Resolve(reqCtx, customerID)

	b.mu.Lock()
	defer b.mu.Unlock()
	cancel()

	if token != b.generation {
		log.Info("Discarding superseded customer resolution", "customerID", customerID, "generation", token, "latest", b.generation)
		return b.statusLocked()
	}
	b.cancel = nil

	if err == nil && snapshot == nil {
		err = apperrors.New("SelectCustomer", apperrors.ErrNotFound, fmt.Sprintf("Customer %s could not be resolved.", customerID))
	}
	if err != nil {
		b.mustTransitionLocked(StateFailed)
		b.snapshot = nil
		b.lastErr = err
		log.Warn("Customer resolution failed", "customerID", customerID, "generation", token, "error", err)
		return b.statusLocked()
	}

	frozen := *snapshot
	b.mustTransitionLocked(StateReady)
	b.snapshot = &frozen
	b.resolvedAt = b.now()
	log.Info("Customer resolved", "customerID", customerID, "generation", token)
	return b.statusLocked()
}

// Restore enters Ready with a snapshot persisted on an existing document, without
// consulting the ledger. Used for invoice edit and quote conversion.
func (b *TransactionBootstrap) Restore(snapshot models.CustomerSnapshot) BootstrapStatus {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.cancelInFlightLocked()
	b.mustTransitionLocked(StateReady)
	b.generation++
	b.customerID = snapshot.CustomerID
	b.snapshot = &snapshot
	b.lastErr = nil
	b.resolvedAt = b.now()
	return b.statusLocked()
}

// Discard cancels any in-flight resolution and returns to Idle.
func (b *TransactionBootstrap) Discard() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetLocked(StateIdle)
}

// Status returns a copy of the current state.
func (b *TransactionBootstrap) Status() BootstrapStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.statusLocked()
}

// Snapshot returns a copy of the active snapshot, if Ready.
func (b *TransactionBootstrap) Snapshot() (models.CustomerSnapshot, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateReady || b.snapshot == nil {
		return models.CustomerSnapshot{}, false
	}
	return *b.snapshot, true
}

func (b *TransactionBootstrap) resetLocked(to BootstrapState) {
	b.cancelInFlightLocked()
	b.mustTransitionLocked(to)
	b.generation++
	b.customerID = ""
	b.snapshot = nil
	b.lastErr = nil
	b.resolvedAt = time.Time{}
}

func (b *TransactionBootstrap) cancelInFlightLocked() {
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
}

func (b *TransactionBootstrap) mustTransitionLocked(to BootstrapState) {
	if !bootstrapTransitions[b.state][to] {
		panic(fmt.Sprintf("bootstrap: illegal transition %s -> %s", b.state, to))
	}
	b.state = to
}

func (b *TransactionBootstrap) statusLocked() BootstrapStatus {
	status := BootstrapStatus{
		State:      b.state,
		CustomerID: b.customerID,
		Generation: b.generation,
		Error:      newErrorView(b.lastErr),
	}
	if b.snapshot != nil {
		copied := *b.snapshot
		status.Snapshot = &copied
	}
	if !b.resolvedAt.IsZero() && b.state == StateReady {
		resolvedAt := b.resolvedAt
		status.ResolvedAt = &resolvedAt
	}
	return status
}
