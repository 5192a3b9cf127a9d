package dao

import (
	"github.com/ValentinKolb/dShard/lib/db"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("dao")

type txState uint8

const (
	txIdle txState = iota
	txOpen
	txCommitted
	txRolledBack
	txClosed
)

func (s txState) String() string {
	switch s {
	case txIdle:
		return "Idle"
	case txOpen:
		return "Open"
	case txCommitted:
		return "Committed"
	case txRolledBack:
		return "RolledBack"
	case txClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// TransactionHandler drives one transaction on one shard:
// Idle -> Open -> (Committed | RolledBack) -> Closed.
// A handler is used by a single call and is never shared between goroutines.
type TransactionHandler struct {
	backend  db.Backend
	readOnly bool
	session  db.Session
	state    txState
}

// NewTransactionHandler creates a handler opening its own session on backend.
func NewTransactionHandler(backend db.Backend, readOnly bool) *TransactionHandler {
	return &TransactionHandler{backend: backend, readOnly: readOnly}
}

// NewSessionHandler creates a handler for a session whose transaction is owned by the caller.
// It is used with Execute(..., complete=false) so several calls share one transaction.
func NewSessionHandler(session db.Session) *TransactionHandler {
	return &TransactionHandler{session: session, state: txOpen}
}

// Session returns the session of the open transaction, nil before BeforeStart.
func (h *TransactionHandler) Session() db.Session {
	return h.session
}

// BeforeStart opens a session and begins the transaction.
// On failure the session is closed again and the handler stays Idle.
func (h *TransactionHandler) BeforeStart() error {
	if h.state != txIdle {
		return newError(CodeTransaction, nil, "begin in state %s", h.state)
	}
	session, err := h.backend.Open()
	if err != nil {
		return newError(CodeTransaction, err, "open session")
	}
	if err := session.Begin(db.TxOptions{ReadOnly: h.readOnly}); err != nil {
		if cerr := session.Close(); cerr != nil {
			log.Warningf("closing session %d after failed begin: %v", session.ID(), cerr)
		}
		return newError(CodeTransaction, err, "begin")
	}
	h.session = session
	h.state = txOpen
	return nil
}

// AfterEnd commits the transaction. If the commit fails the transaction is rolled back
// and the commit error is returned. The session is closed in every case.
func (h *TransactionHandler) AfterEnd() error {
	if h.session == nil {
		return nil
	}
	defer h.close()

	if !h.session.Active() {
		return nil
	}
	if err := h.session.Commit(); err != nil {
		if h.session.Active() {
			if rerr := h.session.Rollback(); rerr != nil {
				log.Errorf("rollback of session %d after failed commit: %v", h.session.ID(), rerr)
			}
		}
		h.state = txRolledBack
		return newError(CodeTransaction, err, "commit of session %d", h.session.ID())
	}
	h.state = txCommitted
	return nil
}

// OnError rolls back an active transaction and closes the session.
func (h *TransactionHandler) OnError() {
	if h.session == nil {
		return
	}
	defer h.close()

	if h.session.Active() {
		if err := h.session.Rollback(); err != nil {
			log.Errorf("rollback of session %d: %v", h.session.ID(), err)
		}
	}
	h.state = txRolledBack
}

func (h *TransactionHandler) close() {
	if err := h.session.Close(); err != nil {
		log.Warningf("closing session %d: %v", h.session.ID(), err)
	}
	h.session = nil
	h.state = txClosed
}

// --------------------------------------------------------------------------
// Execution helpers
// --------------------------------------------------------------------------

func identity[R any](r R) (R, error) {
	return r, nil
}

// Execute runs fn(arg) and passes its result to handler, both inside the transaction of h.
// With complete set the transaction is started before and committed after (rolled back on error).
// Without it h must already hold the session of an enclosing transaction.
func Execute[A, R, V any](h *TransactionHandler, fn func(db.Session, A) (R, error), arg A, handler func(R) (V, error), complete bool) (value V, err error) {
	var zero V
	if complete {
		if err := h.BeforeStart(); err != nil {
			return zero, err
		}
		defer func() {
			if p := recover(); p != nil {
				h.OnError()
				panic(p)
			}
		}()
	}
	if h.Session() == nil {
		return zero, newError(CodeTransaction, nil, "no open session")
	}

	result, err := fn(h.Session(), arg)
	if err == nil {
		value, err = handler(result)
	}
	if err != nil {
		if complete {
			h.OnError()
		}
		return zero, err
	}
	if complete {
		if err := h.AfterEnd(); err != nil {
			return zero, err
		}
	}
	return value, nil
}

// Transactional runs fn in its own transaction on backend and commits if fn succeeds.
func Transactional[R any](backend db.Backend, readOnly bool, fn func(db.Session) (R, error)) (R, error) {
	return Execute(NewTransactionHandler(backend, readOnly), func(s db.Session, _ struct{}) (R, error) {
		return fn(s)
	}, struct{}{}, identity[R], true)
}

// RunInSession gives fn raw access to a session of backend inside a read-only transaction.
func RunInSession[R any](backend db.Backend, fn func(db.Session) (R, error)) (R, error) {
	return Transactional(backend, true, fn)
}
