package audit

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/fleetledger/fleetledger/internal/rbac"
	"github.com/fleetledger/fleetledger/internal/shared"
)

// Enqueuer hands a finished entry to the background queue.
type Enqueuer interface {
	EnqueueAuditRecord(ctx context.Context, entry Entry) error
}

// Recorder wraps handlers and records the eventual outcome of each
// observed request. Enqueue failures are logged and swallowed.
type Recorder struct {
	enqueuer Enqueuer
	logger   *slog.Logger
	now      func() time.Time
}

// NewRecorder constructs a Recorder.
func NewRecorder(enqueuer Enqueuer, logger *slog.Logger) *Recorder {
	return &Recorder{enqueuer: enqueuer, logger: logger, now: time.Now}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(statusCode int) {
	if w.status == 0 {
		w.status = statusCode
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusWriter) Write(data []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(data)
}

// Observe returns a middleware recording the declared action and module.
func (rec *Recorder) Observe(action, module string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			meta := &shared.AuditMeta{}
			ctx := shared.ContextWithAuditMeta(r.Context(), meta)
			shim := &statusWriter{ResponseWriter: w}

			next.ServeHTTP(shim, r.WithContext(ctx))

			status := shim.status
			if status == 0 {
				status = http.StatusOK
			}
			entry := Entry{
				RequestID: middleware.GetReqID(ctx),
				Action:    action,
				Module:    module,
				Reference: meta.Reference,
				Detail:    meta.Detail,
				Success:   status < http.StatusBadRequest,
				Status:    status,
				IP:        r.RemoteAddr,
				UserAgent: r.UserAgent(),
				Occurred:  rec.now(),
			}
			if actor, ok := rbac.ActorFromContext(ctx); ok {
				entry.ActorID = actor.UserID
				entry.ActorRole = string(actor.Role)
				entry.CompanyID = actor.CompanyID
			}

			// The response is already on the wire; nothing past this point
			// may surface to the caller.
			if err := rec.enqueuer.EnqueueAuditRecord(context.WithoutCancel(ctx), entry); err != nil && rec.logger != nil {
				rec.logger.Error("audit enqueue",
					slog.String("action", action),
					slog.String("module", module),
					slog.Any("error", err))
			}
		})
	}
}
