package types

import (
	"context"

	"github.com/dataplane/orm/consts"
)

type ctxKey string

const (
	ctxKeyUserID    ctxKey = "user_id"
	ctxKeyRequestID ctxKey = "request_id"
	ctxKeyTraceID   ctxKey = "trace_id"
)

// DatabaseContext carries the caller identity and trace metadata that
// flows from a host-side request down into C11's model-hook dispatch.
// It wraps a context.Context rather than replacing it, so cancellation
// and deadlines still propagate normally.
type DatabaseContext struct {
	UserID    string
	RequestID string
	TraceID   string
	SpanID    string

	ctx context.Context
}

// NewDatabaseContext builds a DatabaseContext around ctx. A nil ctx
// defaults to context.Background().
func NewDatabaseContext(ctx context.Context) *DatabaseContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &DatabaseContext{ctx: ctx}
}

// Context returns the underlying context.Context with identity/trace
// metadata injected as values, for propagation into driver calls that
// accept a context.Context (connection acquire, query execution).
func (dc *DatabaseContext) Context() context.Context {
	if dc == nil || dc.ctx == nil {
		return context.Background()
	}
	c := dc.ctx
	if len(dc.UserID) != 0 {
		c = context.WithValue(c, ctxKeyUserID, dc.UserID)
	}
	if len(dc.RequestID) != 0 {
		c = context.WithValue(c, ctxKeyRequestID, dc.RequestID)
	}
	if len(dc.TraceID) != 0 {
		c = context.WithValue(c, ctxKeyTraceID, dc.TraceID)
	}
	return c
}

// ModelContext is passed to every Model lifecycle hook (CreateBefore,
// UpdateAfter, ...). It exposes the ambient DatabaseContext and the
// phase currently executing, so a hook can distinguish "about to
// create" from "about to update" without two separate callback types.
type ModelContext struct {
	dbctx *DatabaseContext
	phase consts.Phase
}

// NewModelContext builds a ModelContext for dispatching hooks during the
// given phase.
func NewModelContext(dbctx *DatabaseContext, phase consts.Phase) *ModelContext {
	if dbctx == nil {
		dbctx = NewDatabaseContext(nil)
	}
	return &ModelContext{dbctx: dbctx, phase: phase}
}

func (mc *ModelContext) Context() context.Context          { return mc.dbctx.Context() }
func (mc *ModelContext) DatabaseContext() *DatabaseContext { return mc.dbctx }
func (mc *ModelContext) Phase() consts.Phase                { return mc.phase }
