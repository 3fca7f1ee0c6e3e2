// Package appctx carries the per-request ambient frame on context.Context.
//
// The frame gives handlers, the ORM, and event listeners access to the
// current tenant, its database handle, the event bus, and the authenticated
// principal without threading those values through every call signature.
// Middleware installs the frame at the top of the request pipeline; anything
// below reads it with the accessors here.
package appctx

import (
	"context"
	"net/http"

	"github.com/cuemby/burrow/pkg/db"
	"github.com/cuemby/burrow/pkg/events"
)

type frameKey struct{}

// Frame is the per-request ambient state. One frame is created per request
// and shared by pointer, so a later middleware (authentication, language
// negotiation) can fill in fields that earlier stages left empty.
type Frame struct {
	Tenant    string
	Handle    *db.Handle
	Bus       *events.Bus
	Request   *http.Request
	RequestID string
	Language  string

	// Principal is the authenticated user record, nil for anonymous
	// requests. Stored as any to keep this package below the ORM.
	Principal any

	// Cookies accumulates Set-Cookie values during handler execution; the
	// pipeline emits them when the response starts.
	Cookies []*http.Cookie
}

// With returns a context carrying the frame.
func With(ctx context.Context, f *Frame) context.Context {
	return context.WithValue(ctx, frameKey{}, f)
}

// From returns the ambient frame, or nil when called outside a request.
func From(ctx context.Context) *Frame {
	f, _ := ctx.Value(frameKey{}).(*Frame)
	return f
}

// Tenant returns the active tenant namespace, or "" outside a request.
func Tenant(ctx context.Context) string {
	if f := From(ctx); f != nil {
		return f.Tenant
	}
	return ""
}

// Handle returns the tenant-scoped database handle, or nil.
func Handle(ctx context.Context) *db.Handle {
	if f := From(ctx); f != nil {
		return f.Handle
	}
	return nil
}

// Bus returns the event bus, or nil.
func Bus(ctx context.Context) *events.Bus {
	if f := From(ctx); f != nil {
		return f.Bus
	}
	return nil
}

// Principal returns the authenticated user record, or nil.
func Principal(ctx context.Context) any {
	if f := From(ctx); f != nil {
		return f.Principal
	}
	return nil
}

// SetPrincipal records the authenticated user on the ambient frame. No-op
// outside a request.
func SetPrincipal(ctx context.Context, principal any) {
	if f := From(ctx); f != nil {
		f.Principal = principal
	}
}

// AddCookie queues a Set-Cookie header for the response. No-op outside a
// request.
func AddCookie(ctx context.Context, cookie *http.Cookie) {
	if f := From(ctx); f != nil {
		f.Cookies = append(f.Cookies, cookie)
	}
}

// Language returns the negotiated language, or "" outside a request.
func Language(ctx context.Context) string {
	if f := From(ctx); f != nil {
		return f.Language
	}
	return ""
}
