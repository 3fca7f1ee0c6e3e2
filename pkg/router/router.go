// Package router matches HTTP requests against parameterised path templates.
//
// A Router owns an optional path prefix and an ordered list of routes. Route
// templates are slash-delimited; a segment of the form {name:int} or
// {name:str} captures that path segment as a typed parameter. Resolution is
// first-match-wins in registration order, so more specific routes should be
// registered before catch-alls.
package router

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/cuemby/burrow/pkg/log"
)

// Params holds decoded path parameters. Values are string or int64 depending
// on the template's parameter type.
type Params map[string]any

// Int returns the named parameter as an integer.
func (p Params) Int(name string) int64 {
	v, _ := p[name].(int64)
	return v
}

// String returns the named parameter as a string.
func (p Params) String(name string) string {
	v, _ := p[name].(string)
	return v
}

// Handler is a route endpoint. It returns the response body; errors are
// translated to HTTP statuses by the pipeline.
type Handler func(ctx context.Context, r *http.Request, params Params) ([]byte, error)

type paramKind int

const (
	staticSegment paramKind = iota
	stringParam
	intParam
)

type segment struct {
	kind    paramKind
	literal string
	name    string
}

// Route is one registered (method, template, handler) entry.
type Route struct {
	Method   string
	Template string
	Handler  Handler

	segments []segment
}

// Router registers routes under a shared prefix.
type Router struct {
	prefix string
	routes []*Route
}

// New creates a router. The prefix is prepended to every registered template;
// an empty prefix is fine.
func New(prefix string) *Router {
	return &Router{prefix: normalize(prefix)}
}

// Get registers a GET route.
func (r *Router) Get(template string, handler Handler) *Router {
	return r.handle(http.MethodGet, template, handler)
}

// Post registers a POST route.
func (r *Router) Post(template string, handler Handler) *Router {
	return r.handle(http.MethodPost, template, handler)
}

// Put registers a PUT route.
func (r *Router) Put(template string, handler Handler) *Router {
	return r.handle(http.MethodPut, template, handler)
}

// Patch registers a PATCH route.
func (r *Router) Patch(template string, handler Handler) *Router {
	return r.handle(http.MethodPatch, template, handler)
}

// Delete registers a DELETE route.
func (r *Router) Delete(template string, handler Handler) *Router {
	return r.handle(http.MethodDelete, template, handler)
}

func (r *Router) handle(method, template string, handler Handler) *Router {
	full := normalize(joinPath(r.prefix, template))
	route := &Route{
		Method:   method,
		Template: full,
		Handler:  handler,
		segments: parseTemplate(full),
	}
	r.routes = append(r.routes, route)
	return r
}

// Routes returns registered routes in insertion order.
func (r *Router) Routes() []*Route {
	return r.routes
}

// Resolve matches a (method, path) pair against this router's routes in
// insertion order. It returns the handler and decoded parameters, or nil when
// nothing matches.
func (r *Router) Resolve(method, path string) (Handler, Params) {
	normalized := normalize(path)
	parts := splitPath(normalized)

	for _, route := range r.routes {
		if route.Method != method {
			continue
		}
		if params, ok := match(route.segments, parts); ok {
			return route.Handler, params
		}
	}
	return nil, Params{}
}

// Set is an ordered collection of routers resolved in insertion order.
type Set struct {
	routers []*Router
}

// NewSet builds a set from routers in resolution order.
func NewSet(routers ...*Router) *Set {
	s := &Set{routers: routers}
	s.warnDuplicates()
	return s
}

// Resolve tries each router in order and returns the first match.
func (s *Set) Resolve(method, path string) (Handler, Params) {
	for _, r := range s.routers {
		if handler, params := r.Resolve(method, path); handler != nil {
			return handler, params
		}
	}
	return nil, Params{}
}

// warnDuplicates logs duplicate (method, canonical template) pairs across the
// whole set. The first registration wins at resolution time.
func (s *Set) warnDuplicates() {
	seen := make(map[string]bool)
	for _, r := range s.routers {
		for _, route := range r.routes {
			key := route.Method + " " + canonical(route.segments)
			if seen[key] {
				log.WithComponent("router").Warn().
					Str("method", route.Method).
					Str("template", route.Template).
					Msg("Duplicate route registered; first registration wins")
				continue
			}
			seen[key] = true
		}
	}
}

// normalize ensures a leading slash and strips the trailing slash, keeping
// "/" itself intact.
func normalize(path string) string {
	if path == "" || path == "/" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return strings.TrimSuffix(path, "/")
}

func joinPath(prefix, template string) string {
	if prefix == "/" || prefix == "" {
		return template
	}
	if template == "/" || template == "" {
		return prefix
	}
	return prefix + normalize(template)
}

func splitPath(path string) []string {
	if path == "/" {
		return []string{""}
	}
	return strings.Split(strings.TrimPrefix(path, "/"), "/")
}

func parseTemplate(template string) []segment {
	parts := splitPath(template)
	segments := make([]segment, 0, len(parts))
	for _, part := range parts {
		if strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}") {
			inner := part[1 : len(part)-1]
			name, kind := inner, stringParam
			if idx := strings.IndexByte(inner, ':'); idx >= 0 {
				name = inner[:idx]
				if inner[idx+1:] == "int" {
					kind = intParam
				}
			}
			segments = append(segments, segment{kind: kind, name: name})
			continue
		}
		segments = append(segments, segment{kind: staticSegment, literal: part})
	}
	return segments
}

// canonical renders a template with parameter names erased, so /users/{id:int}
// and /users/{user_id:int} count as duplicates.
func canonical(segments []segment) string {
	parts := make([]string, len(segments))
	for i, seg := range segments {
		switch seg.kind {
		case intParam:
			parts[i] = "{int}"
		case stringParam:
			parts[i] = "{str}"
		default:
			parts[i] = seg.literal
		}
	}
	return "/" + strings.Join(parts, "/")
}

func match(segments []segment, parts []string) (Params, bool) {
	if len(segments) != len(parts) {
		return nil, false
	}
	params := Params{}
	for i, seg := range segments {
		part := parts[i]
		switch seg.kind {
		case staticSegment:
			if seg.literal != part {
				return nil, false
			}
		case intParam:
			n, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return nil, false
			}
			params[seg.name] = n
		case stringParam:
			if part == "" {
				return nil, false
			}
			params[seg.name] = part
		}
	}
	return params, true
}
