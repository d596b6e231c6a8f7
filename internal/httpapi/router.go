package httpapi

import "strings"

// Handler processes a matched request; params holds the path segments
// captured by {name} patterns. Returning an *APIError maps it through
// StatusFor; any other error is treated as an internal error.
type Handler func(req *Request, params map[string]string) (*Response, error)

// Endpoint is one routable (method, pattern) pair, grounded directly on
// the original Endpoint::matchea_con_patron segment-count matcher.
type Endpoint struct {
	Method  Method
	Pattern string
	Handler Handler
}

// match reports whether path satisfies e's pattern, returning the
// captured path parameters. Patterns and paths are compared by segment
// count (not by any wildcard suffix), literal segments must match
// byte-for-byte, and a path with an empty trailing segment (i.e. a
// trailing slash) never matches.
func (e Endpoint) match(path string) (map[string]string, bool) {
	patternSegs := strings.Split(e.Pattern, "/")
	pathSegs := strings.Split(path, "/")
	if len(patternSegs) != len(pathSegs) {
		return nil, false
	}
	if last := pathSegs[len(pathSegs)-1]; last == "" {
		return nil, false
	}

	params := make(map[string]string)
	for i, pseg := range patternSegs {
		if strings.HasPrefix(pseg, "{") && strings.HasSuffix(pseg, "}") {
			params[pseg[1:len(pseg)-1]] = pathSegs[i]
			continue
		}
		if pseg != pathSegs[i] {
			return nil, false
		}
	}
	return params, true
}

// Router holds the registered endpoints and dispatches by method then
// pattern, in registration order — the first structural match wins.
type Router struct {
	endpoints []Endpoint
}

// NewRouter builds an empty router.
func NewRouter() *Router {
	return &Router{}
}

// Handle registers an endpoint.
func (rt *Router) Handle(method Method, pattern string, handler Handler) {
	rt.endpoints = append(rt.endpoints, Endpoint{Method: method, Pattern: pattern, Handler: handler})
}

// Dispatch finds the first endpoint whose method and pattern match the
// request and invokes its handler. No match is a NotFound APIError.
func (rt *Router) Dispatch(req *Request) (*Response, error) {
	for _, e := range rt.endpoints {
		if e.Method != req.Method {
			continue
		}
		params, ok := e.match(req.Path)
		if !ok {
			continue
		}
		return e.Handler(req, params)
	}
	return nil, NotFound("no route matches " + string(req.Method) + " " + req.Path)
}
