// Package mux mounts the billing API on a gorilla/mux router.
package mux

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/mihaimyh/golease/internal/httputil"
	"github.com/mihaimyh/golease/pkg/api"
)

// Register mounts every API endpoint directly on r, each wrapped by the given
// net/http middleware (see middleware/http), and returns r.
//
// Each path is a single route that dispatches on the request method, so a
// known path with an unsupported method answers 405 with an Allow header
// even when r is a PathPrefix subrouter.
func Register(r *mux.Router, h *api.Handler, middleware ...func(http.Handler) http.Handler) *mux.Router {
	if h == nil {
		panic("golease/mux: api handler is required")
	}

	var paths []string
	routes := make(map[string]*pathRoute)
	for _, e := range h.Endpoints() {
		pr, ok := routes[e.Path]
		if !ok {
			pr = &pathRoute{methods: make(map[string]http.Handler)}
			routes[e.Path] = pr
			paths = append(paths, e.Path)
		}
		pr.methods[e.Method] = e.Handler
		pr.allow = append(pr.allow, e.Method)
	}

	for _, path := range paths {
		r.Handle(path, wrap(routes[path], middleware))
	}
	return r
}

// pathRoute serves every method registered for one path.
type pathRoute struct {
	methods map[string]http.Handler
	allow   []string
}

func (p *pathRoute) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	next, ok := p.methods[req.Method]
	if !ok {
		w.Header().Set("Allow", strings.Join(p.allow, ", "))
		httputil.WriteError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", req.Method))
		return
	}
	next.ServeHTTP(w, req)
}

// wrap applies middleware so that the first one given runs outermost.
func wrap(h http.Handler, middleware []func(http.Handler) http.Handler) http.Handler {
	for i := len(middleware) - 1; i >= 0; i-- {
		h = middleware[i](h)
	}
	return h
}
