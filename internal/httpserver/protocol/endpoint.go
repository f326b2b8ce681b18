package protocol

import "net/http"

// EndpointRoute binds one method and path to a handler.
type EndpointRoute struct {
	Method  string
	Path    string
	Handler http.Handler
}

// Endpoint is a named bundle of routes registered together.
type Endpoint interface {
	Name() string
	Routes() []EndpointRoute
}

// Register mounts every route of the given endpoints on mux. Nil endpoints
// are skipped.
func Register(mux interface {
	Method(method, pattern string, h http.Handler)
}, endpoints ...Endpoint) []string {
	names := make([]string, 0, len(endpoints))
	for _, ep := range endpoints {
		if ep == nil {
			continue
		}
		for _, route := range ep.Routes() {
			mux.Method(route.Method, route.Path, route.Handler)
		}
		names = append(names, ep.Name())
	}
	return names
}
