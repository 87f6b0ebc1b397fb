package providers

import (
	"net/http"

	"wsd/internal/structures"
)

type Middleware func(http.Handler) http.Handler

type RouterProviderInterface interface {
	Get(url string, handler http.Handler)
	Post(url string, handler http.Handler)
	Use(mw ...Middleware)
	GetRoutes() []structures.Route
}

type RouterProvider struct {
	routes      []structures.Route
	middlewares []Middleware
}

func (rp *RouterProvider) Get(url string, handler http.Handler) {
	rp.routes = append(rp.routes, structures.Route{
		Url:     url,
		Handler: methodHandler(http.MethodGet, handler),
	})
}

func (rp *RouterProvider) Post(url string, handler http.Handler) {
	rp.routes = append(rp.routes, structures.Route{
		Url:     url,
		Handler: methodHandler(http.MethodPost, handler),
	})
}

// Use appends middlewares applied to every route, first registered outermost.
func (rp *RouterProvider) Use(mw ...Middleware) {
	rp.middlewares = append(rp.middlewares, mw...)
}

func (rp *RouterProvider) GetRoutes() []structures.Route {
	if len(rp.middlewares) == 0 {
		return rp.routes
	}
	out := make([]structures.Route, len(rp.routes))
	for i, r := range rp.routes {
		h := r.Handler
		for j := len(rp.middlewares) - 1; j >= 0; j-- {
			h = rp.middlewares[j](h)
		}
		out[i] = structures.Route{Url: r.Url, Handler: h}
	}
	return out
}

func NewRouterProvider() RouterProviderInterface {
	return &RouterProvider{}
}

func methodHandler(method string, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
