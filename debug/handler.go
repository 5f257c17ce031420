// Package debug serves profiling and metrics endpoints, and the HTTP
// middlewares shared with the API listener.
package debug

import (
	"fmt"
	"net/http"
	"net/http/pprof"
	"strings"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewHandler() http.Handler {
	router := mux.NewRouter()
	router.StrictSlash(true)

	router.Methods("GET").Path("/debug/pprof/").HandlerFunc(pprof.Index)
	router.Methods("GET").Path("/debug/pprof/cmdline").HandlerFunc(pprof.Cmdline)
	router.Methods("GET").Path("/debug/pprof/profile").HandlerFunc(pprof.Profile)
	router.Methods("GET").Path("/debug/pprof/symbol").HandlerFunc(pprof.Symbol)
	router.Methods("GET").Path("/debug/pprof/trace").HandlerFunc(pprof.Trace)
	router.Methods("GET").Path("/debug/pprof/goroutine").Handler(pprof.Handler("goroutine"))
	router.Methods("GET").Path("/debug/pprof/heap").Handler(pprof.Handler("heap"))
	router.Methods("GET").Path("/debug/pprof/allocs").Handler(pprof.Handler("allocs"))
	router.Methods("GET").Path("/debug/pprof/block").Handler(pprof.Handler("block"))
	router.Methods("GET").Path("/debug/pprof/mutex").Handler(pprof.Handler("mutex"))

	router.Methods("GET").Path("/metrics").Handler(promhttp.Handler())

	router.Methods("GET").Path("/").Handler(indexHandler(router))

	router.Use(GZipMiddleware)

	return router
}

func indexHandler(r *mux.Router) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		var endpoints []string
		r.Walk(func(route *mux.Route, router *mux.Router, ancestors []*mux.Route) error {
			if routePath, _ := route.GetPathTemplate(); routePath != "" && routePath != "/" {
				endpoints = append(endpoints, routePath)
			}
			return nil
		})

		w.Header().Set("content-type", "text/html; charset=utf-8")

		fmt.Fprintf(w, "<h1>debug</h1>\n<ul>\n")
		for _, endpoint := range endpoints {
			if strings.HasSuffix(endpoint, "/profile") || strings.HasSuffix(endpoint, "/trace") {
				fmt.Fprintf(w, "<li>%s</li>\n", endpoint) // long-running, not linked
				continue
			}
			fmt.Fprintf(w, "<li><a href=\"%[1]s\">%[1]s</a></li>\n", endpoint)
		}
		fmt.Fprintf(w, "</ul>\n")
	})
}
