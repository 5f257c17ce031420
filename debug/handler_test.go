package debug_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-kit/log"
	"github.com/gorilla/mux"

	"github.com/cloudx-io/confidentialbid/debug"
)

func TestHandler(t *testing.T) {
	server := httptest.NewServer(debug.NewHandler())
	defer server.Close()

	for _, path := range []string{"/", "/metrics"} {
		resp, err := http.Get(server.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if want, have := http.StatusOK, resp.StatusCode; want != have {
			t.Errorf("GET %s: want %d, have %d", path, want, have)
		}
		if path == "/" && !strings.Contains(string(body), "/metrics") {
			t.Errorf("index does not list /metrics: %s", body)
		}
	}
}

func TestMetricsMiddleware(t *testing.T) {
	router := mux.NewRouter()
	router.Methods("GET").Path("/teapot").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	router.Use(debug.MetricsMiddleware)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/teapot", nil))

	if want, have := http.StatusTeapot, rec.Code; want != have {
		t.Errorf("want %d, have %d", want, have)
	}
}

func TestLoggingMiddleware(t *testing.T) {
	var buf strings.Builder
	logger := log.NewLogfmtLogger(&buf)

	router := mux.NewRouter()
	router.Methods("POST").Path("/auctions/{auction}/close").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(debug.ErrorCodeHeader, "AuctionNotEnded")
		w.WriteHeader(http.StatusConflict)
	})
	router.Use(debug.LoggingMiddleware(logger))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/auctions/abc/close", nil))

	line := buf.String()
	for _, want := range []string{
		`route="POST /auctions/{auction}/close"`,
		"code=409",
		"error_code=AuctionNotEnded",
	} {
		if !strings.Contains(line, want) {
			t.Errorf("log line %q lacks %q", line, want)
		}
	}
}
