package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowOrigin  string
	AllowMethods []string
	AllowHeaders []string
	MaxAge       int
}

// DefaultCORSConfig allows any origin to read the API. Every route is GET.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigin:  "*",
		AllowMethods: []string{http.MethodGet, http.MethodOptions},
		AllowHeaders: []string{"Accept", "Cache-Control", "Last-Event-ID"},
		MaxAge:       86400,
	}
}

func (c CORSConfig) apply(set func(key, value string)) {
	set("Access-Control-Allow-Origin", c.AllowOrigin)
	set("Access-Control-Allow-Methods", strings.Join(c.AllowMethods, ", "))
	set("Access-Control-Allow-Headers", strings.Join(c.AllowHeaders, ", "))
	set("Access-Control-Max-Age", strconv.Itoa(c.MaxAge))
}

// NewCORSMiddleware adds CORS headers to every huma response.
func NewCORSMiddleware(config CORSConfig) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		config.apply(ctx.SetHeader)
		if ctx.Method() == http.MethodOptions {
			ctx.SetStatus(http.StatusNoContent)
			return
		}
		next(ctx)
	}
}

// AddCORSHandler answers preflight requests, which never reach huma
// middleware because no operation is registered for OPTIONS.
func AddCORSHandler(mux *http.ServeMux, config CORSConfig) {
	mux.HandleFunc("OPTIONS /", func(w http.ResponseWriter, r *http.Request) {
		config.apply(w.Header().Set)
		w.WriteHeader(http.StatusNoContent)
	})
}
