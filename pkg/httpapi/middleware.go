package httpapi

import (
	"context"
	"net"
	"net/http"
)

type contextKey string

const transportMetadataKey contextKey = "transportMetadata"

// RequestMetadata captures the caller's network identity so the gateway can
// stamp it onto ingested events as transport metadata.
func RequestMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		meta := make(map[string]string, 2)

		originatorIP := r.Header.Get("X-Forwarded-For")
		if originatorIP == "" {
			originatorIP = r.Header.Get("X-Real-Ip")
		}
		if originatorIP == "" {
			if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
				originatorIP = host
			} else {
				originatorIP = r.RemoteAddr
			}
		}
		if originatorIP != "" {
			meta["originatorIp"] = originatorIP
		}
		if userAgent := r.UserAgent(); userAgent != "" {
			meta["userAgent"] = userAgent
		}

		ctx := context.WithValue(r.Context(), transportMetadataKey, meta)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// transportMetadataFrom returns the metadata captured by RequestMetadata, or
// nil when the middleware did not run.
func transportMetadataFrom(ctx context.Context) map[string]string {
	meta, _ := ctx.Value(transportMetadataKey).(map[string]string)
	return meta
}
