package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/growsmart/internal/pkg/validate"
)

// DeviceHeader names the header carrying the client's stable device id.
const DeviceHeader = "X-Device-ID"

// deviceIDTag accepts only generated ids; short guessable names are refused.
const deviceIDTag = "required,uuid|ulid"

// Device rejects requests without a usable device id and injects it into context.
func Device(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(DeviceHeader))
		if err := validate.Var("device", DeviceHeader, id, deviceIDTag); err != nil {
			writeJSONError(w, http.StatusBadRequest, "validation", "missing or invalid "+DeviceHeader+" header: expected a UUID or ULID")
			return
		}
		ctx := context.WithValue(r.Context(), DeviceKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// DeviceFromContext returns the device id injected by Device.
func DeviceFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(DeviceKey).(string)
	return id, ok && id != ""
}
