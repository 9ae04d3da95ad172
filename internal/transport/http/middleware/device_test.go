package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDevice_MissingHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	Device(http.HandlerFunc(okHandler)).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), DeviceHeader)
}

func TestDevice_RejectsGuessableIDs(t *testing.T) {
	for _, id := range []string{"1", "phone-1", "0b8f4a52-6a53-4d4c-9a8e", "01J9Z3K8M2Q4R5T6V7W8X9Y0Z"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(DeviceHeader, id)
		rr := httptest.NewRecorder()
		Device(http.HandlerFunc(okHandler)).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code, id)
	}
}

func TestDevice_InjectsID(t *testing.T) {
	for _, id := range []string{"0b8f4a52-6a53-4d4c-9a8e-3f1c2e7d9b10", "01J9Z3K8M2Q4R5T6V7W8X9Y0ZA"} {
		var got string
		h := Device(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, _ = DeviceFromContext(r.Context())
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(DeviceHeader, " "+id+" ")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, id, got)
	}
}
