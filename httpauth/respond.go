package httpauth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/MrEthical07/credcore"
)

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps an engine error to a status and its public message.
// Lock and rate-limit errors also set Retry-After.
func WriteError(w http.ResponseWriter, err error) {
	var (
		locked  *credcore.LockedError
		limited *credcore.RateLimitError
	)
	switch {
	case errors.As(err, &locked):
		setRetryAfter(w, locked.RetryAfter())
	case errors.As(err, &limited):
		setRetryAfter(w, limited.RetryAfter())
	}
	WriteJSON(w, status(err), errorBody{Error: credcore.PublicMessage(err)})
}

func setRetryAfter(w http.ResponseWriter, d time.Duration) {
	secs := int((d + time.Second - 1) / time.Second)
	w.Header().Set("Retry-After", strconv.Itoa(secs))
}
