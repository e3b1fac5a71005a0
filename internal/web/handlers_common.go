package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Gaza-Shuhada/gazashuhada-sub001/internal/core"
	"github.com/Gaza-Shuhada/gazashuhada-sub001/internal/web/middleware"
)

// maxJSONBody bounds JSON request bodies. Snapshot uploads have their own limit.
const maxJSONBody = 1 << 20

// principal returns the caller resolved by middleware.Identity.
func principal(r *http.Request) core.Principal {
	return middleware.PrincipalFrom(r.Context())
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 0 {
		return defaultVal
	}
	return i
}

// parsePage reads limit and offset; core normalizes out-of-range values.
func parsePage(r *http.Request) (limit, offset int) {
	return parseIntParam(r, "limit", 0), parseIntParam(r, "offset", 0)
}

// parseBoolParam treats "1", "true", "yes" as true.
func parseBoolParam(r *http.Request, name string) bool {
	switch r.URL.Query().Get(name) {
	case "1", "true", "yes":
		return true
	}
	return false
}

// parseDateParam parses a YYYY-MM-DD query parameter. endOfDay moves the
// result to the last second of that day for inclusive upper bounds.
func parseDateParam(r *http.Request, name string, endOfDay bool) (time.Time, error) {
	val := r.URL.Query().Get(name)
	if val == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", val)
	if err != nil {
		return time.Time{}, core.Validation("parse "+name, core.CodeInvalidValue, "%s must be YYYY-MM-DD, got %q", name, val)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Second)
	}
	return t, nil
}

// decodeJSON reads a JSON body into v. An empty body leaves v unchanged.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return core.Validation("decode request", core.CodeInvalidValue, "invalid JSON body: %v", err)
	}
	return nil
}

// attachment sets headers for a streamed CSV download.
func attachment(w http.ResponseWriter, prefix string) {
	filename := fmt.Sprintf("%s_%s.csv", prefix, time.Now().UTC().Format("20060102_150405"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
}
