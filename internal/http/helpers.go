package http

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
)

// pathID parses the named mux variable as a positive id.
func pathID(r *http.Request, name string) (int64, error) {
	raw := mux.Vars(r)[name]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return id, nil
}

// sanitizeInput removes control characters except tab, newline and carriage
// return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// nodeID is the DOM id of an explorer node. Zero components are omitted.
func nodeID(weekID, sourceID, categoryID int64) string {
	var b strings.Builder
	b.WriteString("node-w")
	b.WriteString(strconv.FormatInt(weekID, 10))
	if sourceID > 0 {
		b.WriteString("-s")
		b.WriteString(strconv.FormatInt(sourceID, 10))
	}
	if categoryID > 0 {
		b.WriteString("-c")
		b.WriteString(strconv.FormatInt(categoryID, 10))
	}
	return b.String()
}
