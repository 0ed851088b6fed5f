package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/loykin/tuc/internal/autostart"
	"github.com/loykin/tuc/internal/lifecycle"
	"github.com/loykin/tuc/internal/scheduler"
	"github.com/loykin/tuc/internal/script"
)

func sanitizeBase(bp string) string {
	bp = strings.TrimSpace(bp)
	if bp == "" || bp == "/" {
		return ""
	}
	if !strings.HasPrefix(bp, "/") {
		bp = "/" + bp
	}
	return strings.TrimRight(bp, "/")
}

// isAbsScriptPath accepts host-absolute paths as well as Windows drive
// (C:\x) and UNC (\\host\share) forms, whatever OS the daemon runs on.
func isAbsScriptPath(p string) bool {
	if filepath.IsAbs(p) || strings.HasPrefix(p, `\\`) {
		return true
	}
	return len(p) >= 3 && p[1] == ':' && (p[2] == '\\' || p[2] == '/') &&
		(('a' <= p[0] && p[0] <= 'z') || ('A' <= p[0] && p[0] <= 'Z'))
}

// checkScriptPath trims p and rejects empty, relative and ".." paths before
// they reach the validator.
func checkScriptPath(p string) (string, error) {
	p = strings.TrimSpace(p)
	switch {
	case p == "":
		return "", errors.New("path required")
	case strings.ContainsRune(p, 0):
		return "", errors.New("invalid path: contains NUL")
	case !isAbsScriptPath(p):
		return "", errors.New("invalid path: must be absolute")
	}
	for _, seg := range strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return "", errors.New("invalid path: traversal not allowed")
		}
	}
	return p, nil
}

// pathParam reads the ?path= query parameter, writing a 400 when it is unusable.
func pathParam(c *gin.Context) (string, bool) {
	path, err := checkScriptPath(c.Query("path"))
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return "", false
	}
	return path, true
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var se *scheduler.Error
	var ae *autostart.Error
	switch {
	case errors.Is(err, script.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, script.ErrInvalid):
		return http.StatusBadRequest
	case lifecycle.IsNotice(err),
		errors.Is(err, script.ErrAlreadyExists),
		errors.Is(err, script.ErrTaskNameInUse):
		return http.StatusConflict
	case errors.As(err, &se), errors.As(err, &ae):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(c *gin.Context, code int, v any) {
	c.Header("Content-Type", "application/json")
	c.Status(code)
	_ = json.NewEncoder(c.Writer).Encode(v)
}

func writeError(c *gin.Context, err error) {
	writeJSON(c, statusFor(err), errorResp{Error: err.Error()})
}
