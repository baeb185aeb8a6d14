package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/loykin/walletvisor/internal/container"
	"github.com/loykin/walletvisor/internal/naming"
	"github.com/loykin/walletvisor/internal/orchestrator"
	"github.com/loykin/walletvisor/internal/reaper"
	"github.com/loykin/walletvisor/internal/rpc"
)

func sanitizeBase(bp string) string {
	bp = strings.TrimSpace(bp)
	if bp == "" || bp == "/" {
		return ""
	}
	if !strings.HasPrefix(bp, "/") {
		bp = "/" + bp
	}
	bp = strings.TrimRight(bp, "/")
	return bp
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, naming.ErrInvalidUsername),
		errors.Is(err, rpc.ErrInvalidAmount),
		errors.Is(err, rpc.ErrInvalidAmountType),
		errors.Is(err, rpc.ErrInvalidAddress),
		errors.Is(err, rpc.ErrInvalidPaymentID):
		return http.StatusBadRequest
	case errors.Is(err, orchestrator.ErrNotCreated):
		return http.StatusNotFound
	case errors.Is(err, orchestrator.ErrNotConnected),
		errors.Is(err, orchestrator.ErrAlreadyCreated),
		errors.Is(err, orchestrator.ErrAlreadyConnected),
		errors.Is(err, container.ErrInUse),
		errors.Is(err, reaper.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, container.ErrPortUnresolved),
		errors.Is(err, rpc.ErrUnreachable),
		errors.Is(err, rpc.ErrUnauthorized):
		return http.StatusBadGateway
	case errors.Is(err, container.ErrUnavailable):
		return http.StatusServiceUnavailable
	}
	var rpcErr *rpc.Error
	if errors.As(err, &rpcErr) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(c *gin.Context, code int, v any) {
	c.Header("Content-Type", "application/json")
	c.Status(code)
	_ = json.NewEncoder(c.Writer).Encode(v)
}

func writeError(c *gin.Context, err error) {
	writeJSON(c, statusFor(err), ErrorResponse{Error: err.Error()})
}
