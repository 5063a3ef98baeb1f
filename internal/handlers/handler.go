// Package handlers dispatches bridge calls by method name and serves the
// bridge transports.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/tidwall/gjson"

	"github.com/invertase/react-native-firebase/internal/nativeerr"
	"github.com/invertase/react-native-firebase/internal/service"
	"github.com/invertase/react-native-firebase/internal/ws"
)

// Request is one inbound call: {"id": 1, "method": "database.on", "args": {...}}.
type Request struct {
	ID     string
	Method string
	Args   gjson.Result
}

func ParseRequest(raw []byte) (Request, error) {
	if !gjson.ValidBytes(raw) {
		return Request{}, nativeerr.New(nativeerr.InvalidArgument, "request is not valid json")
	}
	r := gjson.ParseBytes(raw)
	req := Request{
		ID:     r.Get("id").String(),
		Method: r.Get("method").String(),
		Args:   r.Get("args"),
	}
	if req.Method == "" {
		return req, nativeerr.New(nativeerr.InvalidArgument, "request has no method")
	}
	return req, nil
}

type Response struct {
	ID     string           `json:"id"`
	Result any              `json:"result,omitempty"`
	Error  *nativeerr.Error `json:"error,omitempty"`
}

type method func(ctx context.Context, args gjson.Result) (any, error)

type Handler struct {
	svc     *service.Services
	hub     *ws.Hub
	logger  *slog.Logger
	methods map[string]method
	// async methods may wait on the network or on events and run off the
	// connection's read loop.
	async map[string]bool
}

func New(hub *ws.Hub, svc *service.Services, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{svc: svc, hub: hub, logger: logger}
	h.methods = map[string]method{
		"app.initializeApp": h.initializeApp,
		"app.deleteApp":     h.deleteApp,
		"app.listApps":      h.listApps,

		"database.on":                   h.databaseOn,
		"database.off":                  h.databaseOff,
		"database.once":                 h.databaseOnce,
		"database.set":                  h.databaseSet,
		"database.update":               h.databaseUpdate,
		"database.remove":               h.databaseRemove,
		"database.transactionStart":     h.databaseTransactionStart,
		"database.transactionTryCommit": h.databaseTransactionTryCommit,

		"firestore.documentOnSnapshot":   h.documentOnSnapshot,
		"firestore.collectionOnSnapshot": h.collectionOnSnapshot,
		"firestore.offSnapshot":          h.offSnapshot,
		"firestore.documentGet":          h.documentGet,
		"firestore.collectionGet":        h.collectionGet,
		"firestore.documentSet":          h.documentSet,
		"firestore.documentUpdate":       h.documentUpdate,
		"firestore.documentDelete":       h.documentDelete,
		"firestore.documentBatch":        h.documentBatch,
		"firestore.transactionBegin":     h.transactionBegin,
		"firestore.transactionTryCommit": h.transactionTryCommit,
		"firestore.transactionDispose":   h.transactionDispose,
	}
	h.async = map[string]bool{
		"database.once":            true,
		"database.set":             true,
		"database.update":          true,
		"database.remove":          true,
		"firestore.documentGet":    true,
		"firestore.collectionGet":  true,
		"firestore.documentSet":    true,
		"firestore.documentUpdate": true,
		"firestore.documentDelete": true,
		"firestore.documentBatch":  true,
	}
	return h
}

// Call runs one request. Failures are reported in the response, never
// returned.
func (h *Handler) Call(ctx context.Context, req Request) Response {
	m, ok := h.methods[req.Method]
	if !ok {
		return Response{ID: req.ID, Error: nativeerr.New(nativeerr.Unimplemented, "unknown method %q", req.Method)}
	}
	result, err := m(ctx, req.Args)
	if err != nil {
		coded := nativeerr.From(err)
		h.logger.Debug("call failed",
			"id", req.ID,
			"method", req.Method,
			"code", coded.Code,
			"err", err,
		)
		return Response{ID: req.ID, Error: coded}
	}
	return Response{ID: req.ID, Result: result}
}

// CallJSON decodes raw, runs it and encodes the response.
func (h *Handler) CallJSON(ctx context.Context, raw []byte) []byte {
	var resp Response
	req, err := ParseRequest(raw)
	if err != nil {
		resp = Response{ID: req.ID, Error: nativeerr.From(err)}
	} else {
		resp = h.Call(ctx, req)
	}
	return h.encode(resp)
}

func (h *Handler) encode(resp Response) []byte {
	out, err := json.Marshal(resp)
	if err != nil {
		h.logger.Error("encode response failed", "id", resp.ID, "err", err)
		out, _ = json.Marshal(Response{ID: resp.ID, Error: nativeerr.Wrap(nativeerr.Internal, err)})
	}
	return out
}
