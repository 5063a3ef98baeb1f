package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/invertase/react-native-firebase/internal/nativeerr"
	"github.com/invertase/react-native-firebase/internal/ws"
)

type Health struct {
	Status  string `json:"status"`
	Apps    int    `json:"apps"`
	Clients int    `json:"clients"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("write response failed", "err", err)
	}
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, Health{
		Status:  "ok",
		Apps:    len(h.svc.Apps.List()),
		Clients: h.hub.Len(),
	})
}

func (h *Handler) HandleApps(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.svc.Apps.List())
}

// HandleCall runs a single request posted as JSON. Methods that need
// events, such as listeners and transactions, only work over the
// websocket.
func (h *Handler) HandleCall(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, ws.MaxMessageSize))
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, Response{Error: nativeerr.Wrap(nativeerr.InvalidArgument, err)})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(h.CallJSON(r.Context(), raw)); err != nil {
		h.logger.Warn("write response failed", "err", err)
	}
}
