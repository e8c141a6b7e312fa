// Package httpapi implements the four thin HTTP adapters onto the Registry
// and Forwarder: register, connect (WebSocket upgrade), remove, stats.
//
// Grounded on internal/api/server.go's ServeMux + sendError/sendJSON idiom,
// and internal/websocket/handler.go's query-param-validate-then-upgrade
// sequence for the connect handler.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"wsrouter/internal/appcred"
	"wsrouter/internal/registry"
	"wsrouter/internal/wsconn"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server wires the registry and process-wide knobs (auto-remove, reject,
// process secret) into a ServeMux implementing the four endpoints.
type Server struct {
	reg           *registry.Registry
	processSecret string
	autoRemove    bool
	rejectNoID    bool
	log           zerolog.Logger

	mux *http.ServeMux
}

// New builds a Server ready to be used as an http.Handler.
func New(reg *registry.Registry, processSecret string, autoRemove, rejectNoID bool, log zerolog.Logger) *Server {
	s := &Server{
		reg:           reg,
		processSecret: processSecret,
		autoRemove:    autoRemove,
		rejectNoID:    rejectNoID,
		log:           log,
		mux:           http.NewServeMux(),
	}
	s.mux.HandleFunc("/register", s.handleRegister)
	s.mux.HandleFunc("/connect", s.handleConnect)
	s.mux.HandleFunc("/remove", s.handleRemove)
	s.mux.HandleFunc("/stats", s.handleStats)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleRegister implements GET /register.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key := q.Get("key")
	hostKey := q.Get("host_key")
	if key == "" || hostKey == "" {
		s.sendError(w, ErrMissingParams)
		return
	}

	kind, ok := registry.ParseKind(q.Get("reg_type"))
	if !ok {
		s.sendError(w, registry.ErrMissingRegistrationType)
		return
	}

	id, err := s.reg.Create(registry.CreateParams{
		ParticipantSecret: key,
		HostSecret:        hostKey,
		Kind:              kind,
		RequestedID:       q.Get("id_req"),
		RejectNoID:        s.rejectNoID,
		ProcessSecret:     s.processSecret,
	})
	if err != nil {
		s.sendError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(id))
}

// handleConnect implements GET /connect, upgrading on success.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id := q.Get("id")
	key := q.Get("key")

	reg, ok := s.reg.Lookup(id)
	if !ok {
		s.sendError(w, registry.ErrNotFound)
		return
	}

	if !reg.VerifyParticipant(key, s.processSecret) {
		s.sendError(w, ErrIncorrectKey)
		return
	}

	var role registry.Role
	if reg.Kind() == registry.KindHostClient {
		// Normalize once and reuse the normalized value for both validation
		// and role derivation — spec.md §9's open question resolution.
		sockType := strings.TrimSuffix(q.Get("sock_type"), "/")
		switch sockType {
		case "host":
			role = registry.RoleHost
		case "client":
			role = registry.RoleClient
		default:
			s.sendError(w, ErrInvalidSockType)
			return
		}
	} else {
		role = registry.RoleSocket
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := reg.AddConnection(conn, role)
	s.log.Info().
		Str("registration_id", reg.ID()).
		Str("connection_id", c.ID()).
		Str("role", string(role)).
		Msg("connection admitted")

	f := wsconn.New(s.reg, reg, c, s.autoRemove, s.log)
	go f.Run()
}

// handleRemove implements GET /remove.
func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id := q.Get("id")
	key := q.Get("key")
	hostKey := q.Get("host_key")

	reg, ok := s.reg.Lookup(id)
	if !ok {
		s.sendError(w, registry.ErrNotFound)
		return
	}

	if !reg.VerifyParticipant(key, s.processSecret) || !reg.VerifyHost(hostKey, s.processSecret) {
		s.sendError(w, registry.ErrInvalidKey)
		return
	}

	// Snapshot connections before removal so every Forwarder still attached
	// can be woken immediately, rather than waiting for its idle timeout.
	conns := reg.Connections()

	if err := s.reg.Remove(id); err != nil {
		s.sendError(w, err)
		return
	}

	for _, c := range conns {
		if err := c.Interrupt(); err != nil {
			s.log.Debug().Err(err).Msg("interrupt on removed connection failed")
		}
	}

	s.log.Info().Str("registration_id", id).Msg("registration removed")
	w.WriteHeader(http.StatusOK)
}

// handleStats implements GET /stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := buildStatsResponse(s.reg)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// errBody is the JSON shape used for every non-2xx response, naming the
// error kind as spec.md §6 requires ("appropriate 4xx with a body naming
// the error kind").
type errBody struct {
	Error string `json:"error"`
}

func (s *Server) sendError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errBody{Error: err.Error()})
}

// statusFor maps the error taxonomy of spec.md §7 to an HTTP status code.
// appcred.Hash wraps ErrUnhashableKey with additional context, so this uses
// errors.Is rather than direct comparison throughout.
func statusFor(err error) int {
	switch {
	case errors.Is(err, registry.ErrMissingRegistrationType),
		errors.Is(err, registry.ErrIncorrectLengthID),
		errors.Is(err, ErrInvalidSockType),
		errors.Is(err, ErrMissingParams):
		return http.StatusBadRequest
	case errors.Is(err, registry.ErrInUseID):
		return http.StatusConflict
	case errors.Is(err, registry.ErrInvalidKey), errors.Is(err, ErrIncorrectKey):
		return http.StatusUnauthorized
	case errors.Is(err, registry.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, appcred.ErrUnhashableKey):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
