// Package realtime serves document listeners over SockJS.
package realtime

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"photobox/internal/boothtoken"
	"photobox/internal/docpath"
	"photobox/internal/hub"
	"photobox/internal/identity"
	"photobox/internal/logging"
	"photobox/internal/metrics"
	"photobox/internal/store"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
)

const (
	closeUnauthorized = 4001
	closeDenied       = 4003
)

var ErrUnauthorized = errors.New("unauthorized")

// Conn is the part of a SockJS session the server needs.
type Conn interface {
	Recv() (string, error)
	Send(string) error
	Close(status uint32, reason string) error
}

type Principal struct {
	UserID string
	Role   string
	Scope  docpath.Path
}

type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (Principal, error)
}

type SessionLookup interface {
	Session(ctx context.Context, sessionID string) (identity.Session, error)
}

type TokenVerifier interface {
	Verify(token string) (boothtoken.Claims, error)
}

// Auth accepts either a dashboard session id or a booth token.
type Auth struct {
	sessions SessionLookup
	tokens   TokenVerifier
}

func NewAuth(sessions SessionLookup, tokens TokenVerifier) *Auth {
	return &Auth{sessions: sessions, tokens: tokens}
}

func (a *Auth) Authenticate(ctx context.Context, r *http.Request) (Principal, error) {
	credential := credentialFromRequest(r)
	if credential == "" {
		return Principal{}, ErrUnauthorized
	}
	if strings.Count(credential, ".") == 2 && a.tokens != nil {
		claims, err := a.tokens.Verify(credential)
		if err != nil {
			return Principal{}, ErrUnauthorized
		}
		scope, err := docpath.Resolve(claims.ClientID, claims.BoothID, "", "")
		if err != nil {
			return Principal{}, ErrUnauthorized
		}
		return Principal{UserID: claims.Subject, Role: claims.Role, Scope: scope}, nil
	}
	if a.sessions == nil {
		return Principal{}, ErrUnauthorized
	}
	session, err := a.sessions.Session(ctx, credential)
	if err != nil {
		return Principal{}, ErrUnauthorized
	}
	scope, err := docpath.Resolve(session.UserID, "", "", "")
	if err != nil {
		return Principal{}, ErrUnauthorized
	}
	return Principal{UserID: session.UserID, Role: session.Snapshot.Role, Scope: scope}, nil
}

func credentialFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	for _, key := range []string{"token", "session_id"} {
		if value := strings.TrimSpace(r.URL.Query().Get(key)); value != "" {
			return value
		}
	}
	return ""
}

func bearerToken(header string) string {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}

type Server struct {
	hub    *hub.Hub
	store  store.Store
	auth   Authenticator
	buffer int
}

func NewServer(h *hub.Hub, st store.Store, auth Authenticator) *Server {
	return &Server{hub: h, store: st, auth: auth, buffer: 32}
}

func (s *Server) Handler() http.Handler {
	return sockjs.NewHandler("/realtime", sockjs.DefaultOptions, func(session sockjs.Session) {
		s.Serve(session.Request(), session)
	})
}

// Serve runs one listener session until the peer goes away.
func (s *Server) Serve(r *http.Request, conn Conn) {
	ctx := context.Background()
	if r != nil {
		ctx = r.Context()
	}
	principal, err := s.auth.Authenticate(ctx, r)
	if err != nil {
		_ = conn.Close(closeUnauthorized, "unauthorized")
		return
	}
	// xhr transports finish the opening request long before the session ends.
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()

	client := hub.NewClient(uuid.NewString(), principal.Scope, s.buffer)
	s.hub.Register(client)
	metrics.RealtimeSessions.Inc()
	log := logging.With("realtime").With().Str("client_id", client.ID).Str("user_id", principal.UserID).Logger()
	log.Debug().Msg("listener connected")

	written := make(chan struct{})
	go func() {
		defer close(written)
		for msg := range client.Send {
			_ = conn.Send(string(msg))
		}
	}()
	defer func() {
		s.hub.Unregister(client)
		<-written
		metrics.RealtimeSessions.Dec()
		log.Debug().Msg("listener disconnected")
	}()

	for {
		raw, err := conn.Recv()
		if err != nil {
			return
		}
		msg, ok := hub.ParseMessage([]byte(raw))
		if !ok {
			s.sendError(client, "", "invalid message")
			continue
		}
		path, err := docpath.Parse(msg.Path)
		if err != nil || !path.IsDocument() {
			s.sendError(client, msg.Path, "path must name a document")
			continue
		}
		if !path.HasPrefix(principal.Scope) {
			_ = conn.Close(closeDenied, "access denied")
			return
		}
		if msg.Action == hub.ActionUnlisten {
			s.hub.Unlisten(client, path.String())
			continue
		}
		s.hub.Listen(client, path.String())
		s.sendSnapshot(ctx, client, path)
	}
}

func (s *Server) sendSnapshot(ctx context.Context, client *hub.Client, path docpath.Path) {
	snapshot := hub.Snapshot{Type: hub.TypeSnapshot, Path: path.String(), At: time.Now().UTC()}
	doc, err := s.store.Get(ctx, path)
	switch {
	case err == nil:
		snapshot.Exists = true
		snapshot.Data = doc.Data
		snapshot.At = doc.UpdatedAt
	case errors.Is(err, store.ErrNotFound):
	default:
		logging.Error().Err(err).Str("path", path.String()).Msg("load snapshot")
		s.sendError(client, path.String(), "snapshot unavailable")
		return
	}
	payload, err := hub.Encode(snapshot)
	if err != nil {
		logging.Error().Err(err).Str("path", path.String()).Msg("encode snapshot")
		return
	}
	s.hub.Deliver(client, payload)
}

func (s *Server) sendError(client *hub.Client, path, message string) {
	payload, err := hub.Encode(hub.Snapshot{Type: hub.TypeError, Path: path, Message: message, At: time.Now().UTC()})
	if err != nil {
		return
	}
	s.hub.Deliver(client, payload)
}
