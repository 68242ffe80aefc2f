package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	stdhttp "net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/learnwire/internal/auth"
	"github.com/vovakirdan/learnwire/internal/core"
	"github.com/vovakirdan/learnwire/internal/proto"
)

const closeWriteTimeout = time.Second

var (
	errClientStopped = errors.New("client stopped")
	errInvalidFrame  = errors.New("frame is not valid JSON")
)

// IdentityVerifier resolves a handshake credential into an identity.
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (core.Identity, error)
}

// WSOptions tunes the WebSocket endpoint.
type WSOptions struct {
	AdmissionTimeout   time.Duration
	MaxMessageBytes    int64
	OutboundBuffer     int
	RateLimitPerMinute int
	AllowedOrigins     []string
}

// WSHandler upgrades HTTP connections, authenticates them and bridges them to core.Client.
type WSHandler struct {
	hub      *core.Hub
	verifier IdentityVerifier
	opts     WSOptions
	log      *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, verifier IdentityVerifier, opts WSOptions, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{hub: hub, verifier: verifier, opts: opts, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	acceptOpts := &websocket.AcceptOptions{InsecureSkipVerify: len(h.opts.AllowedOrigins) == 0}
	if len(h.opts.AllowedOrigins) > 0 {
		acceptOpts.OriginPatterns = h.opts.AllowedOrigins
	}
	conn, err := websocket.Accept(w, r, acceptOpts)
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.CloseNow()
	if h.opts.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.opts.MaxMessageBytes)
	}

	identity, err := h.authenticate(ctx, conn, r)
	if err != nil {
		h.logAuthFailure(err, r)
		h.refuse(conn)
		return
	}

	client := core.NewClient(uuid.NewString(), identity, h.opts.OutboundBuffer)
	if err := h.hub.RegisterClient(ctx, client); err != nil {
		h.log.Error().Err(err).Str("user_id", identity.ID).Msg("register client")
		conn.Close(websocket.StatusTryAgainLater, "server unavailable")
		return
	}
	defer h.hub.UnregisterClient(client)

	log := h.log.With().Str("conn_id", client.ID).Str("user_id", identity.ID).Logger()
	log.Info().Msg("ws connection established")

	if err := wsjson.Write(ctx, conn, proto.Outbound{
		Event: proto.EventConnected,
		Data: proto.ConnectedData{
			ConnectionID: client.ID,
			UserID:       client.Identity.ID,
			DisplayName:  client.Identity.DisplayName,
		},
	}); err != nil {
		log.Warn().Err(err).Msg("write connected ack")
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client, &log)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client, &log)
	}()

	err = <-errCh
	if errors.Is(err, errClientStopped) {
		// Close before cancel: a cancelled read tears the socket down without a close frame.
		log.Info().Msg("ws connection closed by hub")
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		cancel()
		<-errCh
		return
	}
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	switch {
	case err != nil && !errors.Is(err, context.Canceled):
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = "internal error"
			log.Warn().Err(err).Msg("ws connection closed with error")
		}
	}

	log.Info().Msg("ws connection closed")
	conn.Close(status, reason)
}

// authenticate reads the credential from the Authorization header, the token
// query parameter or a first "auth" frame, and verifies it within the
// admission timeout.
func (h *WSHandler) authenticate(ctx context.Context, conn *websocket.Conn, r *stdhttp.Request) (core.Identity, error) {
	if h.opts.AdmissionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opts.AdmissionTimeout)
		defer cancel()
	}

	token := bearerToken(r.Header.Get("Authorization"))
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		var err error
		if token, err = readAuthFrame(ctx, conn); err != nil {
			return core.Identity{}, err
		}
	}

	return h.verifier.Verify(ctx, token)
}

// readInbound reads one frame. A frame that is not a JSON envelope yields
// errInvalidFrame and leaves the connection usable.
func readInbound(ctx context.Context, conn *websocket.Conn) (proto.Inbound, error) {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return proto.Inbound{}, err
	}
	var inbound proto.Inbound
	if err := json.Unmarshal(data, &inbound); err != nil {
		return proto.Inbound{}, fmt.Errorf("%w: %v", errInvalidFrame, err)
	}
	return inbound, nil
}

func readAuthFrame(ctx context.Context, conn *websocket.Conn) (string, error) {
	inbound, err := readInbound(ctx, conn)
	if err != nil {
		if errors.Is(err, errInvalidFrame) {
			return "", &auth.AuthenticationError{Reason: auth.ReasonMalformed, Err: err}
		}
		return "", &auth.AuthenticationError{Reason: auth.ReasonMissing, Err: err}
	}
	if inbound.Event != proto.EventAuth {
		return "", &auth.AuthenticationError{Reason: auth.ReasonMissing}
	}
	var data proto.AuthData
	if err := json.Unmarshal(inbound.Data, &data); err != nil {
		return "", &auth.AuthenticationError{Reason: auth.ReasonMalformed, Err: err}
	}
	return data.Token, nil
}

func (h *WSHandler) logAuthFailure(err error, r *stdhttp.Request) {
	var authErr *auth.AuthenticationError
	if errors.As(err, &authErr) && authErr.Reason == auth.ReasonUnavailable {
		h.log.Error().Err(err).Str("remote", r.RemoteAddr).Msg("ws authentication failed")
		return
	}
	h.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("ws authentication failed")
}

// refuse tells the client why and closes with a policy violation.
func (h *WSHandler) refuse(conn *websocket.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), closeWriteTimeout)
	defer cancel()

	_ = wsjson.Write(ctx, conn, proto.Outbound{
		Event: proto.EventConnectError,
		Data:  proto.ConnectErrorData{Message: proto.AuthenticationErrorMessage},
	})
	conn.Close(websocket.StatusPolicyViolation, proto.AuthenticationErrorMessage)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client, log *zerolog.Logger) error {
	limiter := newRateLimiter(h.opts.RateLimitPerMinute)

	for {
		inbound, err := readInbound(ctx, conn)
		if err != nil {
			if errors.Is(err, errInvalidFrame) {
				if writeErr := wsjson.Write(ctx, conn, errorOutbound(&core.CoreError{
					Code:    core.ErrCodeBadRequest,
					Message: errInvalidFrame.Error(),
				})); writeErr != nil {
					return writeErr
				}
				continue
			}
			log.Debug().Err(err).Msg("read ws inbound")
			return err
		}

		if !limiter.allow() {
			log.Debug().Str("event", inbound.Event).Msg("rate limit exceeded")
			if err := wsjson.Write(ctx, conn, errorOutbound(&core.CoreError{
				Code:    core.ErrCodeRateLimited,
				Message: "rate limit exceeded",
			})); err != nil {
				return err
			}
			continue
		}

		cmd, protoErr := inboundToCommand(inbound)
		if protoErr != nil {
			log.Debug().Str("event", inbound.Event).Str("code", protoErr.Code).Msg("inbound rejected")
			if err := wsjson.Write(ctx, conn, errorOutbound(protoErr)); err != nil {
				return err
			}
			continue
		}
		if cmd == nil {
			continue
		}

		select {
		case client.Commands <- cmd:
		case <-client.Done():
			return errClientStopped
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client, log *zerolog.Logger) error {
	for {
		select {
		case event := <-client.Events:
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				log.Debug().Err(err).Str("event", event.Kind.String()).Msg("write ws event")
				return err
			}
		case <-client.Done():
			return errClientStopped
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
