package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/upb/llm-bridge/internal/observability"
	"github.com/upb/llm-bridge/models"
	"github.com/upb/llm-bridge/services"
	"github.com/upb/llm-bridge/services/framer"
	"github.com/upb/llm-bridge/utils"
)

const wsWriteTimeout = 10 * time.Second

// WebSocketHandler serves chat requests over a long-lived websocket. Requests
// on one connection are handled in order; frames are only written from the
// connection's serving loop.
type WebSocketHandler struct {
	service  InferenceService
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewWebSocketHandler creates a handler accepting the given origins. A "*"
// entry accepts any origin.
func NewWebSocketHandler(service InferenceService, allowedOrigins []string, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		service: service,
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(allowedOrigins),
		},
		logger: logger,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}

// HandleWebSocket handles GET /v1/ws
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	logger := observability.LoggerFromContext(r.Context(), h.logger)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(utils.MaxRequestBodyBytes)

	// The connection context ends when the client goes away, which aborts
	// any request still running for it.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	incoming := make(chan []byte, 8)
	go func() {
		defer cancel()
		defer close(incoming)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			select {
			case incoming <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	logger.Info("websocket client connected", zap.String("remote_addr", r.RemoteAddr))
	for msg := range incoming {
		if err := h.serve(ctx, conn, msg); err != nil {
			if !errors.Is(err, context.Canceled) {
				logger.Debug("websocket write failed", zap.Error(err))
			}
			break
		}
	}
	logger.Info("websocket client disconnected", zap.String("remote_addr", r.RemoteAddr))
}

// serve answers one request frame. The returned error is a transport error;
// request failures are reported to the client as error frames.
func (h *WebSocketHandler) serve(ctx context.Context, conn *websocket.Conn, msg []byte) error {
	var chatReq ChatCompletionRequest
	if err := json.Unmarshal(msg, &chatReq); err != nil {
		return writeFrame(conn, framer.NewErrorFrame("Invalid JSON"))
	}
	if err := utils.ValidateStruct(&chatReq); err != nil {
		return writeFrame(conn, framer.NewErrorFrame("Invalid request: "+err.Error()))
	}

	plan, err := h.service.Prepare(chatReq.toCompletionRequest(uuid.NewString()))
	if err != nil {
		return writeFrame(conn, framer.NewErrorFrame(services.ErrorMessage(err)))
	}

	if err := writeFrame(conn, framer.NewRoutingFrame(plan.Decision)); err != nil {
		return err
	}

	if !chatReq.Stream {
		resp, err := h.service.Complete(ctx, plan)
		if err != nil {
			return h.failed(ctx, conn, plan.RequestID, err)
		}
		return writeFrame(conn, framer.NewDoneFrame(resp.Content, resp.Model.ModelID, plan.Decision.Scenario))
	}

	emit := func(_ models.ModelSpec, delta string) error {
		return writeFrame(conn, framer.NewDeltaFrame(delta))
	}
	resp, err := h.service.Stream(ctx, plan, emit)
	if err != nil {
		return h.failed(ctx, conn, plan.RequestID, err)
	}
	return writeFrame(conn, framer.NewDoneFrame(resp.Content, resp.Model.ModelID, plan.Decision.Scenario))
}

func (h *WebSocketHandler) failed(ctx context.Context, conn *websocket.Conn, requestID string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	h.logger.Warn("websocket request failed",
		zap.String("request_id", requestID),
		zap.Error(err))
	return writeFrame(conn, framer.NewErrorFrame(services.ErrorMessage(err)))
}

func writeFrame(conn *websocket.Conn, frame interface{}) error {
	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(frame)
}
