package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"skillswap-service/internal/observability"
	"skillswap-service/internal/realtime"
)

// Gateway upgrades HTTP requests to websocket connections and pumps decoded
// events into the realtime router. Identity is established by the client's
// user:join event, not at upgrade time.
type Gateway struct {
	router *realtime.Router
}

// NewGateway constructs a Gateway.
func NewGateway(router *realtime.Router) *Gateway {
	return &Gateway{router: router}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection and runs its read loop. One read loop per
// connection preserves FIFO handling of that connection's events.
func (g *Gateway) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("skillswap-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	traceID := span.SpanContext().TraceID().String()
	requestID := observability.RequestIDFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}

	client := newWSConn(info.ConnID, conn)
	g.router.Connect(client)

	observability.IncWSActive("realtime")
	observability.IncWSEvent("realtime", "ws_connect")
	g.publishLifecycle(ctx, info, "ws_connect", "")

	go g.readLoop(info, client, conn)
}

func (g *Gateway) readLoop(info ConnInfo, client *wsConn, conn *websocket.Conn) {
	// The handshake span is long gone by the time events arrive; handlers
	// run against a fresh background context per connection.
	ctx := context.Background()
	var closeReason string

	defer func() {
		g.router.Disconnect(ctx, info.ConnID)
		observability.DecWSActive("realtime")
		observability.IncWSEvent("realtime", "ws_disconnect")
		g.publishLifecycle(ctx, info, "ws_disconnect", closeReason)
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("realtime", "ws_error")
				g.publishLifecycle(ctx, info, "ws_error", closeReason)
			}
			return
		}

		var evt realtime.Event
		if err := json.Unmarshal(raw, &evt); err != nil || evt.Name == "" {
			_ = client.Send("error", map[string]string{"error": "malformed frame"})
			continue
		}
		g.router.Dispatch(ctx, info.ConnID, evt)
	}
}

func (g *Gateway) publishLifecycle(ctx context.Context, info ConnInfo, event, reason string) {
	_ = observability.PublishEvent(ctx, "ws_events.realtime", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload: observability.WSEventPayload{
			ConnID:     info.ConnID,
			Event:      event,
			DurationMS: time.Since(info.ConnectedAt).Milliseconds(),
			Reason:     reason,
			DeviceID:   info.DeviceID,
			IP:         info.IP,
		},
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}
