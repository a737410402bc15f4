package api

import (
	"net/http"
	"strings"
	"time"

	"pairstream/internal/domain/models"
	"pairstream/internal/service/broker"
	xhttp "pairstream/pkg/http"
	xlogger "pairstream/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingPeriod   = 20 * time.Second
	wsMaxTopics    = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// wsFrame is the relay envelope sent to WebSocket clients.
type wsFrame struct {
	Topic string      `json:"topic"`
	Data  interface{} `json:"data"`
}

// LiveStream upgrades the request and relays broker messages for the
// requested topics until the client goes away. The connection is one more
// subscriber; a slow client loses messages, not the pipeline.
func (h *LiveHandler) LiveStream(c echo.Context) error {
	req := &models.LiveStreamRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	topics := splitTopics(req.Topics)
	if len(topics) == 0 || len(topics) > wsMaxTopics {
		return xhttp.BadRequestResponse(c, "topics must list 1..32 topics")
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	subs := make([]*broker.Subscription, 0, len(topics))
	for _, t := range topics {
		subs = append(subs, h.brk.Subscribe(t, 256))
	}
	defer func() {
		for _, s := range subs {
			h.brk.Unsubscribe(s)
		}
	}()

	// reader goroutine exists only to observe the close handshake
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	merged := make(chan broker.Message, 256)
	stop := make(chan struct{})
	defer close(stop)
	for _, s := range subs {
		go fanIn(s, merged, stop)
	}

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-clientGone:
			return nil
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		case msg := <-merged:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(wsFrame{Topic: msg.Topic, Data: msg.Payload}); err != nil {
				h.logger.Debug("ws client write failed", xlogger.Error(err))
				return nil
			}
		}
	}
}

func fanIn(sub *broker.Subscription, out chan<- broker.Message, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case msg, ok := <-sub.C():
			if !ok {
				return
			}
			select {
			case out <- msg:
			case <-stop:
				return
			default:
				// client is behind on the merged queue; drop
			}
		}
	}
}

func splitTopics(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
