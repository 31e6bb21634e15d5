package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/GoCodeAlone/flowkernel"
)

const (
	eventBuffer  = 64
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
	readTimeout  = 2 * pingInterval
)

// eventStream is an Observer that forwards kernel events to one websocket
// client. Events are dropped when the client does not keep up.
type eventStream struct {
	id     string
	events chan flowkernel.CloudEvent
	logger flowkernel.Logger
}

func (e *eventStream) ObserverID() string { return e.id }

func (e *eventStream) OnEvent(_ context.Context, event flowkernel.CloudEvent) error {
	select {
	case e.events <- event:
	default:
		e.logger.Debug("Dropping event for slow client", "client", e.id, "type", event.Type())
	}
	return nil
}

// handleEvents upgrades the request and streams every event of the root
// container as a JSON CloudEvent. Repeated "type" query parameters restrict the
// stream to those event types.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	closing := s.closingChan()
	stream := &eventStream{
		id:     "httpapi-events-" + middleware.GetReqID(r.Context()),
		events: make(chan flowkernel.CloudEvent, eventBuffer),
		logger: s.logger,
	}
	// registered before the handshake completes so no event after it is missed
	root := s.kernel.Root()
	if err := root.RegisterObserver(stream, r.URL.Query()["type"]...); err != nil {
		s.writeError(w, err)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		_ = root.UnregisterObserver(stream)
		s.logger.Debug("Websocket upgrade failed", "error", err)
		return
	}

	s.streams.Add(1)
	go s.serveStream(conn, stream, closing)
}

func (s *Server) serveStream(conn *websocket.Conn, stream *eventStream, closing <-chan struct{}) {
	defer s.streams.Done()
	defer func() {
		_ = s.kernel.Root().UnregisterObserver(stream)
		_ = conn.Close()
		s.logger.Debug("Event stream closed", "client", stream.id)
	}()
	s.logger.Debug("Event stream opened", "client", stream.id)

	// The reader only drains control frames and notices when the client leaves.
	gone := make(chan struct{})
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
	go func() {
		defer close(gone)
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-closing:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeTimeout))
			return
		case <-gone:
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case event := <-stream.events:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(event); err != nil {
				s.logger.Debug("Event stream write failed", "client", stream.id, "error", err)
				return
			}
		}
	}
}
