package server

import (
	"encoding/json"
	"net/http"
	"time"

	"codeberg.org/mutker/vibesd/internal/errors"
	"codeberg.org/mutker/vibesd/internal/logger"
	"codeberg.org/mutker/vibesd/internal/overmind"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// clientMessage is the only inbound frame clients send.
type clientMessage struct {
	BoredomScore *float64 `json:"boredom_score"`
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	id := uuid.NewString()
	log := s.log.With("ws")

	sub, err := s.states.Subscribe(id)
	if err != nil {
		log.ErrorWithCode(errors.New().Wrap(ErrSubscribe, err)).Str("client", id).Msg("Rejecting client")
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "shutting down"),
			time.Now().Add(s.cfg.WriteTimeout))
		return
	}
	defer sub.Close()

	n := s.clients.Add(1)
	defer s.clients.Add(-1)
	log.Info().Str("client", id).Int64("clients", n).Msg("Client connected")

	conn.SetReadLimit(s.cfg.MaxMessageBytes)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer conn.Close()
		s.writeLoop(conn, sub.C(), log, id)
	}()

	s.readLoop(conn, log, id)

	// unblock the writer if the reader ended first
	sub.Close()
	<-writerDone

	log.Info().Str("client", id).Msg("Client disconnected")
}

func (s *Server) writeLoop(conn *websocket.Conn, states <-chan overmind.GlobalState, log logger.Logger, id string) {
	for state := range states {
		conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		if err := conn.WriteJSON(state); err != nil {
			log.Debug().Err(err).Str("client", id).Msg("Write failed")
			return
		}
	}

	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
		time.Now().Add(s.cfg.WriteTimeout))
}

func (s *Server) readLoop(conn *websocket.Conn, log logger.Logger, id string) {
	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Str("client", id).Msg("Read failed")
			}
			return
		}
		if typ != websocket.TextMessage {
			continue
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Debug().Err(err).Str("client", id).Msg("Ignoring malformed message")
			continue
		}
		if msg.BoredomScore != nil {
			s.director.UpdateBoredom(*msg.BoredomScore)
		}
	}
}
