// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/rpf

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/woozymasta/rpf/internal/defrag"
	"github.com/woozymasta/rpf/internal/session"
	"github.com/woozymasta/rpf/internal/vfs"
)

// Websocket message types sent by the defrag stream.
const (
	MessagePlan     = "plan"
	MessageProgress = "progress"
	MessageDone     = "done"
	MessageError    = "error"
)

const writeWait = 10 * time.Second

// Message is one websocket frame.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Progress is the payload of a progress message.
type Progress struct {
	Percent int    `json:"percent"`
	Message string `json:"message"`
}

// handleDefrag upgrades to a websocket, defragments the session's container and
// streams plan, progress and the final result. Closing the socket cancels the run.
func (s *Server) handleDefrag(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s.svc.Registry().Get(id) == nil {
		writeError(w, fmt.Errorf("%w: session %s", session.ErrArchiveNotFound, id))
		return
	}
	recursive := queryBool(r, "recursive")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade", "err", err)
		return
	}
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Read loop only watches for the peer going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	send := func(typ string, v any) {
		payload, err := json.Marshal(v)
		if err != nil {
			s.logger.Warn("encode websocket payload", "type", typ, "err", err)
			return
		}

		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(Message{Type: typ, Payload: payload}); err != nil {
			cancel()
		}
	}

	var result defrag.Result
	err = s.svc.With(id, func(sess *session.Session, _ *vfs.Resolver) error {
		var err error
		result, err = s.driver.Run(ctx, sess.Archive(), defrag.RunOptions{
			Recursive: recursive,
			OnPlan:    func(res defrag.Result) { send(MessagePlan, res) },
			OnProgress: func(message string, progress float64) {
				send(MessageProgress, Progress{Percent: defrag.Bucket(progress), Message: message})
			},
		})
		return err
	})
	s.svc.Invalidate(id)

	if err != nil {
		s.logger.Warn("defragment session", "session", id, "err", err)
		send(MessageError, Envelope{Error: err.Error()})
	} else {
		send(MessageDone, result)
	}

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
