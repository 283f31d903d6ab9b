package api

import (
	"net/http"
	"sync"

	"guardian/core"
)

// streamPayload is one websocket frame: the full recomputed view for the
// socket's filter, newest-first.
type streamPayload struct {
	Count  int           `json:"count"`
	Events []*core.Event `json:"events"`
}

// handleStream upgrades the request to a websocket and attaches one hub
// subscription to it. Every debounced or reconciled delivery becomes one
// frame; closing the socket tears the subscription down.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	filter, _, err := filterFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnf("Websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// Deliveries arrive from hub timer goroutines; gorilla/websocket
	// allows one concurrent writer, so writes are serialized here.
	var writeMu sync.Mutex
	failed := make(chan struct{})
	var failOnce sync.Once

	id := s.svc.Subscribe(filter, func(view []*core.Event) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteJSON(streamPayload{Count: len(view), Events: view}); err != nil {
			failOnce.Do(func() { close(failed) })
		}
	})
	defer s.svc.Unsubscribe(id)

	s.logger.Debugf("Stream subscription %s opened from %s", id, r.RemoteAddr)

	// Drain the socket to notice the peer going away; frames from the
	// client are ignored.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	select {
	case <-done:
	case <-failed:
	}
	s.logger.Debugf("Stream subscription %s closed", id)
}
