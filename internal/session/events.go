package session

import (
	"time"

	"github.com/rickgao/coinstream/internal/connection"
	"github.com/rickgao/coinstream/internal/model"
	"github.com/rickgao/coinstream/internal/venue"
)

// handleFrame decodes one frame and dispatches its events. It runs on the
// read goroutine.
func (s *Session) handleFrame(msg connection.TimestampedMessage) {
	name := s.venue.Name()

	events, err := s.venue.Decode(msg.Data)
	if err != nil {
		s.metrics.DecodeError(name)
		s.logger.Warn("failed to decode frame", "error", err, "size", len(msg.Data))
		return
	}

	for _, ev := range events {
		s.metrics.MessageReceived(name, ev.Kind.String())

		switch ev.Kind {
		case venue.EventInfo:
			s.logger.Debug("venue info", "message", ev.Message)
		case venue.EventError:
			s.logger.Warn("venue error", "message", ev.Message, "raw", string(ev.Raw))
		case venue.EventHeartbeat:
		case venue.EventSubscribed:
			s.handleSubscribed(ev)
		case venue.EventUnsubscribed:
			s.logger.Debug("channel unsubscribed", "channel", ev.Channel)
		case venue.EventAuth:
			s.handleAuth(ev)
		case venue.EventData:
			s.handleData(ev, msg.ReceivedAt)
		case venue.EventAccount:
			s.handleAccount(ev)
		}
	}
}

func (s *Session) handleSubscribed(ev venue.Event) {
	if ev.Match == nil {
		return
	}
	key, ok := s.mux.Confirm(ev.Channel, ev.Match)
	if !ok {
		s.logger.Debug("confirmation matches no pending subscription", "channel", ev.Channel)
		return
	}
	s.logger.Debug("channel bound", "key", key, "channel", ev.Channel)
}

func (s *Session) handleData(ev venue.Event, receivedAt time.Time) {
	key, spec, ok := s.mux.Lookup(ev.Channel)
	if !ok || !s.holds(key) {
		return
	}

	ts := ev.Timestamp
	if ts.IsZero() {
		ts = receivedAt
	}

	data, ok, err := s.venue.ConvertData(key, spec, ev.Payload, ts)
	if err != nil {
		s.metrics.DecodeError(s.venue.Name())
		s.logger.Warn("failed to convert payload", "key", key, "error", err)
		return
	}
	if !ok {
		return
	}

	switch {
	case data.Book != nil:
		ob, ok := s.books.Apply(key, *data.Book)
		if !ok {
			return
		}
		s.metrics.BookEmitted(s.venue.Name(), key.Instrument)
		s.callOnData(model.StreamData{Key: key, Payload: ob})
	case data.Ticker != nil:
		s.callOnData(model.StreamData{Key: key, Payload: data.Ticker})
	}
}

func (s *Session) handleAccount(ev venue.Event) {
	upd := ev.Account
	if upd == nil {
		return
	}
	upd.Apply(s.account)
	s.noteSnapshot(upd.Type)

	for i := range upd.Executions {
		s.callOnData(model.StreamData{Key: model.AccountKey, Payload: &upd.Executions[i]})
	}
	s.callOnData(model.StreamData{
		Key:     model.AccountKey,
		Payload: model.AccountEvent{Type: upd.Type, Raw: ev.Raw},
	})
}

func (s *Session) handleAuth(ev venue.Event) {
	if !ev.AuthOK {
		s.authMu.Lock()
		s.authenticated = false
		s.awaiting = nil
		s.authSentOn = nil
		s.authMu.Unlock()

		s.logger.Error("authentication failed", "message", ev.Message)
		s.broadcast()
		s.callOnAuth(false, ev.Message)
		return
	}

	required := s.venue.RequiredSnapshots()

	s.authMu.Lock()
	s.awaiting = make(map[string]bool, len(required))
	for _, typ := range required {
		s.awaiting[typ] = true
	}
	done := len(s.awaiting) == 0
	if done {
		s.authenticated = true
		s.awaiting = nil
	}
	s.authMu.Unlock()

	if done {
		s.authComplete(ev.Message)
		return
	}
	s.logger.Debug("auth accepted, waiting for snapshots", "snapshots", required)
}

// noteSnapshot marks an account snapshot as received. Authentication
// completes once every required snapshot has arrived.
func (s *Session) noteSnapshot(typ string) {
	s.authMu.Lock()
	if !s.awaiting[typ] {
		s.authMu.Unlock()
		return
	}
	delete(s.awaiting, typ)
	done := len(s.awaiting) == 0
	if done {
		s.authenticated = true
		s.awaiting = nil
	}
	s.authMu.Unlock()

	if done {
		s.authComplete("")
	}
}

func (s *Session) authComplete(info string) {
	s.logger.Info("authenticated")
	s.broadcast()
	s.callOnAuth(true, info)
}
