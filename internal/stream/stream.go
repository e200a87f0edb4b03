// Package stream fans realtime message events out to connected sessions.
// The connection registry lives here with a controlled lifecycle: insert on
// subscribe, remove on disconnect. It is never an ambient global.
package stream

import (
	"context"
	"log/slog"
	"sync"

	"mentorhub/entity"
	"mentorhub/internal/metrics"
	"mentorhub/lib/sl"
)

const defaultBuffer = 16

type subscriber struct {
	session entity.Session
	ch      chan entity.Event
}

// wants applies the interest filter: admins see every event, users only
// events touching their own messages, guests nothing.
func (s *subscriber) wants(evt entity.Event) bool {
	if evt.Message == nil {
		return false
	}
	return s.session.CanSee(evt.Message.UserID)
}

// Stream delivers message events to all subscribed connections. Fan-out is
// synchronous on the publishing request and never blocks on a slow
// consumer: each connection has a bounded outbound queue and overflowing it
// disconnects that connection only, forcing a resync through the pull API.
type Stream struct {
	log    *slog.Logger
	mu     sync.Mutex
	subs   map[int]*subscriber
	next   int
	buffer int
}

func New(log *slog.Logger, buffer int) *Stream {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Stream{
		log:    log.With(sl.Module("stream")),
		subs:   make(map[int]*subscriber),
		buffer: buffer,
	}
}

// Subscribe registers an authenticated session and returns the channel its
// events arrive on. The channel is closed when ctx ends or when the
// subscriber overflows; events enqueued to a closing connection are
// discarded silently.
func (s *Stream) Subscribe(ctx context.Context, session *entity.Session) <-chan entity.Event {
	sub := &subscriber{
		session: *session,
		ch:      make(chan entity.Event, s.buffer),
	}

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = sub
	s.mu.Unlock()

	metrics.ConnectionOpened()
	s.log.Debug("subscribed",
		slog.Int("conn_id", id),
		slog.String("subject", session.SubjectID),
		slog.String("role", string(session.Role)),
	)

	go func() {
		<-ctx.Done()
		s.remove(id)
	}()

	return sub.ch
}

// Publish fans the event out to every matching subscriber. A full outbound
// queue drops that subscriber, never the publisher: delivery to one slow
// connection must not delay the others.
func (s *Stream) Publish(evt entity.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, sub := range s.subs {
		if !sub.wants(evt) {
			continue
		}
		select {
		case sub.ch <- evt:
			metrics.EventDelivered()
		default:
			delete(s.subs, id)
			close(sub.ch)
			metrics.ConnectionClosed()
			metrics.EventDropped()
			s.log.Warn("subscriber overflow, disconnecting",
				slog.Int("conn_id", id),
				slog.String("subject", sub.session.SubjectID),
			)
		}
	}
}

// Connections returns the number of live subscriptions.
func (s *Stream) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Stream) remove(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		// Already disconnected by an overflow.
		return
	}
	delete(s.subs, id)
	close(sub.ch)
	metrics.ConnectionClosed()
}
