package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"

	"codeisles-arena/models"
	"codeisles-arena/store"
)

const defaultPollInterval = 5 * time.Second

type EventKind string

const (
	EventSession         EventKind = "session"
	EventNoActiveSession EventKind = "no_active_session"
)

// Event is one item of a player's battle stream.
type Event struct {
	Kind    EventKind             `json:"kind"`
	Session *models.BattleSession `json:"session,omitempty"`
}

// Subscription streams battle events for one player until Close or context cancellation.
//
// Delivery keeps at least the latest value per session: snapshots waiting to be read are
// replaced by newer ones for the same session. A session never goes back from decided to
// active, and its decided snapshot is delivered once.
type Subscription struct {
	PlayerID string

	events chan Event
	cancel context.CancelFunc
	done   chan struct{}
}

// Events is closed when the subscription ends.
func (s *Subscription) Events() <-chan Event { return s.events }

// Done is closed after the stream goroutine has exited.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Close stops the stream and waits for it to exit. It has no effect on stored state.
func (s *Subscription) Close() {
	s.cancel()
	<-s.done
}

// Subscribe opens the live battle stream of playerID.
// The notifier subscription is opened before the initial read so no committed change falls
// between the two.
func (s *BattleService) Subscribe(ctx context.Context, playerID string) (*Subscription, error) {
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return nil, eris.Wrap(store.ErrInvalidArgument, "player id is required")
	}

	runCtx, cancel := context.WithCancel(ctx)

	var updates <-chan models.BattleSession
	unsubscribe := func() {}
	if s.Notifier != nil {
		ch, unsub, err := s.Notifier.Subscribe(runCtx, playerID)
		if err != nil {
			// polling still converges
			log.Warn().Err(err).Str("player_id", playerID).Msg("[STREAM] notifier subscribe failed, polling only")
		} else {
			updates, unsubscribe = ch, unsub
		}
	}

	initial, err := s.Store.ActiveSessions(runCtx, playerID)
	if err != nil {
		unsubscribe()
		cancel()
		return nil, err
	}

	st := newStreamState(playerID)
	for _, b := range initial {
		st.observe(b)
	}
	st.settle()

	poll := s.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}

	sub := &Subscription{
		PlayerID: playerID,
		events:   make(chan Event),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go sub.run(runCtx, st, updates, unsubscribe, poll, s.Store)
	return sub, nil
}

func (s *Subscription) run(ctx context.Context, st *streamState, updates <-chan models.BattleSession, unsubscribe func(), poll time.Duration, src store.Store) {
	defer close(s.done)
	defer close(s.events)
	defer unsubscribe()

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		var out chan<- Event
		var next Event
		if len(st.pending) > 0 {
			out = s.events
			next = st.pending[0]
		}

		select {
		case <-ctx.Done():
			return
		case b, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			if !b.HasPlayer(s.PlayerID) {
				continue
			}
			st.observe(b)
			st.settle()
		case <-ticker.C:
			st.refresh(ctx, src)
		case out <- next:
			st.pending = st.pending[1:]
		}
	}
}

// streamState is owned by the subscription goroutine.
type streamState struct {
	playerID      string
	active        map[string]models.BattleSession
	decided       map[string]bool
	pending       []Event
	reportedEmpty bool
}

func newStreamState(playerID string) *streamState {
	return &streamState{
		playerID: playerID,
		active:   make(map[string]models.BattleSession),
		decided:  make(map[string]bool),
	}
}

func (st *streamState) observe(b models.BattleSession) {
	if st.decided[b.ID] {
		return
	}
	if b.IsDecided() {
		st.decided[b.ID] = true
		delete(st.active, b.ID)
		st.push(Event{Kind: EventSession, Session: &b})
		return
	}
	if prev, ok := st.active[b.ID]; ok && prev.Status == b.Status {
		return
	}
	st.active[b.ID] = b
	st.push(Event{Kind: EventSession, Session: &b})
}

// settle reports the transition into "no active session".
func (st *streamState) settle() {
	empty := len(st.active) == 0
	if empty && !st.reportedEmpty {
		st.push(Event{Kind: EventNoActiveSession})
	}
	st.reportedEmpty = empty
}

func (st *streamState) push(ev Event) {
	if ev.Kind == EventSession {
		for i := range st.pending {
			p := st.pending[i]
			if p.Kind == EventSession && p.Session.ID == ev.Session.ID {
				st.pending[i] = ev
				return
			}
		}
	} else if n := len(st.pending); n > 0 && st.pending[n-1].Kind == EventNoActiveSession {
		return
	}
	st.pending = append(st.pending, ev)
}

// refresh re-reads the store to repair pushes that never arrived.
func (st *streamState) refresh(ctx context.Context, src store.Store) {
	sessions, err := src.ActiveSessions(ctx, st.playerID)
	if err != nil {
		log.Debug().Err(err).Str("player_id", st.playerID).Msg("[STREAM] poll failed")
		return
	}
	seen := make(map[string]bool, len(sessions))
	for _, b := range sessions {
		seen[b.ID] = true
		st.observe(b)
	}
	for id := range st.active {
		if seen[id] {
			continue
		}
		b, err := src.Session(ctx, id)
		switch {
		case err == nil:
			st.observe(*b)
		case errors.Is(err, store.ErrPreconditionFailed):
			delete(st.active, id)
		default:
			log.Debug().Err(err).Str("session_id", id).Msg("[STREAM] poll session failed")
		}
	}
	st.settle()
}
