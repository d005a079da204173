package orch

import (
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/callrelay/internal/app"
	"github.com/dkeye/callrelay/internal/core"
	"github.com/dkeye/callrelay/internal/domain"
	"github.com/rs/zerolog/log"
)

var ErrInvalidTransition = errors.New("invalid lifecycle transition")

// Orchestrator drives every connection through
// Pending -> Admitted -> Active -> Closed.
type Orchestrator struct {
	Registry  *app.RoomRegistry
	Directory *app.SessionDirectory
	Relay     *app.Relay
	Policy    app.Policy
	Metrics   *app.Metrics

	locks *callLocks
}

func New(reg *app.RoomRegistry, dir *app.SessionDirectory, policy app.Policy, metrics *app.Metrics) *Orchestrator {
	if policy == nil {
		policy = app.DropPolicy{}
	}
	return &Orchestrator{
		Registry:  reg,
		Directory: dir,
		Relay:     app.NewRelay(dir),
		Policy:    policy,
		Metrics:   metrics,
		locks:     newCallLocks(),
	}
}

// Admit reserves a slot in callID. core.ErrRoomFull means the handshake
// must be refused.
func (o *Orchestrator) Admit(callID domain.CallID) (*Ticket, error) {
	mu := o.locks.of(callID)
	mu.Lock()
	err := o.Registry.TryAdmit(callID)
	mu.Unlock()
	if err != nil {
		o.Metrics.Rejected()
		log.Warn().Err(err).Str("module", "orch").Str("call_id", string(callID)).Msg("admission rejected")
		return nil, err
	}
	o.Metrics.Admitted()

	t := &Ticket{callID: callID}
	t.state.Store(int32(Admitted))
	log.Info().Str("module", "orch").Str("call_id", string(callID)).Msg("admitted")
	return t, nil
}

// Abort returns the slot of a ticket that never became active.
func (o *Orchestrator) Abort(t *Ticket) {
	if !t.transition(Admitted, Closed) {
		return
	}
	o.release(t.callID)
	log.Info().Str("module", "orch").Str("call_id", string(t.callID)).Msg("admission aborted")
}

// Activate creates the session for an admitted ticket and makes it
// reachable by its peer.
func (o *Orchestrator) Activate(
	t *Ticket,
	sid core.SessionID,
	meta domain.PeerMeta,
	signal core.SignalConnection,
) (*core.Session, error) {
	if t.State() != Admitted {
		return nil, fmt.Errorf("activate %s from %s: %w", sid, t.State(), ErrInvalidTransition)
	}
	sess := core.NewSession(sid, t.callID, meta, signal)
	if err := o.Directory.Add(sess); err != nil {
		o.Metrics.Inconsistent("duplicate_session")
		o.Abort(t)
		return nil, fmt.Errorf("activate: %w", err)
	}
	t.session.Store(sess)
	if !t.transition(Admitted, Active) {
		o.Directory.Remove(sid)
		return nil, fmt.Errorf("activate %s from %s: %w", sid, t.State(), ErrInvalidTransition)
	}
	log.Info().
		Str("module", "orch").
		Str("sid", string(sid)).
		Str("call_id", string(t.callID)).
		Str("client", meta.ClientToken).
		Str("remote", meta.RemoteAddr).
		Msg("session active")
	return sess, nil
}

// OnFrame relays an inbound frame to the peer. Frames arriving outside
// the Active state are ignored.
func (o *Orchestrator) OnFrame(t *Ticket, f core.Frame) {
	if t.State() != Active {
		return
	}
	sess := t.Session()
	res, err := o.Relay.Forward(sess, f)
	o.Metrics.Frame(res)
	if err == nil {
		if res == app.NoPeer {
			log.Debug().Str("module", "orch").Str("sid", string(sess.ID())).Str("call_id", string(sess.CallID())).Msg("no peer, frame dropped")
		}
		return
	}

	var de *app.DeliveryError
	if !errors.As(err, &de) {
		log.Error().Err(err).Str("module", "orch").Str("sid", string(sess.ID())).Msg("forward")
		return
	}
	action := o.Policy.OnBackPressure(de.Peer, de.Err)
	log.Warn().
		Err(err).
		Str("module", "orch").
		Str("sid", string(sess.ID())).
		Str("peer_sid", string(de.Peer.ID())).
		Str("call_id", string(sess.CallID())).
		Bool("kick", action == app.KickMember).
		Msg("delivery failed")
	if action == app.KickMember {
		de.Peer.Signal().Close()
	}
}

// OnDisconnect removes the session and frees its slot. Both happen under
// the call's lock so admission never sees a half-released room. Safe to
// call more than once.
func (o *Orchestrator) OnDisconnect(t *Ticket) {
	if !t.transition(Active, Closed) {
		o.Abort(t)
		return
	}
	sess := t.Session()

	mu := o.locks.of(t.callID)
	mu.Lock()
	_, found := o.Directory.Remove(sess.ID())
	err := o.Registry.Release(t.callID)
	mu.Unlock()

	if !found {
		o.Metrics.Inconsistent("missing_session")
		log.Error().Str("module", "orch").Str("sid", string(sess.ID())).Msg("session missing on disconnect")
	}
	if err != nil {
		o.Metrics.Inconsistent("occupancy_underflow")
		log.Error().Err(err).Str("module", "orch").Str("call_id", string(t.callID)).Msg("release")
	}
	o.Metrics.Disconnected()
	meta := sess.Meta()
	log.Info().
		Str("module", "orch").
		Str("sid", string(sess.ID())).
		Str("call_id", string(t.callID)).
		Str("client", meta.ClientToken).
		Dur("duration", time.Since(meta.ConnectedAt)).
		Msg("session closed")
}

func (o *Orchestrator) release(callID domain.CallID) {
	mu := o.locks.of(callID)
	mu.Lock()
	err := o.Registry.Release(callID)
	mu.Unlock()
	if err != nil {
		o.Metrics.Inconsistent("occupancy_underflow")
		log.Error().Err(err).Str("module", "orch").Str("call_id", string(callID)).Msg("release")
	}
}

// EvictRoom force-closes every session of callID. Bookkeeping follows
// through the regular disconnect path of each connection.
func (o *Orchestrator) EvictRoom(callID domain.CallID) int {
	members := o.Directory.Members(callID)
	for _, s := range members {
		s.Signal().Close()
	}
	log.Info().Str("module", "orch").Str("call_id", string(callID)).Int("evicted", len(members)).Msg("room evicted")
	return len(members)
}

func (o *Orchestrator) Rooms() []core.RoomInfo { return o.Registry.Snapshot() }

func (o *Orchestrator) Room(callID domain.CallID) core.RoomInfo {
	return core.RoomInfo{CallID: callID, Occupancy: o.Registry.Occupancy(callID)}
}
