package session

import (
	"sort"
	"strings"
	"sync"

	"github.com/pushcore/go-client/internal/wire"
)

// SubscriptionMode mirrors wire.SubscriptionMode for façade callers that
// never otherwise need to import internal/wire directly.
type SubscriptionMode = wire.SubscriptionMode

const (
	ModeMerge    = wire.ModeMerge
	ModeDistinct = wire.ModeDistinct
	ModeRaw      = wire.ModeRaw
	ModeCommand  = wire.ModeCommand
)

// UpdateListener receives update events for one Subscription, per spec.md
// component F. OnItemUpdate carries the already-merged field values: a
// field the wire marks unchanged is resolved to its last-known value for
// this item. A nil entry at index i means the field is null, or unchanged
// with no earlier value for this item.
type UpdateListener interface {
	OnItemUpdate(itemIdx int, fields []*string, isSnapshot bool)
	// OnCommandUpdate additionally reports the command-mode key and ADD/
	// UPDATE/DELETE classification, for Mode == ModeCommand subscriptions.
	OnCommandUpdate(itemIdx int, key string, command string, fields []*string, isSnapshot bool)
	OnSubscriptionError(code int, message string)
	OnUnsubscription()
}

// Subscription is one subscription request, per spec.md §3. Zero value is
// not usable; construct with NewSubscription.
type Subscription struct {
	Mode      SubscriptionMode
	Items     []string
	Fields    []string
	KeyField  string // required when Mode == ModeCommand
	CommandField string
	DataAdapter string
	Snapshot    bool

	Listener UpdateListener

	mu       sync.Mutex
	subID    int
	active   bool
	// lastFields and lastCommandKeys hold the last-known field values per
	// item (and, in command mode, per key within item) so that an
	// unchanged-sentinel field in a later update can be resolved to its
	// last value, per spec.md's wire field semantics.
	lastFields      map[int][]string
	commandKeyState map[int]map[string][]string
}

// NewSubscription constructs a Subscription ready to pass to Client.Subscribe.
func NewSubscription(mode SubscriptionMode, items, fields []string, listener UpdateListener) *Subscription {
	return &Subscription{
		Mode:     mode,
		Items:    items,
		Fields:   fields,
		Listener: listener,
	}
}

func (s *Subscription) isActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// subscriptionManager tracks the ACTIVE set and reconciles it across a
// session turnover, per spec.md component F: on a brand-new session every
// still-wanted Subscription is resent with a freshly assigned subID (the
// server has no memory of the old ids), and an UNSUB for an id the server
// no longer recognizes is tolerated rather than treated as an error —
// grounded on the teacher's mcp/session_store.go-style registry-plus-
// reconciliation shape, generalized from "set of session ids" to "set of
// active subscriptions with a subID namespace".
type subscriptionManager struct {
	mu     sync.Mutex
	nextID int
	byID   map[int]*Subscription
	all    []*Subscription
}

func newSubscriptionManager() *subscriptionManager {
	return &subscriptionManager{byID: make(map[int]*Subscription)}
}

// add registers a new Subscription as wanted, without assigning it a subID
// yet (that happens in assignAll / assignOne, once a session exists).
func (m *subscriptionManager) add(sub *Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sub.isActive() {
		return &StateError{Msg: "subscription is already active"}
	}
	m.all = append(m.all, sub)
	return nil
}

// remove unregisters sub, returning its subID if it had been assigned one
// (so the caller can send a delete control request).
func (m *subscriptionManager) remove(sub *Subscription) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.all {
		if s == sub {
			m.all = append(m.all[:i], m.all[i+1:]...)
			break
		}
	}
	sub.mu.Lock()
	id, active := sub.subID, sub.active
	sub.active = false
	sub.mu.Unlock()
	if active {
		delete(m.byID, id)
	}
	return id, active
}

// assignAll gives every still-wanted Subscription a fresh subID, for use
// right after a new session is created (spec.md: "subIds are per-session;
// a session turnover always starts the numbering over"). Returns the
// Subscriptions in registration order, each now carrying its new subID, so
// the caller can build ADD control requests.
func (m *subscriptionManager) assignAll() []*Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID = 0
	m.byID = make(map[int]*Subscription)
	ordered := make([]*Subscription, len(m.all))
	copy(ordered, m.all)
	for _, s := range ordered {
		m.nextID++
		s.mu.Lock()
		s.subID = m.nextID
		s.active = true
		s.lastFields = make(map[int][]string)
		s.commandKeyState = make(map[int]map[string][]string)
		s.mu.Unlock()
		m.byID[m.nextID] = s
	}
	return ordered
}

// assignOne gives sub a fresh subID without disturbing any other
// Subscription's numbering, for a Subscribe call made against an
// already-live session (no turnover in progress). Returns nil if sub is
// not registered (it was removed before this ran) or already active.
func (m *subscriptionManager) assignOne(sub *Subscription) *Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sub.isActive() {
		return nil
	}
	found := false
	for _, s := range m.all {
		if s == sub {
			found = true
			break
		}
	}
	if !found {
		return nil
	}
	m.nextID++
	sub.mu.Lock()
	sub.subID = m.nextID
	sub.active = true
	sub.lastFields = make(map[int][]string)
	sub.commandKeyState = make(map[int]map[string][]string)
	sub.mu.Unlock()
	m.byID[m.nextID] = sub
	return sub
}

// byIDLookup finds the Subscription owning subID, or nil (an UNSUB for an
// id the manager has never heard of, or already removed, is a no-op).
func (m *subscriptionManager) byIDLookup(subID int) *Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[subID]
}

func (m *subscriptionManager) markUnsubscribed(subID int) {
	m.mu.Lock()
	sub := m.byID[subID]
	delete(m.byID, subID)
	m.mu.Unlock()
	if sub != nil {
		sub.mu.Lock()
		sub.active = false
		sub.mu.Unlock()
		if sub.Listener != nil {
			sub.Listener.OnUnsubscription()
		}
	}
}

// applyUpdate resolves the unchanged/null/empty sentinels in ev against the
// Subscription's last-known values and dispatches to its listener. For
// ModeCommand subscriptions, fields[KeyField]/fields[CommandField] drive a
// second-level per-key merge, per spec.md component F's two-level tracking.
func (m *subscriptionManager) applyUpdate(ev *wire.U) {
	sub := m.byIDLookup(int(ev.SubID))
	if sub == nil || sub.Listener == nil {
		return
	}
	itemIdx := int(ev.ItemIdx)

	sub.mu.Lock()
	defer sub.mu.Unlock()

	resolved := make([]*string, len(ev.Fields))
	prev := sub.lastFields[itemIdx]
	for i, f := range ev.Fields {
		switch f.Kind {
		case wire.FieldUnchanged:
			if i < len(prev) {
				v := prev[i]
				resolved[i] = &v
			}
		case wire.FieldNull:
			resolved[i] = nil
		default:
			v := f.Value
			resolved[i] = &v
		}
	}
	merged := make([]string, len(resolved))
	for i, r := range resolved {
		if r != nil {
			merged[i] = *r
		} else if i < len(prev) {
			merged[i] = prev[i]
		}
	}
	sub.lastFields[itemIdx] = merged

	if sub.Mode != ModeCommand {
		sub.Listener.OnItemUpdate(itemIdx, resolved, false)
		return
	}

	keyIdx, cmdIdx := commandIndices(sub)
	if keyIdx < 0 || keyIdx >= len(merged) || cmdIdx < 0 || cmdIdx >= len(merged) {
		sub.Listener.OnItemUpdate(itemIdx, resolved, false)
		return
	}
	key := merged[keyIdx]
	cmd := merged[cmdIdx]
	if sub.commandKeyState[itemIdx] == nil {
		sub.commandKeyState[itemIdx] = make(map[string][]string)
	}
	if cmd == "DELETE" {
		delete(sub.commandKeyState[itemIdx], key)
	} else {
		sub.commandKeyState[itemIdx][key] = merged
	}
	sub.Listener.OnCommandUpdate(itemIdx, key, cmd, resolved, false)
}

// commandIndices finds the zero-based offsets of KeyField/CommandField
// within sub.Fields, computed lazily since the wire only reports raw field
// index, not the field's name.
func commandIndices(sub *Subscription) (keyIdx, cmdIdx int) {
	keyIdx, cmdIdx = -1, -1
	for i, f := range sub.Fields {
		if f == sub.KeyField {
			keyIdx = i
		}
		if f == sub.CommandField {
			cmdIdx = i
		}
	}
	return
}

// buildAddRequests returns one wire.ControlRequest (Op == wire.OpAddSub)
// per Subscription in ordered, in stable order (sorted by subID) so retries
// over a flaky connection reproduce byte-identical request sequences.
// RequestID is left zero; the Session Manager assigns it immediately
// before dispatch, since that is also where REQOK/REQERR correlation is
// tracked.
func buildAddRequests(ordered []*Subscription) []wire.ControlRequest {
	reqs := make([]wire.ControlRequest, 0, len(ordered))
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].subID < ordered[j].subID })
	for _, s := range ordered {
		reqs = append(reqs, wire.ControlRequest{
			Op:       wire.OpAddSub,
			SubID:    int64(s.subID),
			Mode:     s.Mode,
			Group:    strings.Join(s.Items, " "),
			Schema:   strings.Join(s.Fields, " "),
			Snapshot: s.Snapshot,
		})
	}
	return reqs
}

func buildDeleteRequest(subID int) wire.ControlRequest {
	return wire.ControlRequest{Op: wire.OpDeleteSub, SubID: int64(subID)}
}
