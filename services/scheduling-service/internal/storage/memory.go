package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/scheduling"
)

// Memory is an in-process Store. Units of work serialize on per-party and
// per-appointment locks and stage their writes until fn returns nil.
type Memory struct {
	mu           sync.RWMutex
	users        map[string]model.User
	clinics      map[string]model.Clinic
	procedures   map[string]model.Procedure
	appointments map[string]model.Appointment

	locks *keyLocks
	now   func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		users:        map[string]model.User{},
		clinics:      map[string]model.Clinic{},
		procedures:   map[string]model.Procedure{},
		appointments: map[string]model.Appointment{},
		locks:        newKeyLocks(),
		now:          time.Now,
	}
}

func (m *Memory) PutUser(u model.User) {
	m.mu.Lock()
	m.users[u.ID] = u
	m.mu.Unlock()
}

func (m *Memory) PutClinic(c model.Clinic) {
	m.mu.Lock()
	m.clinics[c.ID] = c
	m.mu.Unlock()
}

func (m *Memory) PutProcedure(p model.Procedure) {
	m.mu.Lock()
	m.procedures[p.ID] = p
	m.mu.Unlock()
}

// PutAppointment stores a as is, bypassing overlap checks. Used for
// fixtures and imports.
func (m *Memory) PutAppointment(a model.Appointment) {
	m.mu.Lock()
	m.appointments[a.ID] = a
	m.mu.Unlock()
}

func (m *Memory) FindUser(_ context.Context, id string) (model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return model.User{}, &scheduling.NotFoundError{Kind: "user", ID: id}
	}
	return u, nil
}

func (m *Memory) FindClinic(_ context.Context, id string) (model.Clinic, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clinics[id]
	if !ok {
		return model.Clinic{}, &scheduling.NotFoundError{Kind: "clinic", ID: id}
	}
	return c, nil
}

func (m *Memory) FindProcedure(_ context.Context, id string) (model.Procedure, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.procedures[id]
	if !ok {
		return model.Procedure{}, &scheduling.NotFoundError{Kind: "procedure", ID: id}
	}
	return p, nil
}

func (m *Memory) FindAppointment(_ context.Context, id string) (model.Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.appointments[id]
	if !ok {
		return model.Appointment{}, &scheduling.NotFoundError{Kind: "appointment", ID: id}
	}
	return a, nil
}

func (m *Memory) Overlapping(ctx context.Context, q availability.Query) ([]model.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.filter(func(a model.Appointment) bool {
		return partyMatches(q, a) && a.Status.Blocking() && availability.Overlaps(q.Window, availability.Of(a))
	}), nil
}

func (m *Memory) ListByPatient(_ context.Context, patientID string) ([]model.Appointment, error) {
	return m.filter(func(a model.Appointment) bool { return a.PatientID == patientID }), nil
}

func (m *Memory) ListByProfessional(_ context.Context, professionalID string) ([]model.Appointment, error) {
	return m.filter(func(a model.Appointment) bool { return a.ProfessionalID == professionalID }), nil
}

func (m *Memory) ListByClinic(_ context.Context, clinicID string, from, to time.Time) ([]model.Appointment, error) {
	return m.filter(func(a model.Appointment) bool {
		return a.ClinicID == clinicID && !a.Start.Before(from) && a.Start.Before(to)
	}), nil
}

func (m *Memory) ListSeries(_ context.Context, groupID string, from time.Time) ([]model.Appointment, error) {
	return m.filter(func(a model.Appointment) bool {
		return groupID != "" && a.RecurrenceGroupID == groupID && !a.Start.Before(from)
	}), nil
}

// filter returns matching appointments ordered by start, then ID.
func (m *Memory) filter(keep func(model.Appointment) bool) []model.Appointment {
	m.mu.RLock()
	out := make([]model.Appointment, 0)
	for _, a := range m.appointments {
		if keep(a) {
			out = append(out, a)
		}
	}
	m.mu.RUnlock()
	sortByStart(out)
	return out
}

func (m *Memory) InTx(ctx context.Context, locks []scheduling.LockKey, fn func(ctx context.Context, tx scheduling.Tx) error) error {
	keys := make([]string, 0, len(locks))
	for _, l := range locks {
		keys = append(keys, string(l.Party)+":"+l.ID)
	}
	release, err := m.locks.acquire(ctx, keys...)
	if err != nil {
		return err
	}
	tx := &memoryTx{store: m, staged: map[string]model.Appointment{}}
	defer func() { tx.release(); release() }()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	for id, a := range tx.staged {
		m.appointments[id] = a
	}
	m.mu.Unlock()
	return nil
}

type memoryTx struct {
	store  *Memory
	staged map[string]model.Appointment
	held   []func()
}

// Overlapping sees committed rows with this unit's staged writes on top.
func (t *memoryTx) Overlapping(ctx context.Context, q availability.Query) ([]model.Appointment, error) {
	committed, err := t.store.Overlapping(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]model.Appointment, 0, len(committed))
	for _, a := range committed {
		if _, ok := t.staged[a.ID]; !ok {
			out = append(out, a)
		}
	}
	for _, a := range t.staged {
		if partyMatches(q, a) && a.Status.Blocking() && availability.Overlaps(q.Window, availability.Of(a)) {
			out = append(out, a)
		}
	}
	sortByStart(out)
	return out, nil
}

func (t *memoryTx) Insert(ctx context.Context, a model.Appointment) (model.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return model.Appointment{}, err
	}
	now := t.store.now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	t.staged[a.ID] = a
	return a, nil
}

func (t *memoryTx) LockAppointment(ctx context.Context, id string) (model.Appointment, error) {
	if a, ok := t.staged[id]; ok {
		return a, nil
	}
	release, err := t.store.locks.acquire(ctx, "appointment:"+id)
	if err != nil {
		return model.Appointment{}, err
	}
	t.held = append(t.held, release)
	return t.store.FindAppointment(ctx, id)
}

func (t *memoryTx) UpdateCancellation(ctx context.Context, a model.Appointment) (model.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return model.Appointment{}, err
	}
	current, ok := t.staged[a.ID]
	if !ok {
		var err error
		if current, err = t.store.FindAppointment(ctx, a.ID); err != nil {
			return model.Appointment{}, err
		}
	}
	current.Status = a.Status
	current.CancelReason = a.CancelReason
	current.CanceledAt = a.CanceledAt
	current.CanceledBy = a.CanceledBy
	current.UpdatedAt = t.store.now().UTC()
	t.staged[a.ID] = current
	return current, nil
}

func (t *memoryTx) release() {
	for i := len(t.held) - 1; i >= 0; i-- {
		t.held[i]()
	}
	t.held = nil
}

func partyMatches(q availability.Query, a model.Appointment) bool {
	if q.ExcludeID != "" && a.ID == q.ExcludeID {
		return false
	}
	switch q.Party {
	case availability.PartyProfessional:
		return a.ProfessionalID == q.PartyID
	case availability.PartyPatient:
		return a.PatientID == q.PartyID
	}
	return false
}

func sortByStart(list []model.Appointment) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].Start.Equal(list[j].Start) {
			return list[i].Start.Before(list[j].Start)
		}
		return list[i].ID < list[j].ID
	})
}

// keyLocks hands out one-slot semaphores per key so acquisition can be
// abandoned when ctx ends.
type keyLocks struct {
	mu    sync.Mutex
	slots map[string]*keySlot
}

type keySlot struct {
	ch   chan struct{}
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{slots: map[string]*keySlot{}}
}

// acquire locks keys in sorted order and returns a func releasing all of
// them. Duplicates are locked once.
func (k *keyLocks) acquire(ctx context.Context, keys ...string) (func(), error) {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	var held []string
	releaseAll := func() {
		for i := len(held) - 1; i >= 0; i-- {
			k.unlock(held[i])
		}
	}
	for i, key := range sorted {
		if i > 0 && key == sorted[i-1] {
			continue
		}
		slot := k.ref(key)
		select {
		case slot.ch <- struct{}{}:
			held = append(held, key)
		case <-ctx.Done():
			k.unref(key)
			releaseAll()
			return nil, ctx.Err()
		}
	}
	return releaseAll, nil
}

func (k *keyLocks) ref(key string) *keySlot {
	k.mu.Lock()
	defer k.mu.Unlock()
	slot, ok := k.slots[key]
	if !ok {
		slot = &keySlot{ch: make(chan struct{}, 1)}
		k.slots[key] = slot
	}
	slot.refs++
	return slot
}

func (k *keyLocks) unref(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if slot, ok := k.slots[key]; ok {
		slot.refs--
		if slot.refs == 0 {
			delete(k.slots, key)
		}
	}
}

func (k *keyLocks) unlock(key string) {
	k.mu.Lock()
	slot := k.slots[key]
	k.mu.Unlock()
	<-slot.ch
	k.unref(key)
}
