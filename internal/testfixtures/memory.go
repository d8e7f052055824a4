package testfixtures

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/openvax/vaccine-appointment-scheduling/internal/reservation"
)

// MemRepo is an in-memory Repository used by the engine and API tests.
// InTx holds the mutex for the whole callback and applies writes to a
// staged copy that is committed only on success, mirroring the
// all-or-nothing behavior the row-locked database gives the real engine.
type MemRepo struct {
	mu    sync.Mutex
	state *memState
}

type slotKey struct {
	caregiver string
	date      string
}

type memState struct {
	vaccines map[string]int
	slots    map[slotKey]bool
	appts    map[int64]reservation.Appointment
	nextID   int64
}

func NewMemRepo() *MemRepo {
	return &MemRepo{
		state: &memState{
			vaccines: make(map[string]int),
			slots:    make(map[slotKey]bool),
			appts:    make(map[int64]reservation.Appointment),
			nextID:   1,
		},
	}
}

func (s *memState) clone() *memState {
	c := &memState{
		vaccines: make(map[string]int, len(s.vaccines)),
		slots:    make(map[slotKey]bool, len(s.slots)),
		appts:    make(map[int64]reservation.Appointment, len(s.appts)),
		nextID:   s.nextID,
	}
	for k, v := range s.vaccines {
		c.vaccines[k] = v
	}
	for k, v := range s.slots {
		c.slots[k] = v
	}
	for k, v := range s.appts {
		c.appts[k] = v
	}
	return c
}

func dateKey(d time.Time) string {
	return d.Format("2006-01-02")
}

func (r *MemRepo) InTx(ctx context.Context, fn func(reservation.Repository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	staged := r.state.clone()
	if err := fn(&memView{state: staged}); err != nil {
		return err
	}
	r.state = staged
	return nil
}

// Non-transactional calls delegate to a single-op transaction.

func (r *MemRepo) GetVaccine(ctx context.Context, name string) (*reservation.Vaccine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (&memView{state: r.state}).GetVaccine(ctx, name)
}

func (r *MemRepo) ListVaccines(ctx context.Context) ([]reservation.Vaccine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (&memView{state: r.state}).ListVaccines(ctx)
}

func (r *MemRepo) UpsertVaccineDoses(ctx context.Context, name string, amount int) (*reservation.Vaccine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (&memView{state: r.state}).UpsertVaccineDoses(ctx, name, amount)
}

func (r *MemRepo) DecrementVaccineDoses(ctx context.Context, name string, amount int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (&memView{state: r.state}).DecrementVaccineDoses(ctx, name, amount)
}

func (r *MemRepo) PublishAvailability(ctx context.Context, caregiver string, date time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (&memView{state: r.state}).PublishAvailability(ctx, caregiver, date)
}

func (r *MemRepo) FindCandidate(ctx context.Context, date time.Time) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (&memView{state: r.state}).FindCandidate(ctx, date)
}

func (r *MemRepo) ListCaregiversOn(ctx context.Context, date time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (&memView{state: r.state}).ListCaregiversOn(ctx, date)
}

func (r *MemRepo) ConsumeSlot(ctx context.Context, caregiver string, date time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (&memView{state: r.state}).ConsumeSlot(ctx, caregiver, date)
}

func (r *MemRepo) NextAppointmentID(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (&memView{state: r.state}).NextAppointmentID(ctx)
}

func (r *MemRepo) CreateAppointment(ctx context.Context, appt reservation.Appointment) (*reservation.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (&memView{state: r.state}).CreateAppointment(ctx, appt)
}

func (r *MemRepo) GetAppointment(ctx context.Context, id int64) (*reservation.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (&memView{state: r.state}).GetAppointment(ctx, id)
}

func (r *MemRepo) ListPatientAppointments(ctx context.Context, username string) ([]reservation.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (&memView{state: r.state}).ListPatientAppointments(ctx, username)
}

func (r *MemRepo) ListCaregiverAppointments(ctx context.Context, username string) ([]reservation.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (&memView{state: r.state}).ListCaregiverAppointments(ctx, username)
}

func (r *MemRepo) DeleteAppointment(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (&memView{state: r.state}).DeleteAppointment(ctx, id)
}

// memView operates on one state without locking; the owning MemRepo
// holds the mutex.
type memView struct {
	state *memState
}

func (v *memView) InTx(ctx context.Context, fn func(reservation.Repository) error) error {
	return fn(v)
}

func (v *memView) GetVaccine(_ context.Context, name string) (*reservation.Vaccine, error) {
	doses, ok := v.state.vaccines[name]
	if !ok {
		return nil, reservation.ErrVaccineNotFound
	}
	return &reservation.Vaccine{Name: name, Doses: doses}, nil
}

func (v *memView) ListVaccines(_ context.Context) ([]reservation.Vaccine, error) {
	names := make([]string, 0, len(v.state.vaccines))
	for name := range v.state.vaccines {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]reservation.Vaccine, 0, len(names))
	for _, name := range names {
		out = append(out, reservation.Vaccine{Name: name, Doses: v.state.vaccines[name]})
	}
	return out, nil
}

func (v *memView) UpsertVaccineDoses(_ context.Context, name string, amount int) (*reservation.Vaccine, error) {
	v.state.vaccines[name] += amount
	return &reservation.Vaccine{Name: name, Doses: v.state.vaccines[name]}, nil
}

func (v *memView) DecrementVaccineDoses(_ context.Context, name string, amount int) error {
	doses, ok := v.state.vaccines[name]
	if !ok || doses < amount {
		return reservation.ErrInsufficientStock
	}
	v.state.vaccines[name] = doses - amount
	return nil
}

func (v *memView) PublishAvailability(_ context.Context, caregiver string, date time.Time) error {
	key := slotKey{caregiver: caregiver, date: dateKey(date)}
	if v.state.slots[key] {
		return reservation.ErrDuplicateSlot
	}
	v.state.slots[key] = true
	return nil
}

func (v *memView) FindCandidate(_ context.Context, date time.Time) (string, error) {
	day := dateKey(date)
	best := ""
	for key := range v.state.slots {
		if key.date != day {
			continue
		}
		if best == "" || key.caregiver < best {
			best = key.caregiver
		}
	}
	if best == "" {
		return "", reservation.ErrNoAvailability
	}
	return best, nil
}

func (v *memView) ListCaregiversOn(_ context.Context, date time.Time) ([]string, error) {
	day := dateKey(date)
	var out []string
	for key := range v.state.slots {
		if key.date == day {
			out = append(out, key.caregiver)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (v *memView) ConsumeSlot(_ context.Context, caregiver string, date time.Time) error {
	key := slotKey{caregiver: caregiver, date: dateKey(date)}
	if !v.state.slots[key] {
		return reservation.ErrSlotGone
	}
	delete(v.state.slots, key)
	return nil
}

func (v *memView) NextAppointmentID(_ context.Context) (int64, error) {
	id := v.state.nextID
	v.state.nextID++
	return id, nil
}

func (v *memView) CreateAppointment(_ context.Context, appt reservation.Appointment) (*reservation.Appointment, error) {
	if _, ok := v.state.appts[appt.ID]; ok {
		return nil, reservation.ErrDuplicateID
	}
	appt.CreatedAt = time.Now().UTC()
	v.state.appts[appt.ID] = appt
	return &appt, nil
}

func (v *memView) GetAppointment(_ context.Context, id int64) (*reservation.Appointment, error) {
	appt, ok := v.state.appts[id]
	if !ok {
		return nil, reservation.ErrAppointmentNotFound
	}
	return &appt, nil
}

func (v *memView) ListPatientAppointments(_ context.Context, username string) ([]reservation.Appointment, error) {
	return v.listAppts(func(a reservation.Appointment) bool { return a.PatientUsername == username }), nil
}

func (v *memView) ListCaregiverAppointments(_ context.Context, username string) ([]reservation.Appointment, error) {
	return v.listAppts(func(a reservation.Appointment) bool { return a.CaregiverUsername == username }), nil
}

func (v *memView) listAppts(match func(reservation.Appointment) bool) []reservation.Appointment {
	var out []reservation.Appointment
	for _, a := range v.state.appts {
		if match(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v *memView) DeleteAppointment(_ context.Context, id int64) error {
	if _, ok := v.state.appts[id]; !ok {
		return reservation.ErrAppointmentNotFound
	}
	delete(v.state.appts, id)
	return nil
}

// NoopLocker runs the callback directly; lock behavior is the redis
// package's concern, not the engine's.
type NoopLocker struct{}

func (NoopLocker) WithDateLock(ctx context.Context, _ time.Time, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
