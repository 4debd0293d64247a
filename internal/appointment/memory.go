package appointment

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryRepository is an in-memory Repository, used by tests and by the
// simulator when no database is configured.
type MemoryRepository struct {
	mu          sync.RWMutex
	patients    map[int64]Patient
	appts       map[int64]Appointment
	nextPatient int64
	nextAppt    int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		patients: make(map[int64]Patient),
		appts:    make(map[int64]Appointment),
	}
}

func (r *MemoryRepository) GetPatientByID(_ context.Context, id int64) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (r *MemoryRepository) CreatePatient(_ context.Context, p Patient) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextPatient++
	now := time.Now()
	p.ID = r.nextPatient
	p.CreatedAt, p.UpdatedAt = now, now
	r.patients[p.ID] = p
	return &p, nil
}

func (r *MemoryRepository) ListPatientIDs(_ context.Context, limit int) ([]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]int64, 0, len(r.patients))
	for id := range r.patients {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (r *MemoryRepository) GetAppointmentByID(_ context.Context, id int64) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *MemoryRepository) ListAppointments(_ context.Context, f ListFilter) ([]AppointmentDetail, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	needle := strings.ToLower(f.Patient)
	var matched []AppointmentDetail
	for _, a := range r.appts {
		if f.DateFrom != nil && a.Date.Before(CivilDate(*f.DateFrom)) {
			continue
		}
		if f.DateTo != nil && a.Date.After(CivilDate(*f.DateTo)) {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}

		var patient *Patient
		if p, ok := r.patients[a.PatientID]; ok {
			patient = &p
		}
		if needle != "" {
			if patient == nil ||
				!(strings.Contains(strings.ToLower(patient.FullName), needle) ||
					strings.Contains(strings.ToLower(patient.DNI), needle)) {
				continue
			}
		}
		matched = append(matched, AppointmentDetail{Appointment: a, Patient: patient})
	}

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.After(b.Date)
		}
		if a.Time != b.Time {
			return a.Time.After(b.Time)
		}
		return a.ID > b.ID
	})

	total := len(matched)
	if f.Offset >= total {
		return nil, total, nil
	}
	matched = matched[f.Offset:]
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, total, nil
}

func (r *MemoryRepository) Summarize(_ context.Context, today time.Time) (Summary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	today = CivilDate(today)
	var s Summary
	for _, a := range r.appts {
		s.Total++
		if a.Date.Equal(today) {
			s.Today++
		}
		switch a.Status {
		case StatusPending:
			s.Pending++
		case StatusConfirmed:
			s.Confirmed++
		}
	}
	return s, nil
}

func (r *MemoryRepository) ListActiveOnDate(_ context.Context, date time.Time) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	date = CivilDate(date)
	var result []Appointment
	for _, a := range r.appts {
		if a.Date.Equal(date) && a.Status.IsActive() {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Time.Before(result[j].Time) })
	return result, nil
}

func (r *MemoryRepository) CreateAppointment(_ context.Context, a Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextAppt++
	now := time.Now()
	a.ID = r.nextAppt
	a.Date = CivilDate(a.Date)
	a.CreatedAt, a.UpdatedAt = now, now
	r.appts[a.ID] = a
	return &a, nil
}

func (r *MemoryRepository) UpdateAppointment(_ context.Context, a Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.appts[a.ID]
	if !ok || !cur.Status.IsActive() {
		return nil, ErrAppointmentNotFound
	}

	cur.PatientID = a.PatientID
	cur.Date = CivilDate(a.Date)
	cur.Time = a.Time
	cur.DurationMinutes = a.DurationMinutes
	cur.Reason = a.Reason
	cur.Notes = a.Notes
	cur.UpdatedAt = time.Now()
	r.appts[a.ID] = cur
	return &cur, nil
}

func (r *MemoryRepository) UpdateAppointmentStatus(_ context.Context, id int64, from, to AppointmentStatus) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.appts[id]
	if !ok || cur.Status != from {
		return nil, ErrAppointmentNotFound
	}

	cur.Status = to
	cur.UpdatedAt = time.Now()
	r.appts[id] = cur
	return &cur, nil
}

func (r *MemoryRepository) ListPendingReminders(_ context.Context, from, to time.Time) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	from, to = CivilDate(from), CivilDate(to)
	var result []Appointment
	for _, a := range r.appts {
		if a.ReminderSent {
			continue
		}
		if a.Status != StatusPending && a.Status != StatusConfirmed {
			continue
		}
		if a.Date.Before(from) || a.Date.After(to) {
			continue
		}
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.Before(result[j].Date)
		}
		return result[i].Time.Before(result[j].Time)
	})
	return result, nil
}

func (r *MemoryRepository) MarkReminderSent(_ context.Context, id int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.appts[id]
	if !ok {
		return ErrAppointmentNotFound
	}
	cur.ReminderSent = true
	cur.ReminderAt = &at
	cur.UpdatedAt = time.Now()
	r.appts[id] = cur
	return nil
}

// Put stores a fully formed appointment as-is, bypassing every rule. Tests use
// it to seed rows that could not be booked through the service, such as past
// or terminal ones.
func (r *MemoryRepository) Put(a Appointment) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a.ID == 0 {
		r.nextAppt++
		a.ID = r.nextAppt
	} else if a.ID > r.nextAppt {
		r.nextAppt = a.ID
	}
	a.Date = CivilDate(a.Date)
	r.appts[a.ID] = a
}

var _ Repository = (*MemoryRepository)(nil)
var _ Repository = (*PgRepository)(nil)
