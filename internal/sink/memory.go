package sink

import (
	"context"
	"sync"

	"gridsync/internal/grid"
)

// CallCounts records how many times each Grid operation ran. Flush cost
// assertions in tests read these.
type CallCounts struct {
	Keys     int
	ReadRows int
	Appends  int
	Writes   int
	Deletes  int
	Clears   int
}

// MemoryGrid is an in-memory Grid. It preserves append order for the
// key scan, counts every call, and can inject a one-shot failure on the
// next boundary call - which makes it both the ephemeral backend and
// the instrument for verifying the O(1) call bound.
type MemoryGrid struct {
	mu    sync.Mutex
	rows  map[grid.Key]grid.Row
	order []grid.Key
	calls CallCounts
	fail  error
}

// NewMemoryGrid returns an empty in-memory grid.
func NewMemoryGrid() *MemoryGrid {
	return &MemoryGrid{rows: make(map[grid.Key]grid.Row)}
}

// FailNext makes the next Grid call return err instead of executing.
// Subsequent calls behave normally again.
func (m *MemoryGrid) FailNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

// Calls returns a snapshot of the per-operation call counts.
func (m *MemoryGrid) Calls() CallCounts {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// ResetCalls zeroes the call counters without touching stored rows.
func (m *MemoryGrid) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = CallCounts{}
}

// takeFailure consumes a pending injected failure. Callers hold mu.
func (m *MemoryGrid) takeFailure() error {
	err := m.fail
	m.fail = nil
	return err
}

func (m *MemoryGrid) Keys(_ context.Context) ([]grid.Key, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls.Keys++
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	out := make([]grid.Key, len(m.order))
	copy(out, m.order)
	return out, nil
}

func (m *MemoryGrid) ReadRows(_ context.Context, keys []grid.Key) (map[grid.Key]grid.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls.ReadRows++
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	out := make(map[grid.Key]grid.Row, len(keys))
	for _, k := range keys {
		if row, ok := m.rows[k]; ok {
			out[k] = row
		}
	}
	return out, nil
}

func (m *MemoryGrid) AppendRows(_ context.Context, rows []grid.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls.Appends++
	if err := m.takeFailure(); err != nil {
		return err
	}
	m.store(rows)
	return nil
}

func (m *MemoryGrid) WriteRows(_ context.Context, rows []grid.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls.Writes++
	if err := m.takeFailure(); err != nil {
		return err
	}
	m.store(rows)
	return nil
}

// store upserts whole rows, keeping first-append key order stable.
// Callers hold mu.
func (m *MemoryGrid) store(rows []grid.Row) {
	for _, row := range rows {
		if _, exists := m.rows[row.Key]; !exists {
			m.order = append(m.order, row.Key)
		}
		m.rows[row.Key] = row
	}
}

func (m *MemoryGrid) DeleteRow(_ context.Context, key grid.Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls.Deletes++
	if err := m.takeFailure(); err != nil {
		return err
	}
	if _, ok := m.rows[key]; !ok {
		return nil
	}
	delete(m.rows, key)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MemoryGrid) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls.Clears++
	if err := m.takeFailure(); err != nil {
		return err
	}
	m.rows = make(map[grid.Key]grid.Row)
	m.order = nil
	return nil
}
