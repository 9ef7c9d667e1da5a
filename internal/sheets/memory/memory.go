package memory

import (
	"context"
	"sort"
	"sync"

	ports "fintrack/internal/sheets"
)

// Sheet is one stored tab.
type Sheet struct {
	Header []string
	Rows   [][]any
}

// Store keeps tabs in memory. Used in tests and when no spreadsheet is
// configured.
type Store struct {
	mu     sync.Mutex
	sheets map[string]Sheet
	writes int
}

var _ ports.WorkbookWriter = (*Store)(nil)

func New() *Store {
	return &Store{sheets: map[string]Sheet{}}
}

// WriteSheet replaces the named tab with a copy of header and rows.
func (s *Store) WriteSheet(_ context.Context, name string, header []string, rows [][]any) error {
	cp := Sheet{Header: append([]string(nil), header...), Rows: make([][]any, len(rows))}
	for i, r := range rows {
		cp.Rows[i] = append([]any(nil), r...)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sheets[name] = cp
	s.writes++
	return nil
}

func (s *Store) Sheet(name string) (Sheet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.sheets[name]
	return sh, ok
}

// Names lists stored tabs in sorted order.
func (s *Store) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sheets))
	for n := range s.sheets {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Writes counts WriteSheet calls.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}
