package core

import "sync"

type StatusEntry struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// ApplicationStatus collects one status text per facet, keeping the order in
// which facets first reported.
type ApplicationStatus struct {
	mu      sync.Mutex
	entries []StatusEntry
}

func NewApplicationStatus() *ApplicationStatus {
	return &ApplicationStatus{}
}

func (s *ApplicationStatus) Set(key string, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		if s.entries[i].Name == key {
			s.entries[i].Text = text
			return
		}
	}
	s.entries = append(s.entries, StatusEntry{Name: key, Text: text})
}

func (s *ApplicationStatus) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.Name == key {
			return e.Text, true
		}
	}
	return "", false
}

func (s *ApplicationStatus) Entries() []StatusEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StatusEntry, len(s.entries))
	copy(out, s.entries)
	return out
}
