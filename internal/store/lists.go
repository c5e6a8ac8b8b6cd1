package store

import (
	"encoding/json"
	"os"
	"sync"
)

// NameList is a JSON-file-backed list of usernames, used for the ban and
// admin lists. Mutations rewrite the file.
type NameList struct {
	mu    sync.Mutex
	path  string
	names []string
}

// LoadNameList reads a name list from path. A missing file yields an empty
// list.
func LoadNameList(path string) (*NameList, error) {
	l := &NameList{path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, &l.names); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *NameList) Contains(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.index(name) >= 0
}

// Add appends a name and persists the list. Reports false when the name was
// already present.
func (l *NameList) Add(name string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.index(name) >= 0 {
		return false, nil
	}
	l.names = append(l.names, name)
	return true, l.save()
}

// Remove deletes a name and persists the list. Reports false when the name
// was not present.
func (l *NameList) Remove(name string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := l.index(name)
	if i < 0 {
		return false, nil
	}
	l.names = append(l.names[:i], l.names[i+1:]...)
	return true, l.save()
}

func (l *NameList) index(name string) int {
	for i, n := range l.names {
		if n == name {
			return i
		}
	}
	return -1
}

func (l *NameList) save() error {
	data, err := json.MarshalIndent(l.names, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(l.path, data, 0o644)
}
