package store

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/magiconair/properties"
)

const (
	keyAutostart = "autostart"
	keyScripts   = "scripts"
	scriptSep    = ";"
)

// PropertiesStore keeps the Snapshot in a Java-style properties file:
//
//	autostart=true
//	scripts=C:\\jobs\\a.cmd;C:\\jobs\\b.cmd;
type PropertiesStore struct {
	mu   sync.Mutex
	path string
}

func NewPropertiesStore(path string) *PropertiesStore {
	if path == "" {
		path = DefaultFile
	}
	return &PropertiesStore{path: path}
}

func (s *PropertiesStore) Path() string { return s.path }

func (s *PropertiesStore) Load() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}
	p, err := l.LoadFile(s.path)
	if err != nil {
		return Snapshot{}, &PersistenceError{Op: "load", Path: s.path, Err: err}
	}
	return Snapshot{
		Autostart: p.GetBool(keyAutostart, false),
		Scripts:   SplitScripts(p.GetString(keyScripts, "")),
	}, nil
}

func (s *PropertiesStore) Save(snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := properties.NewProperties()
	p.DisableExpansion = true
	if _, _, err := p.Set(keyAutostart, fmt.Sprint(snap.Autostart)); err != nil {
		return &PersistenceError{Op: "save", Path: s.path, Err: err}
	}
	if _, _, err := p.Set(keyScripts, JoinScripts(snap.Scripts)); err != nil {
		return &PersistenceError{Op: "save", Path: s.path, Err: err}
	}
	var buf bytes.Buffer
	if _, err := p.Write(&buf, properties.UTF8); err != nil {
		return &PersistenceError{Op: "save", Path: s.path, Err: err}
	}
	if err := writeFile(s.path, buf.Bytes()); err != nil {
		return &PersistenceError{Op: "save", Path: s.path, Err: err}
	}
	return nil
}

// writeFile replaces path through a temp file in the same directory.
func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return nil
}

// SplitScripts parses the scripts value, dropping empty items.
func SplitScripts(v string) []string {
	var out []string
	for _, p := range strings.Split(v, scriptSep) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// JoinScripts renders paths with a trailing separator after each item.
func JoinScripts(paths []string) string {
	var b strings.Builder
	for _, p := range paths {
		b.WriteString(p)
		b.WriteString(scriptSep)
	}
	return b.String()
}
