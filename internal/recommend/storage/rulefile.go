// Cartsage - Basket Association Rules and Adaptive Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartsage

package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/cartsage/internal/recommend"
)

// DefaultRuleFileName matches the artifact name consumed by existing frontends.
const DefaultRuleFileName = "apriori_rules.json"

// RuleFileInfo describes the file backing a RuleFile.
type RuleFileInfo struct {
	Path      string    `json:"path"`
	Exists    bool      `json:"exists"`
	SizeBytes int64     `json:"size_bytes"`
	ModTime   time.Time `json:"mod_time,omitempty"`
}

// RuleFile is a recommend.RuleStore backed by a single JSON file.
type RuleFile struct {
	dir  string
	path string

	// Serializes writers. Readers never take it; atomicity comes from rename.
	writeMu sync.Mutex
}

// NewRuleFile creates the directory if needed and removes temporary files left
// by writes that were interrupted.
func NewRuleFile(dir, name string) (*RuleFile, error) {
	if name == "" {
		name = DefaultRuleFileName
	}
	if err := os.MkdirAll(dir, 0o750); err != nil { //nolint:gosec // 0750 is acceptable for rule storage
		return nil, fmt.Errorf("create rules directory: %w", err)
	}

	rf := &RuleFile{dir: dir, path: filepath.Join(dir, name)}
	stale, err := filepath.Glob(filepath.Join(dir, rf.tempPattern()))
	if err != nil {
		return nil, fmt.Errorf("scan temporary files: %w", err)
	}
	for _, tmp := range stale {
		_ = os.Remove(tmp) //nolint:errcheck // best-effort cleanup of abandoned writes
	}
	return rf, nil
}

// Path returns the location of the rules file.
func (rf *RuleFile) Path() string {
	return rf.path
}

func (rf *RuleFile) tempPattern() string {
	return "." + filepath.Base(rf.path) + ".tmp-*"
}

// Replace implements recommend.RuleStore.
func (rf *RuleFile) Replace(rules recommend.RuleSet) error {
	if rules == nil {
		rules = recommend.RuleSet{}
	}
	data, err := json.MarshalIndent(rules, "", "  ")
	if err != nil {
		return fmt.Errorf("encode rules: %w", err)
	}

	rf.writeMu.Lock()
	defer rf.writeMu.Unlock()

	tmp, err := os.CreateTemp(rf.dir, rf.tempPattern())
	if err != nil {
		return fmt.Errorf("create temporary rules file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()        //nolint:errcheck // already failing
			_ = os.Remove(tmpName) //nolint:errcheck // already failing
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temporary rules file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temporary rules file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temporary rules file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o640); err != nil { //nolint:gosec // rules are not secret but need not be world-readable
		return fmt.Errorf("chmod temporary rules file: %w", err)
	}
	if err := os.Rename(tmpName, rf.path); err != nil {
		return fmt.Errorf("swap rules file: %w", err)
	}
	committed = true

	syncDir(rf.dir)
	return nil
}

// syncDir persists the rename. Not every platform supports syncing a directory.
func syncDir(dir string) {
	d, err := os.Open(dir) //nolint:gosec // dir is the configured rules directory
	if err != nil {
		return
	}
	_ = d.Sync()  //nolint:errcheck // unsupported on some platforms
	_ = d.Close() //nolint:errcheck // read-only handle
}

// Read implements recommend.RuleStore.
func (rf *RuleFile) Read() (recommend.RuleSet, error) {
	data, err := os.ReadFile(rf.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, recommend.ErrNotYetGenerated
	}
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return decodeRules(data)
}

func decodeRules(data []byte) (recommend.RuleSet, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: rules file is empty", recommend.ErrCorruptState)
	}
	if trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: expected a JSON array", recommend.ErrCorruptState)
	}

	var rules recommend.RuleSet
	if err := json.Unmarshal(trimmed, &rules); err != nil {
		return nil, fmt.Errorf("%w: %s", recommend.ErrCorruptState, strings.TrimSpace(err.Error()))
	}
	if rules == nil {
		rules = recommend.RuleSet{}
	}
	return rules, nil
}

// Info reports the current state of the rules file.
func (rf *RuleFile) Info() (RuleFileInfo, error) {
	info := RuleFileInfo{Path: rf.path}
	st, err := os.Stat(rf.path)
	if errors.Is(err, fs.ErrNotExist) {
		return info, nil
	}
	if err != nil {
		return info, fmt.Errorf("stat rules file: %w", err)
	}
	info.Exists = true
	info.SizeBytes = st.Size()
	info.ModTime = st.ModTime()
	return info, nil
}
