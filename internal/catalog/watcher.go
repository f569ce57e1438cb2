// Copyright 2026 The skillrouter Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package catalog

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Watcher hot-reloads the catalog when the skills directory or the agents
// file changes. Definitions stay immutable: a change builds a whole new
// Catalog which is handed to the swap callback; readers holding the old value
// keep a consistent snapshot.
type Watcher struct {
	skillsDir         string
	agentsFile        string
	allowedExtensions []string
	onSwap            func(*Catalog)

	watcher     *fsnotify.Watcher
	stopWatcher chan struct{}
	stopOnce    sync.Once
}

// NewWatcher creates a watcher that rebuilds the catalog on changes and
// passes the fresh value to onSwap.
func NewWatcher(skillsDir, agentsFile string, allowedExtensions []string, onSwap func(*Catalog)) *Watcher {
	return &Watcher{
		skillsDir:         skillsDir,
		agentsFile:        agentsFile,
		allowedExtensions: allowedExtensions,
		onSwap:            onSwap,
		stopWatcher:       make(chan struct{}),
	}
}

// Start begins watching in a background goroutine.
func (w *Watcher) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = watcher

	// Watch the skills tree; fsnotify needs every directory added explicitly.
	err = filepath.Walk(w.skillsDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		watcher.Close()
		return err
	}

	if w.agentsFile != "" {
		// Watch the parent directory: editors replace files by rename, which
		// drops a watch on the file itself.
		if err := watcher.Add(filepath.Dir(w.agentsFile)); err != nil {
			log.Warnf("Failed to watch agents file directory: %v", err)
		}
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
					log.Infof("Catalog source changed (%s), reloading...", event.Name)
					time.Sleep(100 * time.Millisecond)
					w.reload()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Errorf("Catalog watcher error: %v", err)
			case <-w.stopWatcher:
				return
			}
		}
	}()

	return nil
}

func (w *Watcher) reload() {
	fresh, err := Load(w.skillsDir, w.agentsFile, w.allowedExtensions)
	if err != nil {
		log.Errorf("Failed to reload catalog: %v", err)
		return
	}
	w.onSwap(fresh)
}

// Stop shuts the watcher down. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopWatcher)
		if w.watcher != nil {
			w.watcher.Close()
			w.watcher = nil
		}
	})
}
