// Package watcher reports changes under the raw content root as debounced
// batches of file events.
//
// fsnotify is used when available, with a polling scanner as fallback for
// mounts that do not deliver notifications. Paths in events are relative to
// the watched root. Dot-prefixed entries and configured ignore directories
// never produce events.
//
//	w, err := watcher.NewHybridWatcher(watcher.Options{IgnoreDirs: []string{"_assets"}})
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//
//	go w.Start(ctx, rawRoot)
//	for batch := range w.Events() {
//	    coordinator.HandleEvents(ctx, batch)
//	}
package watcher
