// Package watcher reports changes to note files under a directory tree.
//
// Events come from fsnotify and are debounced so that editor save
// sequences and bulk copies arrive as one coalesced batch per window.
// Hidden directories are never watched and only files with a note
// extension are reported.
//
// Usage:
//
//	w, err := watcher.New(watcher.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//
//	go func() { _ = w.Start(ctx, "/path/to/notes") }()
//
//	for batch := range w.Events() {
//	    for _, ev := range batch {
//	        // ev.Operation is OpCreate, OpModify or OpDelete
//	    }
//	}
package watcher
