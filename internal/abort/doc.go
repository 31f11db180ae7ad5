// Package abort implements the cancellation registry for batch runs.
//
// Every run registers an opaque token with Begin and polls Run.Aborted at
// item boundaries. Abort(token) flips the flag locally and records it in a
// Store, so a run on another instance sharing the same Redis store sees it
// on its next poll. An abort for a token with no active run is kept for the
// store TTL; a run that later begins under that token starts aborted.
//
//	run, err := registry.Begin(ctx, token)
//	if errors.Is(err, abort.ErrTokenInUse) {
//	    // 409
//	}
//	defer registry.Release(token)
//	for _, item := range items {
//	    if run.Aborted() {
//	        break
//	    }
//	}
package abort
