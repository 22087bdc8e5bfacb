// Package reconcile routes progress reads and writes between the local store
// and the remote store for whoever is currently signed in.
//
// # Tiers
//
// The local store is a write-through cache and fallback; the remote store is
// the source of truth whenever it is reachable:
//
//	identity        read                                 write
//	anonymous       local                                local
//	user:<id>       remote, mirrored to local            local, then remote
//	                local when the remote fails          (failure is journaled)
//
// Anonymous and authenticated data live under different local keys, and
// signing in never copies anonymous progress into the user's records.
//
// # Pending journal
//
// When a remote write fails the local write is kept, the session is marked
// degraded and the delta is recorded in a journal stored in the local store
// under the user's namespace. Nothing is retried on a timer. The next
// successful remote read of the same scope pushes the journaled deltas once
// and overlays any that still fail, so a value written while offline is
// never replaced by an older remote copy.
//
// # Sessions
//
// The Engine carries an explicit session: the current identity, the degraded
// flag, the last merged views and a generation counter bumped on every
// identity change. Remote results that arrive after the identity changed are
// discarded with ErrIdentityChanged.
//
// # Usage
//
//	eng := reconcile.New(localStore, remoteStore, logger)
//	unbind := eng.Bind(provider)
//	defer unbind()
//
//	notes, err := eng.Notes(ctx)
//	if errors.Is(err, schema.ErrRemoteUnavailable) {
//	    // notes came from the local store; show the offline badge
//	}
package reconcile
