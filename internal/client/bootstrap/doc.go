// Package bootstrap owns the client's session and profile state.
//
// A Bootstrapper acquires the persisted session on start (recovering it
// after a planned reload when enabled), fetches the user's profile with a
// fallback for backends whose schema lacks the completed column, derives
// whether the profile is complete, and caches that flag on the device so the
// next boot can skip the network round trip.
//
// Contract:
//   - Start: runs the boot pipeline in the background and returns at once.
//   - Snapshot / Subscribe: read or observe immutable state snapshots.
//   - Refresh / NotifyFocus: re-fetch the current user's profile. At most one
//     fetch mutates state at a time; triggers that arrive meanwhile are dropped.
//   - CompleteProfile: submit names, then refresh.
//   - SignIn / SignUp / SignOut: identity passthroughs; state follows the
//     identity service's auth events.
//   - PrepareReload: mark the next boot as a reload.
//   - Close: stop timers and the auth subscription; late results are ignored.
//
// Backend failures during boot and refresh never reach the caller: they are
// logged and degrade to "no session" or "no profile". A failsafe timer forces
// the machine out of every loading phase so a stalled call cannot leave the
// UI waiting.
package bootstrap
