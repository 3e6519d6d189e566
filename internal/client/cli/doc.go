// Package cli provides the interactive haulage command-line client.
//
// It wires configuration, the device-local store, the identity and profile
// adapters and the session bootstrapper, then runs a small REPL on top of
// them. Snapshots published by the bootstrapper are printed as they arrive,
// so the boot pipeline can be watched phase by phase.
//
// Commands:
//   - status             show the current session/profile state
//   - login / register   authenticate with email and password
//   - logout             sign out and forget the user on this device
//   - refresh            re-fetch the profile
//   - complete           submit first and last name
//   - focus              simulate the app regaining focus
//   - exit | quit        leave; with -reload the next run may recover the session
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
