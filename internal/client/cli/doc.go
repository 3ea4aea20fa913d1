// Package cli provides the interactive geosnap command-line client.
//
// NewApp wires configuration, the local SQLite database, the encrypted token
// store, the OAuth2 session manager, the authenticated backend transport, the
// upload orchestrator and the offline retry queue. App.Root restores any
// saved session, starts a connectivity watcher that replays queued uploads
// when the backend becomes reachable, and runs the REPL (see runREPL) until
// the user exits.
package cli
