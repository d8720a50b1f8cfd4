/*
Package log provides structured logging for the storage engine using
zerolog.

The global Logger is initialized once via Init and shared across every
layer. Layer code obtains a child logger via WithLayer (container,
holstore, timestore, spanstore, tablestore, versionstore, route) and
adds WithRing or WithFile for operations scoped to a specific ring or
container file, rather than threading a logger through every function
signature.

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	ringLog := log.WithLayer("timestore").With().Str("ring", "cpu60").Logger()
	ringLog.Warn().Msg("put retried after Busy")

Debug is verbose and meant for development; Info is the default
production level; Warn marks conditions worth an operator's attention,
such as a write-slot acquisition that exhausted its retry budget or a
superblock that failed verification; Error marks failed operations; Fatal
exits the process and should only be used during startup.
*/
package log
