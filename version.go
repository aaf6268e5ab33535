// Package scriptconsole executes ad-hoc scripts and templates against an
// object-graph repository and makes their output available to other clients.
package scriptconsole

// Version is the scriptconsole release version.
const Version = "v0.1.0"
