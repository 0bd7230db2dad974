// Package commands implements the stash CLI. Without a subcommand the
// binary runs the service; the other commands open the same storage
// directly and are meant for a stopped service, except `vault lock`
// which asks the running bridge.
package commands
