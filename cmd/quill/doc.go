// Command quill is the CLI entry point: it wires the store, the Notion sync
// engine, the generation queue, and the GitHub publisher behind cobra
// subcommands, with the batch "sweep" verb intended for cron.
package main
