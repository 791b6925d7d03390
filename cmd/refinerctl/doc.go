// Command refinerctl runs refiner operations against the catalog without
// the HTTP server.
//
// It reads the same environment as the server (UPLOADS_DIR, DATABASE_DIR,
// IMAGE_CODEC and so on, optionally from ENV_FILE) and opens the catalog
// directly. The server and the CLI must not convert at the same time; the
// run lock only covers a single process.
//
// Usage:
//
//	refinerctl convert [--offset N] [--once]
//	refinerctl sweep [--yes]
//	refinerctl status
//	refinerctl import
//	refinerctl exclude add|remove ID...
//	refinerctl exclude list
//	refinerctl settings show
//	refinerctl settings set [--quality N] [--format webp|avif] ...
//	refinerctl reset [--yes]
//	refinerctl log show|clear
//	refinerctl export [--out FILE]
//	refinerctl pdf compress [--level screen|ebook|printer] ID...
//
// Every command accepts --json. sweep and reset prompt for confirmation on
// a terminal and refuse to run unattended without --yes.
package main
