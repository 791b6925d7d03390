// Package handlers implements the refiner's HTTP API.
//
// Every /api endpoint answers with a JSON envelope:
//
//	{"success": true, "data": ...}
//	{"success": false, "error": "..."}
//
// Health, version and metrics endpoints keep their plain shapes so probes
// and scrapers need no envelope handling.
package handlers
