// Command media-refiner serves the refiner's HTTP API.
//
// At startup it derives GOMEMLIMIT from the container limit, loads the
// configuration (see package startup), selects an image codec, opens the
// catalog and starts:
//
//   - the API server on PORT
//   - a Prometheus listener on METRICS_PORT
//   - a collector that refreshes catalog gauges every minute
//   - a memory monitor that pauses conversions under memory pressure
//   - an upload watcher when WATCH_UPLOADS is set
//
// Conversion is driven by the client: POST /api/convert/start, then
// POST /api/convert with the returned offset until complete is true. On
// SIGINT or SIGTERM the memory monitor is stopped first so a running page
// ends after its current asset, then both servers drain.
package main
