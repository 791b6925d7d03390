// Package workers sizes thread pools from the CPUs the container may use.
//
// The refiner converts one asset at a time; the parallelism lives inside
// libvips, whose thread pool is sized by VipsConcurrency. Operators can pin
// it with VIPS_CONCURRENCY.
package workers
