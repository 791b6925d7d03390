// Package logging provides the leveled printf-style logger shared by the
// refiner service and the refinerctl CLI.
//
// The level comes from DEBUG (any truthy value forces debug) or LOG_LEVEL
// (debug, info, warn, error) and may be overridden with SetLevel. Messages
// that operators need to see after the fact are additionally written to the
// activity journal; this package only covers process output.
package logging
