package startup

import (
	"maps"
	"slices"
	"strings"

	"github.com/gorilla/mux"

	"media-refiner/internal/logging"
)

// RouteInfo is one method and path registered on the router.
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// GetRoutes lists every route on router. Routes without a method
// restriction are reported with method "*".
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo
	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		path, err := route.GetPathTemplate()
		if err != nil {
			return err
		}
		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}
		for _, m := range methods {
			routes = append(routes, RouteInfo{Method: m, Path: path, Name: route.GetName()})
		}
		return nil
	})
	return routes, err
}

// LogHTTPRoutes logs the HTTP setup. The route table is only listed at
// debug level.
func LogHTTPRoutes(router *mux.Router, logHealthChecks bool) {
	section("HTTP SERVER SETUP")

	if logging.IsDebugEnabled() {
		routes, err := GetRoutes(router)
		if err != nil {
			logging.Warn("error walking routes: %v", err)
		}
		groups := make(map[string][]RouteInfo)
		for _, r := range routes {
			g := getRouteGroup(r.Path)
			groups[g] = append(groups[g], r)
		}

		logging.Debug("  Registered routes (%d total):", len(routes))
		for _, g := range slices.Sorted(maps.Keys(groups)) {
			label := g
			if label == "" {
				label = "root"
			}
			logging.Debug("  [%s]", label)
			for _, r := range groups[g] {
				logging.Debug("    %-6s %s", r.Method, r.Path)
			}
		}
	}

	if logHealthChecks {
		logging.Info("  Access log: ON (health checks included)")
	} else {
		logging.Info("  Access log: ON (health checks excluded, set LOG_HEALTH_CHECKS=true to include)")
	}
}

// getRouteGroup is the first path segment, or the first two under /api.
func getRouteGroup(path string) string {
	first, rest, _ := strings.Cut(strings.TrimPrefix(path, "/"), "/")
	if first == "api" && rest != "" {
		sub, _, _ := strings.Cut(rest, "/")
		return "api/" + sub
	}
	return first
}
