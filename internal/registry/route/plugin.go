package route

import (
	"sort"
	"sync"

	"github.com/gin-gonic/gin"
)

// RouterLoader mounts a group of handlers on r.
type RouterLoader func(r *gin.Engine) error

// RouteType says whether routes are served to tutors or to operators.
type RouteType int

const (
	// RouteTypeMain routes are served on the API port.
	RouteTypeMain RouteType = iota
	// RouteTypeManagement routes (probes, metrics) go to the management port,
	// or to the API port when no management port is set.
	RouteTypeManagement
)

// Plugin is a registered RouterLoader.
type Plugin struct {
	Order  int
	Type   RouteType
	Loader RouterLoader
}

var (
	plugins  []Plugin
	sortOnce sync.Once
)

// Register is called from plugin init functions.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

func sorted() []Plugin {
	sortOnce.Do(func() {
		sort.Slice(plugins, func(i, j int) bool { return plugins[i].Order < plugins[j].Order })
	})
	return plugins
}

// MainRouteLoaders lists the API loaders in Order.
func MainRouteLoaders() []RouterLoader {
	var loaders []RouterLoader
	for _, p := range sorted() {
		if p.Type == RouteTypeMain {
			loaders = append(loaders, p.Loader)
		}
	}
	return loaders
}

// ManagementRouteLoaders lists the probe and metrics loaders in Order.
func ManagementRouteLoaders() []RouterLoader {
	var loaders []RouterLoader
	for _, p := range sorted() {
		if p.Type == RouteTypeManagement {
			loaders = append(loaders, p.Loader)
		}
	}
	return loaders
}
