package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mcmanager/minimanager/proxy"
	"github.com/mcmanager/minimanager/router/middleware"
	"github.com/mcmanager/minimanager/system"
)

// Returns information about the node together with a summary of the fleet.
func getSystemInformation(c *gin.Context) {
	m := middleware.ExtractManager(c)
	backend := middleware.ExtractProxy(c)

	running := 0
	for _, s := range m.All() {
		if s.IsRunning() {
			running++
		}
	}

	c.JSON(http.StatusOK, struct {
		*system.Information
		Worlds gin.H `json:"worlds"`
		Ports  gin.H `json:"ports"`
		Proxy  gin.H `json:"proxy"`
	}{
		Information: system.GetSystemInformation(),
		Worlds:      gin.H{"total": m.Len(), "running": running},
		Ports:       gin.H{"taken": m.Ports().Taken(), "capacity": m.Ports().Capacity()},
		Proxy:       gin.H{"type": backend.Name(), "routes": routesOrEmpty(backend.Applied())},
	})
}

func routesOrEmpty(r proxy.Routes) proxy.Routes {
	if r == nil {
		return proxy.Routes{}
	}
	return r
}
