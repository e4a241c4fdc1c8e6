package router

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"emperror.dev/errors"
	"github.com/gin-gonic/gin"

	"github.com/mcmanager/minimanager/internal/models"
	"github.com/mcmanager/minimanager/remote"
	"github.com/mcmanager/minimanager/router/middleware"
	"github.com/mcmanager/minimanager/server"
)

// Returns every world registered on this node.
func getAllWorlds(c *gin.Context) {
	servers := middleware.ExtractManager(c).All()
	out := make([]server.Snapshot, len(servers))
	for i, v := range servers {
		out[i] = v.Snapshot()
	}
	c.JSON(http.StatusOK, out)
}

// Registers a world on this node, or applies the new definition to the world
// already registered under the same id.
func postCreateWorld(c *gin.Context) {
	var w remote.World
	if err := c.BindJSON(&w); err != nil {
		return
	}
	if err := w.Validate(); err != nil {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	s, err := middleware.ExtractManager(c).Add(w)
	if err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	if err := s.Sync(c.Request.Context(), w); err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	c.JSON(http.StatusOK, s.Snapshot())
}

// Returns a single world.
func getWorld(c *gin.Context) {
	c.JSON(http.StatusOK, middleware.ExtractServer(c).Snapshot())
}

// Removes a stopped world from this node together with its files.
func deleteWorld(c *gin.Context) {
	s := middleware.ExtractServer(c)
	if err := middleware.ExtractManager(c).Remove(c.Request.Context(), s.ID()); err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Returns the activity of the world that has not been sent upstream yet.
func getWorldActivity(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > 500 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "The limit must be a number between 1 and 500."})
		return
	}
	out, err := middleware.ExtractManager(c).RecentActivity(c.Request.Context(), c.Param("world"), limit)
	if err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	if out == nil {
		out = []models.Activity{}
	}
	c.JSON(http.StatusOK, out)
}

// Handles a request to control the power state of a world. The action is
// performed before the response is sent.
func postWorldPower(c *gin.Context) {
	s := middleware.ExtractServer(c)

	var data struct {
		Action server.PowerAction `json:"action"`
	}
	if err := c.BindJSON(&data); err != nil {
		return
	}
	if !data.Action.IsValid() {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": "The power action provided was not valid, should be one of \"stop\", \"start\", \"restart\", \"kill\""})
		return
	}

	// Stopping can take up to the configured stop timeout, so the request gets
	// its own deadline that is not tied to the client connection.
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute*10)
	defer cancel()
	if err := s.HandlePowerAction(ctx, data.Action); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = errors.WithStack(server.ErrIsBusy)
		}
		middleware.CaptureAndAbort(c, err)
		return
	}
	s.SaveActivity(s.NewRequestActivity(c.ClientIP()), models.Event(server.ActivityPowerPrefix+string(data.Action)), nil)
	c.Status(http.StatusNoContent)
}

// Sends an array of commands to a running world.
func postWorldCommands(c *gin.Context) {
	s := middleware.ExtractServer(c)

	var data struct {
		Commands []string `json:"commands"`
	}
	if err := c.BindJSON(&data); err != nil {
		return
	}
	if err := s.SendCommands(c.Request.Context(), s.NewRequestActivity(c.ClientIP()), data.Commands); err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Returns the server.properties of a world as a flat object.
func getWorldProperties(c *gin.Context) {
	props, err := middleware.ExtractServer(c).Properties(c.Request.Context())
	if err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	c.JSON(http.StatusOK, props)
}

// Merges the given keys into server.properties. They apply on the next start.
func putWorldProperties(c *gin.Context) {
	s := middleware.ExtractServer(c)

	var data map[string]string
	if err := c.BindJSON(&data); err != nil {
		return
	}
	if err := s.SetProperties(c.Request.Context(), data); err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	s.SaveActivity(s.NewRequestActivity(c.ClientIP()), server.ActivityProperties, models.ActivityMeta{"keys": keys})
	c.Status(http.StatusNoContent)
}
