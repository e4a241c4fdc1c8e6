package router

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mcmanager/minimanager/internal/models"
	"github.com/mcmanager/minimanager/router/middleware"
	"github.com/mcmanager/minimanager/server"
)

// Returns the contents of a file on the world.
func getWorldFileContents(c *gin.Context) {
	s := middleware.ExtractServer(c)
	p := c.Query("file")
	st, err := s.Filesystem().Stat(p)
	if err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	if st.IsDir() {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "The path is a directory."})
		return
	}
	b, err := s.ReadFile(c.Request.Context(), p)
	if err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	c.Header("X-Mime-Type", st.Mimetype)
	c.Header("Content-Length", strconv.Itoa(len(b)))
	c.Data(http.StatusOK, "application/octet-stream", b)
}

// Writes the request body into a file on the world.
func putWorldFileContents(c *gin.Context) {
	s := middleware.ExtractServer(c)
	p := c.Query("file")
	if p == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "The file query parameter is required."})
		return
	}
	// The request body is read fully so a slow client never holds the world lock.
	b, err := c.GetRawData()
	if err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	if err := s.WriteFile(c.Request.Context(), p, bytes.NewReader(b)); err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	s.SaveActivity(s.NewRequestActivity(c.ClientIP()), server.ActivityFileWrite, models.ActivityMeta{"file": p})
	c.Status(http.StatusNoContent)
}

// Deletes a file or directory on the world.
func deleteWorldFile(c *gin.Context) {
	s := middleware.ExtractServer(c)
	p := c.Query("file")
	if err := s.RemoveFile(c.Request.Context(), p); err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	s.SaveActivity(s.NewRequestActivity(c.ClientIP()), server.ActivityFileDelete, models.ActivityMeta{"file": p})
	c.Status(http.StatusNoContent)
}

// Returns the contents of a directory on the world.
func getWorldListDirectory(c *gin.Context) {
	stats, err := middleware.ExtractServer(c).Filesystem().ListDirectory(c.DefaultQuery("directory", "/"))
	if err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
