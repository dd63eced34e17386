package fusion

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	streamPollInterval = 500 * time.Millisecond
	streamWriteTimeout = 5 * time.Second
	streamMaxDuration  = 5 * time.Minute
)

var streamUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleJobStream pushes job snapshots over a websocket until the job
// reaches a terminal state or the client disconnects.
func (m *Module) handleJobStream(c *gin.Context) {
	jobID := c.Param("id")
	if _, ok := m.jobs.Get(c.Request.Context(), jobID); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}

	conn, err := streamUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("fusion: websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// Drain client frames so pings and close messages are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(streamPollInterval)
	defer ticker.Stop()
	deadline := time.Now().Add(streamMaxDuration)

	var lastUpdate time.Time
	for {
		job, ok := m.jobs.Get(c.Request.Context(), jobID)
		if !ok {
			return
		}

		if job.UpdatedAt.After(lastUpdate) {
			lastUpdate = job.UpdatedAt
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteJSON(job); err != nil {
				return
			}
		}

		if job.Status == JobStatusCompleted || job.Status == JobStatusFailed {
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, job.Status))
			return
		}

		if time.Now().After(deadline) {
			return
		}
		<-ticker.C
	}
}
