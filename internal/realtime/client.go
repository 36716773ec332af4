// Package realtime drives the lifetime of WebSocket connections: the
// student and instructor upgrade paths, the per-connection read/write
// pumps, and the Redis bridge that fans course events out across
// instances.
package realtime

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/classpulse/backend/internal/protocol"
	"github.com/classpulse/backend/internal/session"
	"github.com/classpulse/backend/pkg/response"
)

const (
	// PingInterval and PongWait are used for heartbeat, in seconds.
	PingInterval = 30
	PongWait     = 60

	writeWait     = 10 * time.Second
	readLimit     = 65536
	sendQueueSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all origins in dev; restrict in production
	},
}

// CourseNamer resolves a course's display name for the instructor
// greeting frame.
type CourseNamer interface {
	GetCourseName(ctx context.Context, courseID uuid.UUID) (string, error)
}

// InstructorValidator validates the instructor token carried on the
// WebSocket query string.
type InstructorValidator func(token string) (instructorID uuid.UUID, err error)

// Client is one WebSocket connection implementing session.Socket. Frames
// are queued on a buffered channel so a send never blocks a broadcast; a
// full queue drops the frame and the client reconciles on reconnect.
type Client struct {
	conn   *websocket.Conn
	send   chan protocol.Event
	logger *zap.Logger
	once   sync.Once
	done   chan struct{}
}

func newClient(conn *websocket.Conn, logger *zap.Logger) *Client {
	return &Client{
		conn:   conn,
		send:   make(chan protocol.Event, sendQueueSize),
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Send queues an event for delivery. It reports false when the frame was
// dropped because the client is gone or its queue is full.
func (c *Client) Send(ev protocol.Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

// Close tears the connection down. Safe to call from any goroutine and
// more than once; the receive loop observes the closed transport and runs
// its cleanup path.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case ev := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readUntilClosed consumes inbound frames until a close frame or
// transport error. Students and instructors do not send state-changing
// commands over this channel today; frames are advisory and logged.
func (c *Client) readUntilClosed(who string) {
	c.conn.SetReadLimit(readLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		c.logger.Debug("inbound frame ignored", zap.String("from", who), zap.Int("bytes", len(msg)))
	}
}

// ServeStudent handles GET /ws/student?token=... The session token is
// carried percent-encoded on the query string; gin decodes it. An
// invalid or superseded token gets a single
// FORCE_RELOGIN error frame before the transport closes.
func ServeStudent(registry *session.Registry, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			response.BadRequest(c, "token required")
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		client := newClient(conn, logger)

		cs, student, err := registry.AttachSocket(token, client)
		if err != nil {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteJSON(protocol.ForceRelogin())
			client.Close()
			return
		}
		go client.writePump()

		cs.BroadcastInstructors(protocol.StudentJoined(student.StudentID, student.DisplayName, cs.OnlineCount()))
		logger.Info("student connected",
			zap.String("course_id", cs.CourseID.String()),
			zap.String("student_id", student.StudentID))

		client.readUntilClosed("student")

		client.Close()
		cs.DetachSocket(student.StudentID, client)
		cs.BroadcastInstructors(protocol.StudentLeft(student.StudentID, student.DisplayName, cs.OnlineCount()))
		logger.Info("student disconnected",
			zap.String("course_id", cs.CourseID.String()),
			zap.String("student_id", student.StudentID))
	}
}

// ServeInstructor handles GET /ws/instructor?course_id=…&token=<jwt>.
// Authorization happened upstream at login; the JWT on the query string
// binds this socket to a verified instructor identity.
func ServeInstructor(registry *session.Registry, courses CourseNamer, validate InstructorValidator, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		courseID, err := uuid.Parse(c.Query("course_id"))
		if err != nil {
			response.BadRequest(c, "invalid course_id")
			return
		}
		instructorID, err := validate(c.Query("token"))
		if err != nil {
			response.Unauthorized(c, "invalid token")
			return
		}
		courseName, err := courses.GetCourseName(c.Request.Context(), courseID)
		if err != nil {
			response.NotFound(c, "course not found")
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		client := newClient(conn, logger)
		go client.writePump()

		cs := registry.GetOrCreate(courseID)
		cs.AttachInstructor(client)
		client.Send(protocol.Connected(courseID, courseName, cs.OnlineCount()))
		logger.Info("instructor connected",
			zap.String("course_id", courseID.String()),
			zap.String("instructor_id", instructorID.String()))

		client.readUntilClosed("instructor")

		client.Close()
		cs.DetachInstructor(client)
		logger.Info("instructor disconnected",
			zap.String("course_id", courseID.String()),
			zap.String("instructor_id", instructorID.String()))
	}
}
