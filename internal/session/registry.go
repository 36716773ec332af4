package session

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/classpulse/backend/internal/protocol"
)

// PubSub bridges course broadcasts across instances. Implemented by the
// realtime Redis pub/sub adapter; nil disables cross-instance fan-out.
type PubSub interface {
	PublishCourseEvent(courseID uuid.UUID, scope Scope, ev protocol.Event) error
	SubscribeCourse(courseID uuid.UUID, handler func(scope Scope, ev protocol.Event)) (cancel func(), err error)
}

// tokenRef locates the student owning a session token.
type tokenRef struct {
	courseID  uuid.UUID
	studentID string
}

// Registry is the process-wide, courseID-keyed store of live session
// state. It is an explicitly constructed component handed to the
// connection layer and the activity/submission services, not global state.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*CourseSession
	tokens   map[string]tokenRef
	cancels  map[uuid.UUID]func()

	pubsub PubSub
	logger *zap.Logger
}

// NewRegistry creates a session registry. pubsub may be nil.
func NewRegistry(logger *zap.Logger, pubsub PubSub) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		sessions: make(map[uuid.UUID]*CourseSession),
		tokens:   make(map[string]tokenRef),
		cancels:  make(map[uuid.UUID]func()),
		pubsub:   pubsub,
		logger:   logger,
	}
}

// GetOrCreate returns the course's live session, creating it on first
// access. Repeated and concurrent calls return the same instance.
func (r *Registry) GetOrCreate(courseID uuid.UUID) *CourseSession {
	r.mu.RLock()
	cs, ok := r.sessions[courseID]
	r.mu.RUnlock()
	if ok {
		return cs
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cs, ok = r.sessions[courseID]; ok {
		return cs
	}
	cs = newCourseSession(courseID)
	if r.pubsub != nil {
		cs.publish = func(scope Scope, ev protocol.Event) {
			_ = r.pubsub.PublishCourseEvent(courseID, scope, ev)
		}
		cancel, err := r.pubsub.SubscribeCourse(courseID, func(scope Scope, ev protocol.Event) {
			cs.broadcastLocal(scope, ev)
		})
		if err != nil {
			r.logger.Warn("course subscription failed, local fan-out only",
				zap.String("course_id", courseID.String()), zap.Error(err))
		} else {
			r.cancels[courseID] = cancel
		}
	}
	r.sessions[courseID] = cs
	r.logger.Debug("course session created", zap.String("course_id", courseID.String()))
	return cs
}

// RegisterStudent registers (or re-registers) a student in the course's
// session and returns a fresh session token. The previous record for the
// same student, and its token, are evicted: last join wins. No socket is
// attached here.
func (r *Registry) RegisterStudent(courseID uuid.UUID, studentID, displayName string) (string, error) {
	token, err := newToken()
	if err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	cs := r.GetOrCreate(courseID)

	prior := cs.registerStudent(studentID, displayName, token)

	r.mu.Lock()
	if prior != nil {
		delete(r.tokens, prior.token)
	}
	r.tokens[token] = tokenRef{courseID: courseID, studentID: studentID}
	r.mu.Unlock()

	r.logger.Info("student registered",
		zap.String("course_id", courseID.String()),
		zap.String("student_id", studentID),
		zap.Bool("rejoin", prior != nil))
	return token, nil
}

// AttachSocket binds a socket to the student owning the token. On failure
// the caller must reject the connection with FORCE_RELOGIN so the client
// knows re-authentication, not retry, is required.
func (r *Registry) AttachSocket(token string, sock Socket) (*CourseSession, *ConnectedStudent, error) {
	r.mu.RLock()
	ref, ok := r.tokens[token]
	r.mu.RUnlock()
	if !ok {
		return nil, nil, ErrTokenInvalid
	}

	cs := r.GetOrCreate(ref.courseID)
	student, err := cs.attachSocket(ref.studentID, token, sock)
	if err != nil {
		return nil, nil, err
	}
	return cs, student, nil
}

// EvictIdle removes sessions with no live sockets and no activity within
// maxIdle, along with their tokens and pub/sub subscriptions. It returns
// the number of sessions evicted.
func (r *Registry) EvictIdle(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := 0
	for courseID, cs := range r.sessions {
		if !cs.idle(cutoff) {
			continue
		}
		delete(r.sessions, courseID)
		for token, ref := range r.tokens {
			if ref.courseID == courseID {
				delete(r.tokens, token)
			}
		}
		if cancel, ok := r.cancels[courseID]; ok {
			cancel()
			delete(r.cancels, courseID)
		}
		evicted++
		r.logger.Info("idle course session evicted", zap.String("course_id", courseID.String()))
	}
	return evicted
}

// Sweep runs EvictIdle on every tick until the stop channel closes.
func (r *Registry) Sweep(interval, maxIdle time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.EvictIdle(maxIdle)
		}
	}
}

// Broadcast fans an event out to everyone connected to the course.
func (r *Registry) Broadcast(courseID uuid.UUID, ev protocol.Event) {
	r.GetOrCreate(courseID).Broadcast(ev)
}

// newToken returns an unguessable, URL-safe session token.
func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
