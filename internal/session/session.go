// Package session holds the in-memory live state of each course: which
// students have joined, which sockets are attached, and the best-effort
// broadcast fan-out to them. One CourseSession exists per course for the
// lifetime of the process (or until evicted as idle).
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/classpulse/backend/internal/protocol"
)

// Socket is the narrow transport binding a connection layer attaches to a
// registered student or instructor. Send must never block: it reports
// false when the frame was dropped (buffer full or socket closing), and
// the connection's own receive loop is left to discover the dead socket.
type Socket interface {
	Send(ev protocol.Event) bool
	Close()
}

// Scope selects the delivery audience of a broadcast.
type Scope string

const (
	// ScopeAll delivers to students with a live socket and all instructors.
	ScopeAll Scope = "all"
	// ScopeInstructors delivers to instructor sockets only, used for
	// presence events so roster churn is not leaked to peers.
	ScopeInstructors Scope = "instructors"
)

// ConnectedStudent is one registered student inside a course session. The
// record survives socket loss; only the socket reference is cleared.
type ConnectedStudent struct {
	StudentID   string    `json:"student_id"`
	DisplayName string    `json:"display_name"`
	JoinedAt    time.Time `json:"joined_at"`

	token  string
	socket Socket
}

// Token returns the student's current session token.
func (s *ConnectedStudent) Token() string { return s.token }

// CourseSession is the live state for one course. All collection access
// goes through the session's own lock, so joins in unrelated courses never
// contend with each other.
type CourseSession struct {
	CourseID uuid.UUID

	mu          sync.RWMutex
	students    map[string]*ConnectedStudent
	instructors map[Socket]struct{}
	lastActive  time.Time

	// publish forwards an event to other instances; nil when the registry
	// runs without a pub/sub bridge.
	publish func(scope Scope, ev protocol.Event)
}

func newCourseSession(courseID uuid.UUID) *CourseSession {
	return &CourseSession{
		CourseID:    courseID,
		students:    make(map[string]*ConnectedStudent),
		instructors: make(map[Socket]struct{}),
		lastActive:  time.Now(),
	}
}

// registerStudent replaces any prior record for the student (last join
// wins) and returns the evicted record, if any, so the registry can
// invalidate its token.
func (cs *CourseSession) registerStudent(studentID, displayName, token string) *ConnectedStudent {
	cs.mu.Lock()
	prior := cs.students[studentID]
	cs.students[studentID] = &ConnectedStudent{
		StudentID:   studentID,
		DisplayName: displayName,
		JoinedAt:    time.Now(),
		token:       token,
	}
	cs.lastActive = time.Now()
	cs.mu.Unlock()

	if prior != nil && prior.socket != nil {
		prior.socket.Close()
	}
	return prior
}

// attachSocket binds a socket to the student owning the token. A stale
// token (superseded by a later join) no longer matches the current record.
func (cs *CourseSession) attachSocket(studentID, token string, sock Socket) (*ConnectedStudent, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	student, ok := cs.students[studentID]
	if !ok || student.token != token {
		return nil, ErrTokenInvalid
	}
	if student.socket != nil {
		student.socket.Close()
	}
	student.socket = sock
	cs.lastActive = time.Now()
	return student, nil
}

// DetachSocket clears the student's socket reference when it is still the
// given one; the registered student record itself survives until a later
// join evicts it.
func (cs *CourseSession) DetachSocket(studentID string, sock Socket) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if student, ok := cs.students[studentID]; ok && student.socket == sock {
		student.socket = nil
	}
	cs.lastActive = time.Now()
}

// AttachInstructor adds an instructor socket. No identity deduplication:
// the same instructor may hold several sockets (e.g. multiple tabs).
func (cs *CourseSession) AttachInstructor(sock Socket) {
	cs.mu.Lock()
	cs.instructors[sock] = struct{}{}
	cs.lastActive = time.Now()
	cs.mu.Unlock()
}

// DetachInstructor removes an instructor socket.
func (cs *CourseSession) DetachInstructor(sock Socket) {
	cs.mu.Lock()
	delete(cs.instructors, sock)
	cs.lastActive = time.Now()
	cs.mu.Unlock()
}

// OnlineCount returns the number of students with a live socket.
func (cs *CourseSession) OnlineCount() int {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	count := 0
	for _, s := range cs.students {
		if s.socket != nil {
			count++
		}
	}
	return count
}

// Students returns a snapshot of the registered students (socket state not
// included), for the instructor roster view.
func (cs *CourseSession) Students() []ConnectedStudent {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	out := make([]ConnectedStudent, 0, len(cs.students))
	for _, s := range cs.students {
		out = append(out, *s)
	}
	return out
}

// Broadcast fans an event out to everyone in scope and forwards it to
// other instances. Delivery is best-effort and fire-and-forget: a dead or
// slow socket drops the frame without blocking or failing the others.
func (cs *CourseSession) Broadcast(ev protocol.Event) {
	cs.broadcastLocal(ScopeAll, ev)
	if cs.publish != nil {
		cs.publish(ScopeAll, ev)
	}
}

// BroadcastInstructors fans an event out to instructor sockets only.
func (cs *CourseSession) BroadcastInstructors(ev protocol.Event) {
	cs.broadcastLocal(ScopeInstructors, ev)
	if cs.publish != nil {
		cs.publish(ScopeInstructors, ev)
	}
}

// broadcastLocal delivers to the sockets attached to this instance.
func (cs *CourseSession) broadcastLocal(scope Scope, ev protocol.Event) {
	cs.mu.RLock()
	targets := make([]Socket, 0, len(cs.students)+len(cs.instructors))
	if scope == ScopeAll {
		for _, s := range cs.students {
			if s.socket != nil {
				targets = append(targets, s.socket)
			}
		}
	}
	for sock := range cs.instructors {
		targets = append(targets, sock)
	}
	cs.mu.RUnlock()

	for _, sock := range targets {
		_ = sock.Send(ev)
	}
}

// idle reports whether the session has no live sockets and has seen no
// activity since the cutoff.
func (cs *CourseSession) idle(cutoff time.Time) bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	if len(cs.instructors) > 0 {
		return false
	}
	for _, s := range cs.students {
		if s.socket != nil {
			return false
		}
	}
	return cs.lastActive.Before(cutoff)
}
