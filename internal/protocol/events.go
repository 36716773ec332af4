// Package protocol defines the broadcast envelope and the closed event
// catalogue shared by the session registry, the WebSocket layer and the
// activity/submission services.
package protocol

import (
	"time"

	"github.com/google/uuid"
)

// EventType names one event in the catalogue.
type EventType string

const (
	EventConnected           EventType = "CONNECTED"
	EventStudentJoined       EventType = "STUDENT_JOINED"
	EventStudentLeft         EventType = "STUDENT_LEFT"
	EventActivityCreated     EventType = "ACTIVITY_CREATED"
	EventActivityUpdated     EventType = "ACTIVITY_UPDATED"
	EventActivityDeleted     EventType = "ACTIVITY_DELETED"
	EventActivityDeactivated EventType = "ACTIVITY_DEACTIVATED"
	EventNewSubmission       EventType = "NEW_SUBMISSION"
	EventError               EventType = "error"
)

const (
	// CodeOK marks a normal event frame.
	CodeOK = 0
	// CodeError marks an error frame; the payload carries the reason.
	CodeError = 1
)

// ReasonForceRelogin tells a client its session token is no longer valid
// and it must restart the join handshake rather than retry the connection.
const ReasonForceRelogin = "FORCE_RELOGIN"

// Event is the wire envelope for every outbound frame.
type Event struct {
	Code    int       `json:"code"`
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// ConnectedPayload greets an instructor socket on attach.
type ConnectedPayload struct {
	CourseID    uuid.UUID `json:"course_id"`
	CourseName  string    `json:"course_name"`
	OnlineCount int       `json:"online_count"`
}

// PresencePayload reports a student joining or leaving (instructors only).
type PresencePayload struct {
	StudentID   string `json:"student_id"`
	DisplayName string `json:"display_name"`
	OnlineCount int    `json:"online_count"`
}

// ActivityRefPayload references an activity by id for delete/deactivate events.
type ActivityRefPayload struct {
	ActivityID uuid.UUID `json:"activity_id"`
}

// NewSubmissionPayload announces an accepted submission. It deliberately
// carries no answer content.
type NewSubmissionPayload struct {
	ActivityID   uuid.UUID `json:"activity_id"`
	StudentID    string    `json:"student_id"`
	ActivityType string    `json:"activity_type"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

// ErrorPayload carries the machine-readable rejection reason.
type ErrorPayload struct {
	Reason string `json:"reason"`
}

// Connected builds the instructor greeting frame.
func Connected(courseID uuid.UUID, courseName string, onlineCount int) Event {
	return Event{Code: CodeOK, Type: EventConnected, Payload: ConnectedPayload{
		CourseID: courseID, CourseName: courseName, OnlineCount: onlineCount,
	}}
}

// StudentJoined builds the instructors-only presence frame for a join.
func StudentJoined(studentID, displayName string, onlineCount int) Event {
	return Event{Code: CodeOK, Type: EventStudentJoined, Payload: PresencePayload{
		StudentID: studentID, DisplayName: displayName, OnlineCount: onlineCount,
	}}
}

// StudentLeft builds the instructors-only presence frame for a disconnect.
func StudentLeft(studentID, displayName string, onlineCount int) Event {
	return Event{Code: CodeOK, Type: EventStudentLeft, Payload: PresencePayload{
		StudentID: studentID, DisplayName: displayName, OnlineCount: onlineCount,
	}}
}

// ActivityCreated wraps the created activity. The payload is the
// student-safe view produced by the activities service.
func ActivityCreated(activity any) Event {
	return Event{Code: CodeOK, Type: EventActivityCreated, Payload: activity}
}

// ActivityUpdated wraps the updated activity (including activation, which
// flips is_active inside the payload).
func ActivityUpdated(activity any) Event {
	return Event{Code: CodeOK, Type: EventActivityUpdated, Payload: activity}
}

// ActivityDeleted references the removed activity.
func ActivityDeleted(activityID uuid.UUID) Event {
	return Event{Code: CodeOK, Type: EventActivityDeleted, Payload: ActivityRefPayload{ActivityID: activityID}}
}

// ActivityDeactivated references the deactivated activity.
func ActivityDeactivated(activityID uuid.UUID) Event {
	return Event{Code: CodeOK, Type: EventActivityDeactivated, Payload: ActivityRefPayload{ActivityID: activityID}}
}

// NewSubmission announces a stored submission to all parties.
func NewSubmission(activityID uuid.UUID, studentID, activityType string, submittedAt time.Time) Event {
	return Event{Code: CodeOK, Type: EventNewSubmission, Payload: NewSubmissionPayload{
		ActivityID: activityID, StudentID: studentID, ActivityType: activityType, SubmittedAt: submittedAt,
	}}
}

// ForceRelogin is the error frame sent before closing a socket whose
// session token is invalid or superseded. Clients must read the reason
// from the payload; on the wire the frame is
// {"code":1,"type":"error","payload":{"reason":"FORCE_RELOGIN"}},
// the same envelope as every other frame.
func ForceRelogin() Event {
	return Event{Code: CodeError, Type: EventError, Payload: ErrorPayload{Reason: ReasonForceRelogin}}
}
