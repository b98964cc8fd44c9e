package models

import "time"

// ChangeRequestType enumerates what a change request renegotiates.
type ChangeRequestType string

const (
	// ChangeRequestTypeTrocaAula moves the lesson to another time.
	ChangeRequestTypeTrocaAula ChangeRequestType = "TROCA_AULA"
	// ChangeRequestTypeTrocaProfessor hands the lesson to another teacher.
	ChangeRequestTypeTrocaProfessor ChangeRequestType = "TROCA_PROFESSOR"
)

// ChangeRequestStatus captures workflow states for lesson renegotiation.
type ChangeRequestStatus string

const (
	ChangeRequestStatusPending         ChangeRequestStatus = "PENDING"
	ChangeRequestStatusTeacherRejected ChangeRequestStatus = "TEACHER_REJECTED"
	ChangeRequestStatusApproved        ChangeRequestStatus = "APPROVED"
	ChangeRequestStatusRejected        ChangeRequestStatus = "REJECTED"
)

// Open reports whether the request still awaits a decision.
func (s ChangeRequestStatus) Open() bool {
	return s == ChangeRequestStatusPending || s == ChangeRequestStatusTeacherRejected
}

// ChangeRequestAction is the decision applied when resolving a request.
type ChangeRequestAction string

const (
	ChangeRequestActionApprove ChangeRequestAction = "APPROVE"
	ChangeRequestActionReject  ChangeRequestAction = "REJECT"
)

// ChangeRequest tracks a proposed modification of a single lesson.
type ChangeRequest struct {
	ID                 string              `db:"id" json:"id"`
	LessonID           string              `db:"lesson_id" json:"lessonId"`
	EnrollmentID       string              `db:"enrollment_id" json:"enrollmentId"`
	TeacherID          string              `db:"teacher_id" json:"teacherId"`
	Type               ChangeRequestType   `db:"type" json:"type"`
	Status             ChangeRequestStatus `db:"status" json:"status"`
	RequestedStartAt   *time.Time          `db:"requested_start_at" json:"requestedStartAt,omitempty"`
	RequestedTeacherID *string             `db:"requested_teacher_id" json:"requestedTeacherId,omitempty"`
	Notes              string              `db:"notes" json:"notes"`
	RequestedBy        string              `db:"requested_by" json:"requestedBy"`
	ResolvedBy         *string             `db:"resolved_by" json:"resolvedBy,omitempty"`
	ResolvedAt         *time.Time          `db:"resolved_at" json:"resolvedAt,omitempty"`
	CreatedAt          time.Time           `db:"created_at" json:"createdAt"`
	UpdatedAt          time.Time           `db:"updated_at" json:"updatedAt"`
}

// ChangeRequestFilter constrains listing queries.
type ChangeRequestFilter struct {
	Statuses  []ChangeRequestStatus
	TeacherID string
	LessonID  string
	// EnrollmentIDs, when non-nil, restricts results to these enrollments; an empty
	// non-nil slice matches nothing.
	EnrollmentIDs []string
	Limit         int
	Offset        int
}
