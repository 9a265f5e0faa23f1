package domain

// Project is a tracked service owned by exactly one identity.
//
// Fields:
//   - ID: UUID primary key generated server-side (char(36)).
//   - Name: display name, looked up per owner; not globally unique.
//   - OwnerID: identity (verified email) of the creator; immutable.
//   - CreatedAt / UpdatedAt: epoch seconds. UpdatedAt is bumped whenever a
//     status entry is appended or the deleted flag changes.
//   - Deleted: soft-delete flag; rows are never removed.
type Project struct {
	ID        string `json:"id"         gorm:"type:char(36);primaryKey"`
	Name      string `json:"name"       gorm:"type:varchar(255);not null;index:idx_projects_owner_name,priority:2"`
	OwnerID   string `json:"owner_id"   gorm:"type:varchar(320);not null;index:idx_projects_owner_name,priority:1"`
	CreatedAt int64  `json:"created_at" gorm:"not null"`
	UpdatedAt int64  `json:"updated_at" gorm:"not null"`
	Deleted   bool   `json:"deleted"    gorm:"not null;default:false"`
}

// TableName returns the database table name for Project.
func (Project) TableName() string { return "projects" }

// ProjectWithStatus is a Project annotated with its current status, i.e. the
// most recent StatusHistory row. The status fields are nil until the first
// status update arrives.
type ProjectWithStatus struct {
	Project
	Status          *Status `json:"status"`
	Message         *string `json:"message"`
	StatusUpdatedAt *int64  `json:"status_updated_at"`
}

// WithLatest annotates p with the given history entry (which may be nil).
func WithLatest(p Project, latest *StatusHistory) ProjectWithStatus {
	out := ProjectWithStatus{Project: p}
	if latest != nil {
		st := latest.Status
		ts := latest.CreatedAt
		out.Status = &st
		out.Message = latest.Message
		out.StatusUpdatedAt = &ts
	}
	return out
}

// StatusHistory is an immutable, append-only status report for a project.
// The newest row per project is the project's current status.
type StatusHistory struct {
	ID        int64   `json:"id"         gorm:"primaryKey;autoIncrement"`
	ProjectID string  `json:"project_id" gorm:"type:char(36);not null;index:idx_status_history_project,priority:1"`
	Status    Status  `json:"status"     gorm:"type:varchar(32);not null"`
	Message   *string `json:"message"`
	CreatedAt int64   `json:"created_at" gorm:"not null;index:idx_status_history_project,priority:2"`
}

// TableName returns the database table name for StatusHistory.
func (StatusHistory) TableName() string { return "status_history" }
