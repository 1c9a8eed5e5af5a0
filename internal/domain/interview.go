package domain

import "time"

// InterviewStatus mirrors the lifecycle the backend tracks server-side.
type InterviewStatus string

const (
	InterviewScheduled  InterviewStatus = "scheduled"
	InterviewPreparing  InterviewStatus = "preparing"
	InterviewInProgress InterviewStatus = "in_progress"
	InterviewCompleted  InterviewStatus = "completed"
)

// Interview is the backend-side record a session attaches to.
type Interview struct {
	ID                string            `json:"id"`
	RefNum            string            `json:"ref_num"`
	CandidateName     string            `json:"candidate_name"`
	Position          string            `json:"position"`
	ScheduledAt       time.Time         `json:"scheduled_at"`
	Duration          int               `json:"duration"`
	Status            InterviewStatus   `json:"status"`
	LiveStatus        *LiveStatus       `json:"live_status,omitempty"`
	TranscriptEntries []TranscriptEntry `json:"transcript_entries,omitempty"`
	Evaluation        *Evaluation       `json:"evaluation,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// TranscriptEntry is one utterance recorded during an interview.
type TranscriptEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Speaker   string    `json:"speaker"`
	Text      string    `json:"text"`
}

// Evaluation holds post-interview scoring.
type Evaluation struct {
	OverallScore        int      `json:"overall_score"`
	TechnicalScore      int      `json:"technical_score"`
	CommunicationScore  int      `json:"communication_score"`
	ProblemSolvingScore int      `json:"problem_solving_score"`
	Feedback            string   `json:"feedback,omitempty"`
	Recommendations     []string `json:"recommendations,omitempty"`
}

// LiveStatus carries progress for an in-flight interview.
type LiveStatus struct {
	Status           InterviewStatus `json:"status"`
	StartedAt        *time.Time      `json:"started_at,omitempty"`
	EndedAt          *time.Time      `json:"ended_at,omitempty"`
	ProgressPercent  float64         `json:"progress_percent"`
	RemainingSeconds int             `json:"remaining_seconds"`
}

// Template is a reusable interview preset.
type Template struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Role        string   `json:"role"`
	Description string   `json:"description,omitempty"`
	Duration    int      `json:"duration"`
	Topics      []string `json:"topics"`
	Difficulty  string   `json:"difficulty"`
}

// Metrics is an aggregate view over all interviews.
type Metrics struct {
	TotalInterviews  int           `json:"total_interviews"`
	ActiveInterviews int           `json:"active_interviews"`
	CompletionRate   float64       `json:"completion_rate"`
	AverageScore     *float64      `json:"average_score,omitempty"`
	AverageDuration  float64       `json:"average_duration"`
	InterviewsByRole []RoleMetrics `json:"interviews_by_role"`
}

// RoleMetrics aggregates interviews sharing a position.
type RoleMetrics struct {
	Role         string   `json:"role"`
	Count        int      `json:"count"`
	AverageScore *float64 `json:"average_score,omitempty"`
}
