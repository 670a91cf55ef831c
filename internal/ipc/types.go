package ipc

// PauseRequest suspends the pipeline at the next chapter boundary.
type PauseRequest struct{}

// PauseResponse reports whether the pipeline is now paused. A canceled run
// ignores pause requests and reports false.
type PauseResponse struct {
	Paused bool `json:"paused"`
}

// ResumeRequest releases a paused pipeline.
type ResumeRequest struct{}

// ResumeResponse reports the pause flag after the resume took effect.
type ResumeResponse struct {
	Paused bool `json:"paused"`
}

// CancelRequest stops the run at the next chapter boundary.
type CancelRequest struct{}

// CancelResponse indicates cancel result.
type CancelResponse struct {
	Canceled bool `json:"canceled"`
}

// StatusRequest fetches live run status.
type StatusRequest struct{}

// StatusResponse represents the pipeline state at the moment of the call.
type StatusResponse struct {
	RunID     string `json:"run_id"`
	Phase     string `json:"phase"`
	Chapter   string `json:"chapter"`
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
	Skipped   int    `json:"skipped"`
	Paused    bool   `json:"paused"`
	Canceled  bool   `json:"canceled"`
}
