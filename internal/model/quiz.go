package model

// Quiz is the minimal view of a host quiz activity needed by the SEB rule.
type Quiz struct {
	ID       int64  `json:"id"`
	CMID     int64  `json:"cmid"`
	CourseID int64  `json:"course_id"`
	Name     string `json:"name"`
	// Password is the quiz's own access password, not the SEB quit password.
	Password string `json:"-"`
}
