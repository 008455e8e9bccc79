package model

import "time"

// SessionKey is a single-use token letting a SEB-launched browser resume the
// owner's login. It lives in Redis only.
type SessionKey struct {
	Value      string    `json:"-"`
	UserID     int       `json:"user_id"`
	IP         string    `json:"ip"`
	ValidUntil time.Time `json:"valid_until"`
}

// ContinueSessionQuery are the query parameters of the redirect endpoint.
type ContinueSessionQuery struct {
	Key      string `form:"key" binding:"required,alphanum,max=128"`
	UserID   int    `form:"userid" binding:"required,min=1"`
	CMID     int64  `form:"cmid" binding:"omitempty,min=1"`
	WantsURL string `form:"wantsurl" binding:"omitempty,url,max=2048"`
}
