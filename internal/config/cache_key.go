package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ConfigIdentity returns the cache identity of a quiz's settings: "quizid" for
// base settings, "quizid-overrideid" when an override applies.
func (r *CacheKeyStruct) ConfigIdentity(quizID, overrideID int64) string {
	if overrideID == 0 {
		return fmt.Sprintf("%d", quizID)
	}
	return fmt.Sprintf("%d-%d", quizID, overrideID)
}

// ConfigKey returns the cache key holding the serialized SEB config for an identity.
func (r *CacheKeyStruct) ConfigKey(identity string) string {
	return fmt.Sprintf("seb:config:%s", identity)
}

// ConfigHashKey returns the cache key holding the derived config key for an identity.
func (r *CacheKeyStruct) ConfigHashKey(identity string) string {
	return fmt.Sprintf("seb:configkey:%s", identity)
}

// SessionAccessKey returns the cache key of the per-session access flag.
func (r *CacheKeyStruct) SessionAccessKey(sessionID string, quizID int64) string {
	return fmt.Sprintf("seb:access:%s:%d", sessionID, quizID)
}

// UserKey returns the cache key of a one-time session-continuation key.
func (r *CacheKeyStruct) UserKey(script, value string) string {
	return fmt.Sprintf("userkey:%s:%s", script, value)
}

// UserSessionKey returns the cache key for a user's login session
func (r *CacheKeyStruct) UserSessionKey(userID int) string {
	return fmt.Sprintf("login:%d", userID)
}

// AccessEventsChannel returns the Redis PubSub channel for access events of a course module.
func (r *CacheKeyStruct) AccessEventsChannel(cmid int64) string {
	return fmt.Sprintf("seb:events:%d", cmid)
}

var CacheKey = NewCacheKeyStruct()
