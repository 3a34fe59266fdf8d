package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// CandidateSessionKey returns the cache key for a candidate's login session.
func (r *CacheKeyStruct) CandidateSessionKey(candidateID int) string {
	return fmt.Sprintf("login:%d", candidateID)
}

// AttemptStartKey returns the cache key for a candidate's attempt start time.
func (r *CacheKeyStruct) AttemptStartKey(examID string, candidateID int) string {
	return fmt.Sprintf("candidate:%d:exam:%s:attempt_start", candidateID, examID)
}

// AttemptAnswersKey returns the cache key for a candidate's autosaved answers.
func (r *CacheKeyStruct) AttemptAnswersKey(examID string, candidateID int) string {
	return fmt.Sprintf("candidate:%d:exam:%s:answers", candidateID, examID)
}

// AttemptFlagsKey returns the cache key for a candidate's flagged questions.
func (r *CacheKeyStruct) AttemptFlagsKey(examID string, candidateID int) string {
	return fmt.Sprintf("candidate:%d:exam:%s:flags", candidateID, examID)
}

// LastResultKey returns the cache key for a candidate's most recent finalized
// result. Display fallback only — the attempts table is the source of truth.
func (r *CacheKeyStruct) LastResultKey(candidateID int) string {
	return fmt.Sprintf("candidate:%d:last_result", candidateID)
}

// ExamPayloadKey returns the cache key for a sanitized exam payload.
func (r *CacheKeyStruct) ExamPayloadKey(examID string) string {
	return fmt.Sprintf("exam:%s:payload", examID)
}

// ExamDurationKey returns the cache key for an exam's duration in minutes.
func (r *CacheKeyStruct) ExamDurationKey(examID string) string {
	return fmt.Sprintf("exam:%s:duration", examID)
}

// ExamAnswerKey returns the cache key for an exam's answer key hash.
func (r *CacheKeyStruct) ExamAnswerKey(examID string) string {
	return fmt.Sprintf("exam:%s:key", examID)
}

// ExamMarksKey returns the cache key for an exam's per-question marks hash.
func (r *CacheKeyStruct) ExamMarksKey(examID string) string {
	return fmt.Sprintf("exam:%s:marks", examID)
}

var CacheKey = NewCacheKeyStruct()
