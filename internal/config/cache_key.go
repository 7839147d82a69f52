package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// StudentSessionKey returns the cache key holding the token id of a student's active login
func (r *CacheKeyStruct) StudentSessionKey(studentID int) string {
	return fmt.Sprintf("login:%d", studentID)
}

// StudentExamSessionStartKey returns the cache key for the first time a student opened an exam session
func (r *CacheKeyStruct) StudentExamSessionStartKey(examID string, studentID int) string {
	return fmt.Sprintf("student:%d:exam:%s:session_start", studentID, examID)
}

// StudentAnswersKey returns the cache key for a student's autosaved answers
func (r *CacheKeyStruct) StudentAnswersKey(examID string, studentID int) string {
	return fmt.Sprintf("student:%d:exam:%s:answers", studentID, examID)
}

// StudentViolationCountKey returns the cache key for a student's violation counter
func (r *CacheKeyStruct) StudentViolationCountKey(examID string, studentID int) string {
	return fmt.Sprintf("student:%d:exam:%s:violations", studentID, examID)
}

// ExamQuestionsKey returns the cache key for an exam's question list, answer keys included
func (r *CacheKeyStruct) ExamQuestionsKey(examID string) string {
	return fmt.Sprintf("exam:%s:questions", examID)
}

// ExamMetaKey returns the cache key for an exam's title, subject and duration
func (r *CacheKeyStruct) ExamMetaKey(examID string) string {
	return fmt.Sprintf("exam:%s:meta", examID)
}

var CacheKey = NewCacheKeyStruct()
