package analytics

import "errors"

var (
	ErrCourseNotFound   = errors.New("course not found")
	ErrNotCourseTeacher = errors.New("unauthorized: you do not teach this course")
	ErrJobNotFound      = errors.New("job not found")
)
