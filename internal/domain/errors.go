package domain

import "errors"

var (
	ErrNotFound = errors.New("not found")
	ErrInternal = errors.New("internal error")
)

var (
	ErrEmptyText         = errors.New("empty text")
	ErrTextTooLong       = errors.New("text too long")
	ErrMissingTargetLang = errors.New("target language is required")
	ErrSameLanguage      = errors.New("source and target language are the same")
)

var (
	ErrReviewNotFound  = errors.New("review not found")
	ErrDuplicateReview = errors.New("review already exists")
	ErrAlreadyResolved = errors.New("review already resolved")
	ErrEmptyRequestID  = errors.New("empty request id")
	ErrEmptyReason     = errors.New("empty review reason")
	ErrEmptyResolution = errors.New("empty resolution")
)

var (
	ErrInvalidCriticConfidence = errors.New("critic min confidence must be between 0 and 1")
)
