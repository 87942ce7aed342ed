package services

import (
	"errors"
	"fmt"
)

var (
	ErrModelLoad         = errors.New("embedding model load failed")
	ErrEmptyText         = errors.New("cannot embed empty text")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrIndexBuild        = errors.New("index build failed")
	ErrIndexLoad         = errors.New("index load failed")
	ErrRetrieval         = errors.New("retrieval failed")
	ErrEmptyQuery        = errors.New("query is empty")
	ErrGeneration        = errors.New("response generation failed")
)

// StartupError marks a failure that must stop the process: the chatbot
// never serves with a missing or partial index.
type StartupError struct {
	Stage string
	Err   error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("startup failed during %s: %v", e.Stage, e.Err)
}

func (e *StartupError) Unwrap() error { return e.Err }
