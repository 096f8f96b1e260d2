package model

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrMalformedTask is returned when a queue message body cannot be decoded
// into a task descriptor or misses a required field.
var ErrMalformedTask = errors.New("malformed task message")

// Task represents an image processing job that travels through the task queue.
type Task struct {
	ID        uuid.UUID `json:"id"`
	Location  string    `json:"location"`          // s3://container/key of the source image
	Operation Operation `json:"operation"`         // transform to apply
	Attempt   int       `json:"attempt,omitempty"` // redelivery counter, zero on first submit
}

// NewTask creates a task descriptor for the given source location and operation.
func NewTask(loc Location, op Operation) Task {
	return Task{
		ID:        uuid.New(),
		Location:  loc.String(),
		Operation: op,
	}
}

// Source parses the task's source location.
func (t Task) Source() (Location, error) {
	return ParseLocation(t.Location)
}

// Encode serializes the task into a queue message body.
func (t Task) Encode() (string, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("failed to marshal task: %w", err)
	}

	return string(data), nil
}

// DecodeTask parses a queue message body into a task descriptor.
// Both location and operation are required.
func DecodeTask(body string) (Task, error) {
	var t Task
	if err := json.Unmarshal([]byte(body), &t); err != nil {
		return Task{}, fmt.Errorf("%w: %v", ErrMalformedTask, err)
	}

	if t.Location == "" {
		return Task{}, fmt.Errorf("%w: missing location", ErrMalformedTask)
	}
	if t.Operation == "" {
		return Task{}, fmt.Errorf("%w: missing operation", ErrMalformedTask)
	}
	if _, err := ParseLocation(t.Location); err != nil {
		return Task{}, fmt.Errorf("%w: %v", ErrMalformedTask, err)
	}

	t.Operation = ParseOperation(string(t.Operation))

	return t, nil
}
