// Package respond writes the JSON envelopes of the task API: a success body
// is {"result": ...} and an error body is {"message": "..."}.
package respond

import (
	"net/http"

	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"
)

// Success is the body of a 2xx response.
type Success struct {
	Result interface{} `json:"result"`
}

// Error is the body of a 4xx or 5xx response.
type Error struct {
	Message string `json:"message"`
}

// JSON writes data with the given status.
func JSON(c *ginext.Context, status int, data interface{}) {
	c.JSON(status, data)
}

// OK writes result with 200.
func OK(c *ginext.Context, result interface{}) {
	JSON(c, http.StatusOK, Success{Result: result})
}

// Created writes a newly submitted task with 201.
func Created(c *ginext.Context, result interface{}) {
	JSON(c, http.StatusCreated, Success{Result: result})
}

// Fail writes err with status. Client errors carry err's text; for server
// errors the text is logged with the request path and the client only sees
// the status text, since those errors name buckets, queues and hosts.
func Fail(c *ginext.Context, status int, err error) {
	if status < http.StatusInternalServerError {
		JSON(c, status, Error{Message: err.Error()})
		return
	}

	zlog.Logger.Error().
		Err(err).
		Str("method", c.Request.Method).
		Str("path", c.Request.URL.Path).
		Int("status", status).
		Msg("request failed")
	JSON(c, status, Error{Message: http.StatusText(status)})
}
