// Copyright 2026 The modelgate Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mcp

import (
	"fmt"
	"strings"
)

// ErrorCode categorizes connection-layer failures.
type ErrorCode string

const (
	// CodeDialFailed means the server process could not be started or
	// initialized.
	CodeDialFailed ErrorCode = "DIAL_FAILED"
	// CodeListFailed means the server's tool listing could not be read.
	CodeListFailed ErrorCode = "LIST_FAILED"
	// CodePingFailed means a health check did not come back.
	CodePingFailed ErrorCode = "PING_FAILED"
	// CodeToolError means the server reported a tool-level failure.
	CodeToolError ErrorCode = "TOOL_ERROR"
	// CodeClosed means the connection was shut down.
	CodeClosed ErrorCode = "CLOSED"
)

// ConnError is a connection-layer error with actionable suggestions.
type ConnError struct {
	Code        ErrorCode
	Server      string
	Message     string
	Suggestions []string
	Cause       error
}

func (e *ConnError) Error() string {
	var sb strings.Builder
	sb.WriteString(string(e.Code))
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	if e.Server != "" {
		sb.WriteString(" (server ")
		sb.WriteString(e.Server)
		sb.WriteString(")")
	}
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

func (e *ConnError) Unwrap() error { return e.Cause }

// errDialFailed builds the error for a failed dial or initialize.
func errDialFailed(server string, cause error) *ConnError {
	return &ConnError{
		Code:    CodeDialFailed,
		Server:  server,
		Message: "failed to connect to tool server",
		Cause:   cause,
		Suggestions: []string{
			"verify the command and arguments are correct",
			"ensure required environment variables are set",
			fmt.Sprintf("test the server manually: run its command and send an initialize request for %q", server),
		},
	}
}

// errListFailed builds the error for a failed tool listing.
func errListFailed(server string, cause error) *ConnError {
	return &ConnError{
		Code:    CodeListFailed,
		Server:  server,
		Message: "failed to list tools",
		Cause:   cause,
		Suggestions: []string{
			"check that the server implements the tools capability",
		},
	}
}

// errToolCall builds the error for a server-reported tool failure.
func errToolCall(server, tool, detail string) *ConnError {
	return &ConnError{
		Code:    CodeToolError,
		Server:  server,
		Message: fmt.Sprintf("tool %s failed: %s", tool, detail),
	}
}
