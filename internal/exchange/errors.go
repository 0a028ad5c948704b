// Copyright (c) 2026 John Earle
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

package exchange

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// CommandError reports a cmdlet the service rejected.
type CommandError struct {
	Cmdlet     string
	StatusCode int
	Code       string
	Message    string
}

func (e *CommandError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Code != "" {
		return fmt.Sprintf("%s failed (HTTP %d, %s): %s", e.Cmdlet, e.StatusCode, e.Code, msg)
	}
	return fmt.Sprintf("%s failed (HTTP %d): %s", e.Cmdlet, e.StatusCode, msg)
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details []struct {
			Message string `json:"message"`
		} `json:"details"`
	} `json:"error"`
}

func newCommandError(cmdlet string, resp *http.Response) *CommandError {
	ce := &CommandError{Cmdlet: cmdlet, StatusCode: resp.StatusCode}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		ce.Message = strings.TrimSpace(string(body))
		return ce
	}

	ce.Code = env.Error.Code
	ce.Message = cleanMessage(env.Error.Message)
	if ce.Message == "" && len(env.Error.Details) > 0 {
		ce.Message = cleanMessage(env.Error.Details[0].Message)
	}
	return ce
}

// cleanMessage strips the "|Exception.Type|" prefix the service puts in
// front of PowerShell error text.
func cleanMessage(msg string) string {
	msg = strings.TrimSpace(msg)
	if strings.HasPrefix(msg, "|") {
		if i := strings.Index(msg[1:], "|"); i >= 0 {
			msg = msg[i+2:]
		}
	}
	return strings.TrimSpace(msg)
}
