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

// Package address holds the small string rules for email addresses:
// domain extraction, a structural validity check, and composition of the
// shielded mailbox name.
package address

import (
	"regexp"
	"strings"
)

// separator joins the service name and the random token.
const separator = "-"

var structural = regexp.MustCompile(`^[^@]+@[^@]+\.[^@]+$`)

// DomainOf returns everything after the first "@" in email. The boolean is
// false when email is empty or has no "@".
//
// The result is not validated: "@domain.com" yields "domain.com" and
// "a@b@c" yields "b@c". Use Valid to reject malformed input.
func DomainOf(email string) (string, bool) {
	_, domain, found := strings.Cut(email, "@")
	if !found {
		return "", false
	}
	return domain, true
}

// Valid reports whether email has the shape local@host.tld: one "@",
// a non-empty local part, and a host part containing a dot with
// characters on both sides of it.
func Valid(email string) bool {
	return structural.MatchString(email)
}

// MailboxName builds the lowercased "<service>-<token>" mailbox name.
func MailboxName(service, token string) string {
	return strings.ToLower(service + separator + token)
}

// Compose joins a mailbox name and domain into a full address.
func Compose(name, domain string) string {
	return name + "@" + domain
}
