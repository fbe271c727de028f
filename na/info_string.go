// File: na/info_string.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Info-string grammar (spec §6): [<class>+]<protocol>[://[<host>]]

package na

import "strings"

// InfoString is the parsed form of an NA info string, e.g. "sm://" or
// "ofi+tcp://eth0:9999".
type InfoString struct {
	Class    string // optional, before a "+"
	Protocol string
	Host     string // optional, after "://"
}

// ParseInfoString parses the grammar [<class>+]<protocol>[://[<host>]].
// The parser rejects empty protocols, missing "://" before a host
// component, and embedded "/" in endpoint names (spec §6).
func ParseInfoString(s string) (InfoString, error) {
	var info InfoString

	rest := s
	if idx := strings.Index(rest, "+"); idx >= 0 {
		info.Class = rest[:idx]
		rest = rest[idx+1:]
	}

	if idx := strings.Index(rest, "://"); idx >= 0 {
		info.Protocol = rest[:idx]
		info.Host = rest[idx+3:]
	} else {
		if strings.Contains(rest, "/") {
			return InfoString{}, NewError("parse_info_string", InvalidArg)
		}
		info.Protocol = rest
	}

	if info.Protocol == "" {
		return InfoString{}, NewError("parse_info_string", InvalidArg)
	}
	if strings.Contains(info.Host, "/") {
		return InfoString{}, NewError("parse_info_string", InvalidArg)
	}

	return info, nil
}
