package logger

import "strings"

// RedactEmail masks the local part of an address for logging, keeping the
// first two characters and the domain: "john.doe@example.com" becomes
// "jo***@example.com". Sub-address tags are dropped and a display-name
// form keeps only the bracketed address: "Jane <jane+news@example.com>"
// becomes "<ja***@example.com>".
func RedactEmail(s string) string {
	s = strings.TrimSpace(s)
	if open := strings.LastIndexByte(s, '<'); open >= 0 && strings.HasSuffix(s, ">") {
		return "<" + redactAddress(s[open+1:len(s)-1]) + ">"
	}
	return redactAddress(s)
}

func redactAddress(addr string) string {
	at := strings.LastIndexByte(addr, '@')
	if at <= 0 || at == len(addr)-1 {
		return "***@***"
	}
	local, domain := addr[:at], addr[at+1:]
	if plus := strings.IndexByte(local, '+'); plus >= 0 {
		local = local[:plus]
	}
	if len(local) > 2 {
		return local[:2] + "***@" + domain
	}
	return "***@" + domain
}
