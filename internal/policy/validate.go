package policy

import (
	"fmt"
	"net"
	"regexp"
	"strings"
)

var identifierRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var interfaceRegex = regexp.MustCompile(`^[A-Za-z0-9_.:@-]{1,15}$`)

// Severity levels of a validation finding.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// ValidationError represents a policy validation finding.
type ValidationError struct {
	Field    string
	Message  string
	Severity string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation findings.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if any finding has error severity.
func (e ValidationErrors) HasErrors() bool {
	for _, err := range e {
		if err.Severity != SeverityWarning {
			return true
		}
	}
	return false
}

// Errors returns only the error-severity findings.
func (e ValidationErrors) Errors() ValidationErrors {
	var out ValidationErrors
	for _, err := range e {
		if err.Severity != SeverityWarning {
			out = append(out, err)
		}
	}
	return out
}

// Warnings returns only the warning-severity findings.
func (e ValidationErrors) Warnings() ValidationErrors {
	var out ValidationErrors
	for _, err := range e {
		if err.Severity == SeverityWarning {
			out = append(out, err)
		}
	}
	return out
}

// Validate checks a defaulted policy. Fields are named as they appear in the
// JSON document.
func (p *Policy) Validate() ValidationErrors {
	var errs ValidationErrors
	fail := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Severity: SeverityError})
	}
	warn := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Severity: SeverityWarning})
	}

	if !identifierRegex.MatchString(p.ProgramName()) {
		fail("name", "%q is not a valid program identifier once spaces are removed", p.Name)
	}

	switch p.Kind() {
	case ProgramIP, ProgramDNS:
	default:
		fail("programType", "unsupported program type %q (supported: ip, dns)", p.ProgramType)
	}

	if _, ok := p.DefaultToken(); !ok {
		warn("defaultAction", "unsupported action %q, using %s", p.DefaultAction, UnrecognizedDefaultAction)
	}

	if p.NetworkInterface != "" && !interfaceRegex.MatchString(p.NetworkInterface) {
		fail("networkInterface", "invalid interface name %q", p.NetworkInterface)
	}

	if p.Target != nil && !p.Target.IsLocal() {
		if p.Target.Port < 0 || p.Target.Port > 65535 {
			fail("target.port", "port %d out of range", p.Target.Port)
		}
		if strings.ContainsAny(p.Target.Username, " ;|&$`'\"") {
			fail("target.username", "invalid username %q", p.Target.Username)
		}
	}

	for _, name := range AllLists {
		field := "lists." + string(name)
		l := p.List(name)
		if l == nil {
			if len(p.PreloadFor(name)) > 0 {
				warn("preload."+string(name), "list is not configured, entries will be ignored")
			}
			continue
		}
		if l.MaxEntries == 0 {
			fail(field+".maxEntries", "must be greater than zero")
		}
		if !l.Binary() && name != Graylist {
			warn(field+".action", "unsupported action %q, using %s", l.Action, UnrecognizedListAction)
		}
		if name == Graylist && !l.Binary() && l.Enabled {
			if l.Frequency == 0 {
				fail(field+".frequency", "must be greater than zero")
			}
			if l.FastPacketThreshold == 0 {
				fail(field+".fastPacketThreshold", "must be greater than zero")
			}
			if !p.Enabled(Blacklist) {
				warn(field, "blacklist is disabled, fast senders will be tracked but never promoted")
			}
		}

		entries := p.PreloadFor(name)
		if !l.Enabled && len(entries) > 0 {
			warn("preload."+string(name), "list is disabled, entries will be ignored")
		}
		if uint32(len(entries)) > l.MaxEntries {
			warn("preload."+string(name), "%d entries exceed maxEntries %d, oldest will be evicted", len(entries), l.MaxEntries)
		}
		seen := make(map[string]bool, len(entries))
		for i, entry := range entries {
			ef := fmt.Sprintf("preload.%s[%d]", name, i)
			ip := net.ParseIP(strings.TrimSpace(entry))
			switch {
			case ip == nil && !p.resolvesHostnames():
				fail(ef, "%q is not an IP address", entry)
			case ip != nil && ip.To4() == nil:
				fail(ef, "%q is not an IPv4 address", entry)
			}
			key := strings.ToLower(strings.TrimSpace(entry))
			if seen[key] {
				fail(ef, "duplicate entry %q", entry)
			}
			seen[key] = true
		}
	}

	return errs
}

func (p *Policy) resolvesHostnames() bool {
	return p.Preload != nil && p.Preload.ResolveHostnames
}
