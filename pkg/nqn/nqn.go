// Package nqn validates NVMe Qualified Names per the GLOSSARY definition
// in the gateway control-plane specification.
package nqn

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const (
	// MinLength and MaxLength bound a syntactically valid NQN.
	MinLength = 11
	MaxLength = 223

	// DiscoveryNQN is the reserved NQN used by Discovery controllers.
	DiscoveryNQN = "nqn.2014-08.org.nvmexpress.discovery"

	uuidPrefix = "nqn.2014-08.org.nvmexpress:uuid:"
)

var dateDomainPattern = regexp.MustCompile(`^nqn\.(\d{4})-(\d{2})\.([a-zA-Z0-9-]{1,63}(?:\.[a-zA-Z0-9-]{1,63})*):(.+)$`)

var labelPattern = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?$`)

// Validate reports whether s is a syntactically valid NQN: either the
// date-code/reverse-domain form `nqn.YYYY-MM.<reverse-domain>:<user>` or
// the UUID form `nqn.2014-08.org.nvmexpress:uuid:<UUID>`.
func Validate(s string) error {
	if len(s) < MinLength || len(s) > MaxLength {
		return fmt.Errorf("nqn: length %d outside [%d,%d]", len(s), MinLength, MaxLength)
	}
	if !isValidUTF8(s) {
		return fmt.Errorf("nqn: not valid UTF-8")
	}

	if strings.HasPrefix(s, uuidPrefix) {
		rest := strings.TrimPrefix(s, uuidPrefix)
		if _, err := uuid.Parse(rest); err != nil {
			return fmt.Errorf("nqn: invalid uuid suffix: %w", err)
		}
		return nil
	}

	m := dateDomainPattern.FindStringSubmatch(s)
	if m == nil {
		return fmt.Errorf("nqn: does not match nqn.YYYY-MM.<reverse-domain>:<user> or uuid form")
	}

	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	if year < 1900 || month < 1 || month > 12 {
		return fmt.Errorf("nqn: invalid date code %s-%s", m[1], m[2])
	}

	domain := m[3]
	for _, label := range strings.Split(domain, ".") {
		if !labelPattern.MatchString(label) {
			return fmt.Errorf("nqn: invalid reverse-domain label %q", label)
		}
	}

	if m[4] == "" {
		return fmt.Errorf("nqn: user part is empty")
	}

	return nil
}

func isValidUTF8(s string) bool {
	for _, r := range s {
		if r == '�' {
			return false
		}
	}
	return true
}

// IsDiscovery reports whether s is the reserved discovery NQN.
func IsDiscovery(s string) bool {
	return s == DiscoveryNQN
}

// IsAnyHost reports whether s denotes the wildcard "any host" entry
// accepted in place of a host NQN on add_host/remove_host.
func IsAnyHost(s string) bool {
	return s == "*"
}
