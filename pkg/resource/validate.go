package resource

import (
	"fmt"
	"net"
	"strings"

	"github.com/marmos91/nvmeof-gateway/pkg/gwerrors"
	"github.com/marmos91/nvmeof-gateway/pkg/nqn"
)

func validateNQN(s string) error {
	return nqn.Validate(s)
}

// validatePort rejects 0 and anything above the 16-bit range, per §8's
// boundary cases.
func validatePort(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("%w: port %d out of range", gwerrors.ErrValidation, port)
	}
	return nil
}

// validateNSID rejects 0 and anything beyond the subsystem's configured
// max_namespaces, per §8.
func validateNSID(nsid uint32, maxNamespaces int) error {
	if nsid == 0 {
		return fmt.Errorf("%w: nsid 0 is reserved", gwerrors.ErrValidation)
	}
	if maxNamespaces > 0 && int(nsid) > maxNamespaces {
		return fmt.Errorf("%w: nsid %d exceeds max_namespaces %d", gwerrors.ErrValidation, nsid, maxNamespaces)
	}
	return nil
}

// validateSizeAlignment rejects sizes that are not positive, used by
// namespace_add and namespace_resize. Sizes are given in whole MiB, so
// every accepted size is 1 MiB-aligned.
func validateSizeAlignment(sizeMiB int64) error {
	if sizeMiB <= 0 {
		return fmt.Errorf("%w: size must be positive", gwerrors.ErrValidation)
	}
	return nil
}

// normalizeAddress brackets an IPv6 literal (accepted with or without
// brackets on input, per §8) before any ":port" concatenation. IPv4 and
// hostnames pass through unchanged.
func normalizeAddress(addr string) string {
	trimmed := strings.TrimPrefix(strings.TrimSuffix(addr, "]"), "[")
	if ip := net.ParseIP(trimmed); ip != nil && strings.Contains(trimmed, ":") {
		return "[" + trimmed + "]"
	}
	return addr
}

// joinHostPort brackets IPv6 addresses before concatenating the port,
// matching §8's output convention.
func joinHostPort(addr string, port int) string {
	return fmt.Sprintf("%s:%d", normalizeAddress(addr), port)
}
