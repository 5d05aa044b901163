package cert

import (
	"fmt"
	"net/netip"
	"regexp"
	"strings"

	"github.com/miekg/dns"
	caerrors "github.com/mtls-labs/clusterca/errors"
)

const maxHostnameLength = 253

var (
	hostnameLabelRe = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)
	numericLabelRe  = regexp.MustCompile(`^[0-9]+$`)
)

// ValidateHostname checks that hostname is a DNS name usable as the subject of
// a control service certificate and returns its canonical form (lower case, no trailing dot).
// IP address literals are rejected since HTTPS clients match the certificate against the hostname.
func ValidateHostname(hostname string) (string, error) {
	h := strings.ToLower(strings.TrimSpace(hostname))
	if h == "" {
		return "", fmt.Errorf("%w: hostname is empty", caerrors.ErrInvalidHostname)
	}

	if isIPLiteral(h) {
		return "", fmt.Errorf("%w: %q is an IP address, a DNS name is required", caerrors.ErrInvalidHostname, hostname)
	}

	if _, ok := dns.IsDomainName(h); !ok {
		return "", fmt.Errorf("%w: %q is not a domain name", caerrors.ErrInvalidHostname, hostname)
	}

	h = strings.TrimSuffix(h, ".")
	if len(h) > maxHostnameLength {
		return "", fmt.Errorf("%w: %q is longer than %d characters", caerrors.ErrInvalidHostname, hostname, maxHostnameLength)
	}

	labels := dns.SplitDomainName(h)
	if len(labels) == 0 {
		return "", fmt.Errorf("%w: %q has no labels", caerrors.ErrInvalidHostname, hostname)
	}

	for _, l := range labels {
		if !hostnameLabelRe.MatchString(l) {
			return "", fmt.Errorf("%w: label %q of %q is not a valid host label", caerrors.ErrInvalidHostname, l, hostname)
		}
	}

	// all-numeric top level labels are never assigned and make the name look like an address
	if numericLabelRe.MatchString(labels[len(labels)-1]) {
		return "", fmt.Errorf("%w: %q ends with a numeric label", caerrors.ErrInvalidHostname, hostname)
	}

	return h, nil
}

func isIPLiteral(s string) bool {
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	_, err := netip.ParseAddr(s)
	return err == nil
}
