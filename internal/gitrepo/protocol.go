package gitrepo

import (
	"strings"
)

// TransportProtocol enumerates the user-facing clone transports.
type TransportProtocol string

// Supported transport protocols.
const (
	TransportProtocolHTTP TransportProtocol = TransportProtocol("http")
	TransportProtocolSSH  TransportProtocol = TransportProtocol("ssh")
)

// ParseTransportProtocol normalizes a textual protocol selection.
func ParseTransportProtocol(value string) (TransportProtocol, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(TransportProtocolHTTP), httpsSchemeConstant:
		return TransportProtocolHTTP, true
	case string(TransportProtocolSSH):
		return TransportProtocolSSH, true
	default:
		return "", false
	}
}

// TranslateProtocol rewrites an owner/repository style remote into the requested transport.
// Remotes that cannot be parsed, such as local paths, are returned unchanged.
func TranslateProtocol(remote string, protocol TransportProtocol) string {
	parsedRemote, parseError := ParseRemoteURL(remote)
	if parseError != nil {
		return remote
	}
	formattedRemote, formatError := parsedRemote.Format(protocol)
	if formatError != nil {
		return remote
	}
	return formattedRemote
}
