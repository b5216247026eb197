package gitrepo

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

const (
	httpSchemeConstant                  = "http"
	httpsSchemeConstant                 = "https"
	sshSchemeConstant                   = "ssh"
	schemeSeparatorConstant             = "://"
	scpUserDelimiterConstant            = "@"
	scpPathDelimiterConstant            = ":"
	pathSeparatorConstant               = "/"
	gitSuffixConstant                   = ".git"
	defaultSSHUserConstant              = "git"
	minimumPathSegmentsConstant         = 2
	remoteURLParseErrorTemplateConstant = "%s: %s"
	invalidRemoteURLMessageConstant     = "invalid remote url"
	unsupportedSchemeMessageConstant    = "unsupported remote scheme"
	incompletePathMessageConstant       = "remote path must name an owner and a repository"
	unknownProtocolMessageConstant      = "unsupported transport protocol"
	webRemoteTemplateConstant           = "%s://%s/%s.git"
	scpRemoteTemplateConstant           = "%s@%s:%s.git"
	sshSchemeRemoteTemplateConstant     = "ssh://%s@%s/%s.git"
)

// RemoteURL is a hosted repository address split into the parts needed to re-express it
// over another transport.
type RemoteURL struct {
	Transport TransportProtocol
	Scheme    string
	User      string
	Host      string
	Port      string
	Path      string
}

// RemoteURLParseError indicates a remote string could not be parsed.
type RemoteURLParseError struct {
	Input   string
	Message string
}

// Error describes the parse failure.
func (parseError RemoteURLParseError) Error() string {
	return fmt.Sprintf(remoteURLParseErrorTemplateConstant, parseError.Input, parseError.Message)
}

// UnsupportedProtocolError indicates the provided transport cannot be formatted.
type UnsupportedProtocolError struct {
	Protocol TransportProtocol
}

// Error describes the unsupported transport.
func (protocolError UnsupportedProtocolError) Error() string {
	return fmt.Sprintf(remoteURLParseErrorTemplateConstant, protocolError.Protocol, unknownProtocolMessageConstant)
}

// Owner returns every path segment before the repository name, joined by slashes.
func (remote RemoteURL) Owner() string {
	separatorIndex := strings.LastIndex(remote.Path, pathSeparatorConstant)
	if separatorIndex == -1 {
		return ""
	}
	return remote.Path[:separatorIndex]
}

// Repository returns the final path segment.
func (remote RemoteURL) Repository() string {
	return remote.Path[strings.LastIndex(remote.Path, pathSeparatorConstant)+1:]
}

// ParseRemoteURL accepts http(s) and ssh URLs as well as scp-style user@host:path remotes.
func ParseRemoteURL(remote string) (RemoteURL, error) {
	trimmedRemote := strings.TrimSpace(remote)
	if len(trimmedRemote) == 0 {
		return RemoteURL{}, RemoteURLParseError{Input: remote, Message: requiredValueMessageConstant}
	}

	var parsedRemote RemoteURL
	var rawPath string
	if strings.Contains(trimmedRemote, schemeSeparatorConstant) {
		parsedURL, parseError := url.Parse(trimmedRemote)
		if parseError != nil {
			return RemoteURL{}, RemoteURLParseError{Input: remote, Message: invalidRemoteURLMessageConstant}
		}
		scheme := strings.ToLower(parsedURL.Scheme)
		switch scheme {
		case httpSchemeConstant, httpsSchemeConstant:
			parsedRemote.Transport = TransportProtocolHTTP
		case sshSchemeConstant:
			parsedRemote.Transport = TransportProtocolSSH
			if parsedURL.User != nil {
				parsedRemote.User = parsedURL.User.Username()
			}
		default:
			return RemoteURL{}, RemoteURLParseError{Input: remote, Message: unsupportedSchemeMessageConstant}
		}
		parsedRemote.Scheme = scheme
		parsedRemote.Host = parsedURL.Hostname()
		parsedRemote.Port = parsedURL.Port()
		rawPath = parsedURL.Path
	} else {
		userIndex := strings.Index(trimmedRemote, scpUserDelimiterConstant)
		pathIndex := strings.Index(trimmedRemote, scpPathDelimiterConstant)
		if userIndex <= 0 || pathIndex <= userIndex+1 {
			return RemoteURL{}, RemoteURLParseError{Input: remote, Message: invalidRemoteURLMessageConstant}
		}
		parsedRemote.Transport = TransportProtocolSSH
		parsedRemote.User = trimmedRemote[:userIndex]
		parsedRemote.Host = trimmedRemote[userIndex+1 : pathIndex]
		rawPath = trimmedRemote[pathIndex+1:]
	}

	if len(parsedRemote.Host) == 0 {
		return RemoteURL{}, RemoteURLParseError{Input: remote, Message: invalidRemoteURLMessageConstant}
	}
	normalizedPath, pathValid := normalizeRepositoryPath(rawPath)
	if !pathValid {
		return RemoteURL{}, RemoteURLParseError{Input: remote, Message: incompletePathMessageConstant}
	}
	parsedRemote.Path = normalizedPath
	return parsedRemote, nil
}

func normalizeRepositoryPath(rawPath string) (string, bool) {
	trimmedPath := strings.TrimSuffix(strings.Trim(rawPath, pathSeparatorConstant), gitSuffixConstant)
	segments := strings.Split(trimmedPath, pathSeparatorConstant)
	if len(segments) < minimumPathSegmentsConstant {
		return "", false
	}
	for _, segment := range segments {
		if len(segment) == 0 {
			return "", false
		}
	}
	return trimmedPath, true
}

// Format renders the remote over the requested transport. Ports only survive when the
// transport is unchanged because http and ssh services rarely share one.
func (remote RemoteURL) Format(transport TransportProtocol) (string, error) {
	if len(strings.TrimSpace(remote.Host)) == 0 {
		return "", RemoteURLParseError{Input: remote.Host, Message: requiredValueMessageConstant}
	}
	if len(strings.TrimSpace(remote.Path)) == 0 {
		return "", RemoteURLParseError{Input: remote.Path, Message: requiredValueMessageConstant}
	}

	host := remote.Host
	if remote.Transport == transport && len(remote.Port) > 0 {
		host = net.JoinHostPort(remote.Host, remote.Port)
	}

	switch transport {
	case TransportProtocolHTTP:
		scheme := httpsSchemeConstant
		if remote.Transport == TransportProtocolHTTP && remote.Scheme == httpSchemeConstant {
			scheme = httpSchemeConstant
		}
		return fmt.Sprintf(webRemoteTemplateConstant, scheme, host, remote.Path), nil
	case TransportProtocolSSH:
		user := remote.User
		if remote.Transport != TransportProtocolSSH || len(user) == 0 {
			user = defaultSSHUserConstant
		}
		if host != remote.Host {
			return fmt.Sprintf(sshSchemeRemoteTemplateConstant, user, host, remote.Path), nil
		}
		return fmt.Sprintf(scpRemoteTemplateConstant, user, host, remote.Path), nil
	default:
		return "", UnsupportedProtocolError{Protocol: transport}
	}
}
