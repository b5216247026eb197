package mirrors

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/temirov/subpkg/internal/gitrepo"
	"github.com/temirov/subpkg/internal/manifest"
)

const (
	ownerPlaceholderConstant          = "{owner}"
	repositoryPlaceholderConstant     = "{repo}"
	plainHostHTTPTemplateConstant     = "https://%s/{owner}/{repo}.git"
	plainHostSSHTemplateConstant      = "git@%s:{owner}/{repo}.git"
	plainHostMirrorNameConstant       = "official"
	probeAddressTemplateConstant      = "%s://%s"
	defaultSSHPortConstant            = "22"
	scpUserSeparatorConstant          = "@"
	scpPathSeparatorConstant          = ":"
	schemeSeparatorConstant           = "://"
	noCandidateHostsMessageConstant   = "no candidate hosts"
	templateErrorTemplateConstant     = "mirror %s/%s: %s"
	groupNameRequiredMessageConstant  = "host group name required"
	mirrorNameRequiredMessageConstant = "mirror name required"
	templateRequiredMessageConstant   = "at least one of http or ssh template required"
	missingRepositoryMessageConstant  = "template %q must contain {repo}"
	noCandidatesErrorTemplateConstant = "%w: %s"
)

// ErrNoCandidateHosts indicates a host template expanded to nothing for the requested protocol.
var ErrNoCandidateHosts = errors.New(noCandidateHostsMessageConstant)

// TemplateError reports an unusable mirror definition.
type TemplateError struct {
	Group   string
	Mirror  string
	Message string
}

// Error describes the template problem.
func (templateError TemplateError) Error() string {
	return fmt.Sprintf(templateErrorTemplateConstant, templateError.Group, templateError.Mirror, templateError.Message)
}

// Mirror is one clone source of a host group.
type Mirror struct {
	Name string `mapstructure:"name"`
	HTTP string `mapstructure:"http"`
	SSH  string `mapstructure:"ssh"`
}

// Template returns the URL template for the protocol.
func (mirror Mirror) Template(protocol gitrepo.TransportProtocol) string {
	if protocol == gitrepo.TransportProtocolSSH {
		return strings.TrimSpace(mirror.SSH)
	}
	return strings.TrimSpace(mirror.HTTP)
}

// HostGroup is a named set of interchangeable mirrors; the first mirror is the official host.
type HostGroup struct {
	Name    string   `mapstructure:"name"`
	Mirrors []Mirror `mapstructure:"mirrors"`
}

// List is the ordered mirror configuration.
type List struct {
	Groups []HostGroup
}

// NewList constructs a List, normalizing group names for lookup.
func NewList(groups []HostGroup) List {
	normalizedGroups := make([]HostGroup, 0, len(groups))
	for _, group := range groups {
		group.Name = strings.ToLower(strings.TrimSpace(group.Name))
		normalizedGroups = append(normalizedGroups, group)
	}
	return List{Groups: normalizedGroups}
}

// Validate checks every group and mirror definition.
func (list List) Validate() error {
	for _, group := range list.Groups {
		if len(group.Name) == 0 {
			return TemplateError{Message: groupNameRequiredMessageConstant}
		}
		for _, mirror := range group.Mirrors {
			if len(strings.TrimSpace(mirror.Name)) == 0 {
				return TemplateError{Group: group.Name, Message: mirrorNameRequiredMessageConstant}
			}
			httpTemplate := mirror.Template(gitrepo.TransportProtocolHTTP)
			sshTemplate := mirror.Template(gitrepo.TransportProtocolSSH)
			if len(httpTemplate) == 0 && len(sshTemplate) == 0 {
				return TemplateError{Group: group.Name, Mirror: mirror.Name, Message: templateRequiredMessageConstant}
			}
			for _, template := range []string{httpTemplate, sshTemplate} {
				if len(template) > 0 && !strings.Contains(template, repositoryPlaceholderConstant) {
					return TemplateError{Group: group.Name, Mirror: mirror.Name, Message: fmt.Sprintf(missingRepositoryMessageConstant, template)}
				}
			}
		}
	}
	return nil
}

// Group returns the host group registered under the name.
func (list List) Group(name string) (HostGroup, bool) {
	normalizedName := strings.ToLower(strings.TrimSpace(name))
	for _, group := range list.Groups {
		if group.Name == normalizedName {
			return group, true
		}
	}
	return HostGroup{}, false
}

// Candidate is one URL a subpackage can be cloned from.
type Candidate struct {
	Host         string
	Mirror       string
	URL          string
	ProbeAddress string
	Protocol     gitrepo.TransportProtocol
}

// Candidates expands a host template into clone candidates in declaration order.
// Known groups contribute their mirrors in order; unknown hosts are used as plain hostnames.
func (list List) Candidates(spec manifest.HostSpec, protocol gitrepo.TransportProtocol) ([]Candidate, error) {
	candidates := make([]Candidate, 0)
	seenURLs := make(map[string]struct{})
	appendCandidate := func(host string, mirrorName string, template string) {
		if len(template) == 0 {
			return
		}
		expandedURL := expandTemplate(template, spec.Owner, spec.Repository)
		if _, seen := seenURLs[expandedURL]; seen {
			return
		}
		seenURLs[expandedURL] = struct{}{}
		candidates = append(candidates, Candidate{
			Host:         host,
			Mirror:       mirrorName,
			URL:          expandedURL,
			ProbeAddress: ProbeAddress(expandedURL),
			Protocol:     protocol,
		})
	}

	for _, host := range spec.Hosts {
		group, known := list.Group(host)
		if !known {
			appendCandidate(host, plainHostMirrorNameConstant, plainHostTemplate(host, protocol))
			continue
		}
		for _, mirror := range group.Mirrors {
			appendCandidate(group.Name, mirror.Name, mirror.Template(protocol))
		}
	}

	if len(candidates) == 0 {
		return nil, fmt.Errorf(noCandidatesErrorTemplateConstant, ErrNoCandidateHosts, spec.String())
	}
	return candidates, nil
}

// OfficialURL returns the URL of the first mirror of the first declared host.
func (list List) OfficialURL(spec manifest.HostSpec, protocol gitrepo.TransportProtocol) (string, error) {
	candidates, candidatesError := list.Candidates(spec, protocol)
	if candidatesError != nil {
		return "", candidatesError
	}
	return candidates[0].URL, nil
}

// ProbeAddress derives the address probed for a clone URL: scheme://host for URLs with a
// scheme and host:22 for scp-style remotes. It returns an empty string when no host is present.
func ProbeAddress(cloneURL string) string {
	if strings.Contains(cloneURL, schemeSeparatorConstant) {
		parsedURL, parseError := url.Parse(cloneURL)
		if parseError != nil || len(parsedURL.Host) == 0 {
			return ""
		}
		if parsedURL.Scheme == string(gitrepo.TransportProtocolSSH) {
			hostName := parsedURL.Hostname()
			port := parsedURL.Port()
			if len(port) == 0 {
				port = defaultSSHPortConstant
			}
			return net.JoinHostPort(hostName, port)
		}
		return fmt.Sprintf(probeAddressTemplateConstant, parsedURL.Scheme, parsedURL.Host)
	}

	userSeparatorIndex := strings.Index(cloneURL, scpUserSeparatorConstant)
	pathSeparatorIndex := strings.Index(cloneURL, scpPathSeparatorConstant)
	if pathSeparatorIndex <= userSeparatorIndex+1 {
		return ""
	}
	return net.JoinHostPort(cloneURL[userSeparatorIndex+1:pathSeparatorIndex], defaultSSHPortConstant)
}

func plainHostTemplate(host string, protocol gitrepo.TransportProtocol) string {
	if protocol == gitrepo.TransportProtocolSSH {
		return fmt.Sprintf(plainHostSSHTemplateConstant, host)
	}
	return fmt.Sprintf(plainHostHTTPTemplateConstant, host)
}

func expandTemplate(template string, owner string, repository string) string {
	replacer := strings.NewReplacer(ownerPlaceholderConstant, owner, repositoryPlaceholderConstant, repository)
	return replacer.Replace(template)
}
