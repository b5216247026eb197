package manifest

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/temirov/subpkg/internal/gitrepo"
)

const (
	// DefaultBranchName is used when a subpackage omits its branch.
	DefaultBranchName = "main"

	identityKeyTemplateConstant = "url:%s#%s"
	hostListSeparatorConstant   = ","
	gitSuffixConstant           = ".git"
	templateDeclarationTemplate = "%s/%s@%s"
	hostTemplatePatternConstant = `^([^/@:\s]+)/([^/@:\s]+)@([^/@:\s]+(?:,[^/@:\s]+)*)$`
	schemeSeparatorConstant     = "://"
	scpStyleUserPrefixConstant  = "git@"
)

var hostTemplatePattern = regexp.MustCompile(hostTemplatePatternConstant)

// HostSpec describes where a subpackage can be fetched from: either a literal URL
// or an owner/repository identity with a set of acceptable hosts.
type HostSpec struct {
	Literal    string
	Owner      string
	Repository string
	Hosts      []string
}

// IsTemplate reports whether the host specification names interchangeable hosts.
func (spec HostSpec) IsTemplate() bool {
	return len(spec.Hosts) > 0
}

// String renders the specification in its declared form.
func (spec HostSpec) String() string {
	if !spec.IsTemplate() {
		return spec.Literal
	}
	return fmt.Sprintf(templateDeclarationTemplate, spec.Owner, spec.Repository, strings.Join(spec.Hosts, hostListSeparatorConstant))
}

// ParseHostSpec interprets a declared url value. Values of the form owner/repo@host[,host]
// become templates; URLs, scp-style remotes, and filesystem paths stay literal.
func ParseHostSpec(declared string) HostSpec {
	trimmed := strings.TrimSpace(declared)
	if strings.Contains(trimmed, schemeSeparatorConstant) || strings.HasPrefix(trimmed, scpStyleUserPrefixConstant) {
		return HostSpec{Literal: trimmed}
	}
	matches := hostTemplatePattern.FindStringSubmatch(trimmed)
	if matches == nil {
		return HostSpec{Literal: trimmed}
	}
	hosts := make([]string, 0)
	for _, host := range strings.Split(matches[3], hostListSeparatorConstant) {
		hosts = append(hosts, strings.ToLower(strings.TrimSpace(host)))
	}
	return HostSpec{
		Owner:      matches[1],
		Repository: strings.TrimSuffix(matches[2], gitSuffixConstant),
		Hosts:      hosts,
	}
}

// SubpackageSpec is one subpackage declaration.
type SubpackageSpec struct {
	Name           string
	CandidatePaths []string
	Host           HostSpec
	Branch         string
	Protocol       gitrepo.TransportProtocol
}

// DeclaredURL returns the url value as written in the manifest.
func (spec SubpackageSpec) DeclaredURL() string {
	return spec.Host.String()
}

// Identity returns the key identifying the subpackage before any path is known.
func (spec SubpackageSpec) Identity() string {
	return fmt.Sprintf(identityKeyTemplateConstant, spec.DeclaredURL(), spec.Branch)
}

// ProjectContext carries read-only project metadata threaded into resolution.
type ProjectContext struct {
	Name               string
	Description        string
	Version            *semver.Version
	MinimumToolVersion *semver.Version
}

// Manifest is a parsed project manifest.
type Manifest struct {
	Path        string
	Directory   string
	Project     ProjectContext
	Subpackages []SubpackageSpec
}
