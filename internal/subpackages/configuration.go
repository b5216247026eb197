package subpackages

import (
	"strings"
	"time"

	"github.com/temirov/subpkg/internal/gitrepo"
	"github.com/temirov/subpkg/internal/manifest"
	"github.com/temirov/subpkg/internal/mirrors"
	pathutils "github.com/temirov/subpkg/internal/utils/path"
)

var subpackagesConfigurationHomeDirectoryExpander = pathutils.NewHomeExpander()

const (
	defaultJobsConstant          = 1
	defaultProbeStrategyConstant = probeStrategyParallelConstant
)

// Configuration aggregates settings for the subpackage commands.
type Configuration struct {
	Fetch         FetchConfiguration  `mapstructure:"fetch"`
	List          ListConfiguration   `mapstructure:"list"`
	ManifestNames []string            `mapstructure:"manifest_names"`
	Mirrors       []mirrors.HostGroup `mapstructure:"mirrors"`
	MetricsFile   string              `mapstructure:"metrics_file"`
}

// FetchConfiguration stores defaults for the fetch and update commands.
type FetchConfiguration struct {
	Protocol      string        `mapstructure:"protocol"`
	Shallow       bool          `mapstructure:"shallow"`
	UseMirror     bool          `mapstructure:"use_mirror"`
	ProbeTimeout  time.Duration `mapstructure:"probe_timeout"`
	Jobs          int           `mapstructure:"jobs"`
	ProbeStrategy string        `mapstructure:"probe_strategy"`
	Recursive     bool          `mapstructure:"recursive"`
}

// ListConfiguration stores defaults for the list command.
type ListConfiguration struct {
	Recursive bool   `mapstructure:"recursive"`
	Format    string `mapstructure:"format"`
}

// DefaultConfiguration supplies baseline values for the subpackage commands.
func DefaultConfiguration() Configuration {
	return Configuration{
		Fetch: FetchConfiguration{
			Protocol:      string(gitrepo.TransportProtocolHTTP),
			Shallow:       true,
			UseMirror:     true,
			ProbeTimeout:  mirrors.DefaultProbeTimeout,
			Jobs:          defaultJobsConstant,
			ProbeStrategy: defaultProbeStrategyConstant,
			Recursive:     true,
		},
		List: ListConfiguration{
			Recursive: true,
			Format:    string(OutputFormatTree),
		},
		ManifestNames: append([]string{}, manifest.DefaultManifestNames...),
	}
}

// Sanitize trims configured values and restores defaults for missing or invalid ones.
func (configuration Configuration) Sanitize() Configuration {
	defaults := DefaultConfiguration()
	sanitized := configuration

	sanitized.Fetch.Protocol = strings.ToLower(strings.TrimSpace(configuration.Fetch.Protocol))
	if len(sanitized.Fetch.Protocol) == 0 {
		sanitized.Fetch.Protocol = defaults.Fetch.Protocol
	}
	if sanitized.Fetch.ProbeTimeout <= 0 {
		sanitized.Fetch.ProbeTimeout = defaults.Fetch.ProbeTimeout
	}
	sanitized.Fetch.ProbeStrategy = strings.ToLower(strings.TrimSpace(configuration.Fetch.ProbeStrategy))
	if len(sanitized.Fetch.ProbeStrategy) == 0 {
		sanitized.Fetch.ProbeStrategy = defaults.Fetch.ProbeStrategy
	}
	if sanitized.Fetch.Jobs <= 0 {
		sanitized.Fetch.Jobs = defaults.Fetch.Jobs
	}

	sanitized.List.Format = strings.ToLower(strings.TrimSpace(configuration.List.Format))
	if len(sanitized.List.Format) == 0 {
		sanitized.List.Format = defaults.List.Format
	}

	sanitized.ManifestNames = sanitizeManifestNames(configuration.ManifestNames)
	if len(sanitized.ManifestNames) == 0 {
		sanitized.ManifestNames = defaults.ManifestNames
	}

	sanitized.MetricsFile = strings.TrimSpace(configuration.MetricsFile)
	if len(sanitized.MetricsFile) > 0 {
		sanitized.MetricsFile = subpackagesConfigurationHomeDirectoryExpander.Expand(sanitized.MetricsFile)
	}

	return sanitized
}

func sanitizeManifestNames(candidateNames []string) []string {
	sanitizedNames := make([]string, 0, len(candidateNames))
	seenNames := make(map[string]struct{}, len(candidateNames))
	for _, candidateName := range candidateNames {
		trimmedName := strings.TrimSpace(candidateName)
		if len(trimmedName) == 0 {
			continue
		}
		if _, seen := seenNames[trimmedName]; seen {
			continue
		}
		seenNames[trimmedName] = struct{}{}
		sanitizedNames = append(sanitizedNames, trimmedName)
	}
	if len(sanitizedNames) == 0 {
		return nil
	}
	return sanitizedNames
}
