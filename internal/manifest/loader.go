package manifest

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/Masterminds/semver/v3"
	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"

	"github.com/temirov/subpkg/internal/gitrepo"
	"github.com/temirov/subpkg/internal/repos/shared"
)

const (
	jsonExtensionConstant                  = ".json"
	yamlExtensionConstant                  = ".yaml"
	ymlExtensionConstant                   = ".yml"
	tomlExtensionConstant                  = ".toml"
	subpackagesKeyConstant                 = "subpackages"
	mapstructureTagNameConstant            = "mapstructure"
	manifestNotFoundErrorTemplateConstant  = "%w: %s"
	unsupportedFormatErrorTemplateConstant = "%w: %s"
	readManifestErrorTemplateConstant      = "unable to read manifest %s: %w"
	documentNotMappingMessageConstant      = "document root must be a mapping"
	subpackagesNotMappingMessageConstant   = "subpackages must be a mapping of name to declaration"
	subpackageNotMappingMessageConstant    = "declaration must be a mapping"
	duplicateSubpackageMessageConstant     = "declared more than once"
	missingPathMessageConstant             = "path must name at least one candidate"
	emptyPathMessageConstant               = "path entries must not be empty"
	missingURLMessageConstant              = "url is required"
	invalidProtocolTemplateConstant        = "protocol %q must be http or ssh"
	invalidVersionTemplateConstant         = "version %q is not a semantic version"
	invalidMinimumVersionTemplateConstant  = "min-version %q is not a semantic version"
	decodeSubpackageTemplateConstant       = "unable to decode declaration: %v"
	emptySubpackageNameMessageConstant     = "subpackage names must not be empty"
)

// DefaultManifestNames lists the manifest file names probed in order.
var DefaultManifestNames = []string{"repo.json", "repo.yaml", "repo.yml", "repo.toml"}

type projectFields struct {
	Name           string `mapstructure:"name"`
	Version        string `mapstructure:"version"`
	Description    string `mapstructure:"description"`
	MinimumVersion string `mapstructure:"min-version"`
}

type subpackageFields struct {
	Path     []string `mapstructure:"path"`
	URL      string   `mapstructure:"url"`
	Branch   string   `mapstructure:"branch"`
	Protocol string   `mapstructure:"protocol"`
}

type subpackageEntry struct {
	name        string
	declaration any
}

type manifestDocument struct {
	fields      map[string]any
	subpackages []subpackageEntry
}

// Loader locates and parses manifests.
type Loader struct {
	ManifestNames []string
	FileSystem    shared.FileSystem
}

// NewLoader constructs a Loader, defaulting the manifest names when none are provided.
func NewLoader(fileSystem shared.FileSystem, manifestNames []string) *Loader {
	names := make([]string, 0, len(manifestNames))
	for _, manifestName := range manifestNames {
		trimmedName := strings.TrimSpace(manifestName)
		if len(trimmedName) > 0 {
			names = append(names, trimmedName)
		}
	}
	if len(names) == 0 {
		names = append(names, DefaultManifestNames...)
	}
	return &Loader{ManifestNames: names, FileSystem: fileSystem}
}

// Locate returns the path of the first manifest present in the directory.
func (loader *Loader) Locate(directory string) (string, bool) {
	for _, manifestName := range loader.ManifestNames {
		candidatePath := filepath.Join(directory, manifestName)
		fileInfo, statError := loader.FileSystem.Stat(candidatePath)
		if statError != nil || fileInfo.IsDir() {
			continue
		}
		return candidatePath, true
	}
	return "", false
}

// Exists reports whether the directory contains a manifest.
func (loader *Loader) Exists(directory string) bool {
	_, found := loader.Locate(directory)
	return found
}

// Load parses the manifest found in the directory.
func (loader *Loader) Load(directory string) (Manifest, error) {
	manifestPath, found := loader.Locate(directory)
	if !found {
		return Manifest{}, fmt.Errorf(manifestNotFoundErrorTemplateConstant, ErrManifestNotFound, directory)
	}

	content, readError := loader.FileSystem.ReadFile(manifestPath)
	if readError != nil {
		return Manifest{}, fmt.Errorf(readManifestErrorTemplateConstant, manifestPath, readError)
	}

	return Parse(manifestPath, content)
}

// Parse decodes manifest content, choosing the format from the path extension.
func Parse(manifestPath string, content []byte) (Manifest, error) {
	var document manifestDocument
	var documentError error
	switch strings.ToLower(filepath.Ext(manifestPath)) {
	case jsonExtensionConstant, yamlExtensionConstant, ymlExtensionConstant:
		document, documentError = decodeYAMLDocument(manifestPath, content)
	case tomlExtensionConstant:
		document, documentError = decodeTOMLDocument(manifestPath, content)
	default:
		return Manifest{}, fmt.Errorf(unsupportedFormatErrorTemplateConstant, ErrUnsupportedManifestFormat, manifestPath)
	}
	if documentError != nil {
		return Manifest{}, documentError
	}

	return buildManifest(manifestPath, document)
}

func decodeYAMLDocument(manifestPath string, content []byte) (manifestDocument, error) {
	document := manifestDocument{fields: map[string]any{}}

	var rootNode yaml.Node
	if unmarshalError := yaml.Unmarshal(content, &rootNode); unmarshalError != nil {
		return manifestDocument{}, ParseError{Path: manifestPath, Cause: unmarshalError}
	}
	if rootNode.Kind == 0 {
		return document, nil
	}

	mappingNode := &rootNode
	if rootNode.Kind == yaml.DocumentNode && len(rootNode.Content) > 0 {
		mappingNode = rootNode.Content[0]
	}
	if mappingNode.Kind != yaml.MappingNode {
		return manifestDocument{}, ValidationError{Path: manifestPath, Message: documentNotMappingMessageConstant}
	}

	for pairIndex := 0; pairIndex+1 < len(mappingNode.Content); pairIndex += 2 {
		keyNode := mappingNode.Content[pairIndex]
		valueNode := mappingNode.Content[pairIndex+1]
		if keyNode.Value != subpackagesKeyConstant {
			var value any
			if decodeError := valueNode.Decode(&value); decodeError != nil {
				return manifestDocument{}, ParseError{Path: manifestPath, Cause: decodeError}
			}
			document.fields[keyNode.Value] = value
			continue
		}

		if valueNode.Kind == yaml.ScalarNode && valueNode.Tag == "!!null" {
			continue
		}
		if valueNode.Kind != yaml.MappingNode {
			return manifestDocument{}, ValidationError{Path: manifestPath, Message: subpackagesNotMappingMessageConstant}
		}
		for entryIndex := 0; entryIndex+1 < len(valueNode.Content); entryIndex += 2 {
			var declaration any
			if decodeError := valueNode.Content[entryIndex+1].Decode(&declaration); decodeError != nil {
				return manifestDocument{}, ParseError{Path: manifestPath, Cause: decodeError}
			}
			document.subpackages = append(document.subpackages, subpackageEntry{name: valueNode.Content[entryIndex].Value, declaration: declaration})
		}
	}

	return document, nil
}

func decodeTOMLDocument(manifestPath string, content []byte) (manifestDocument, error) {
	var fields map[string]any
	metadata, decodeError := toml.Decode(string(content), &fields)
	if decodeError != nil {
		return manifestDocument{}, ParseError{Path: manifestPath, Cause: decodeError}
	}
	if fields == nil {
		fields = map[string]any{}
	}

	document := manifestDocument{fields: fields}
	rawSubpackages, declared := fields[subpackagesKeyConstant]
	delete(fields, subpackagesKeyConstant)
	if !declared {
		return document, nil
	}
	subpackageTable, isTable := rawSubpackages.(map[string]any)
	if !isTable {
		return manifestDocument{}, ValidationError{Path: manifestPath, Message: subpackagesNotMappingMessageConstant}
	}

	seenNames := make(map[string]struct{})
	for _, key := range metadata.Keys() {
		if len(key) != 2 || key[0] != subpackagesKeyConstant {
			continue
		}
		if _, seen := seenNames[key[1]]; seen {
			continue
		}
		seenNames[key[1]] = struct{}{}
		document.subpackages = append(document.subpackages, subpackageEntry{name: key[1], declaration: subpackageTable[key[1]]})
	}

	return document, nil
}

func buildManifest(manifestPath string, document manifestDocument) (Manifest, error) {
	project, projectError := decodeProject(manifestPath, document.fields)
	if projectError != nil {
		return Manifest{}, projectError
	}
	if len(project.Name) == 0 {
		project.Name = filepath.Base(filepath.Dir(manifestPath))
	}

	specs := make([]SubpackageSpec, 0, len(document.subpackages))
	seenNames := make(map[string]struct{}, len(document.subpackages))
	for _, entry := range document.subpackages {
		if len(strings.TrimSpace(entry.name)) == 0 {
			return Manifest{}, ValidationError{Path: manifestPath, Message: emptySubpackageNameMessageConstant}
		}
		if _, seen := seenNames[entry.name]; seen {
			return Manifest{}, ValidationError{Path: manifestPath, Subpackage: entry.name, Message: duplicateSubpackageMessageConstant}
		}
		seenNames[entry.name] = struct{}{}

		spec, specError := decodeSubpackage(manifestPath, entry)
		if specError != nil {
			return Manifest{}, specError
		}
		specs = append(specs, spec)
	}

	return Manifest{
		Path:        manifestPath,
		Directory:   filepath.Dir(manifestPath),
		Project:     project,
		Subpackages: specs,
	}, nil
}

func decodeProject(manifestPath string, fields map[string]any) (ProjectContext, error) {
	var decoded projectFields
	decoder, decoderError := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          mapstructureTagNameConstant,
		WeaklyTypedInput: true,
		Result:           &decoded,
	})
	if decoderError != nil {
		return ProjectContext{}, decoderError
	}
	if decodeError := decoder.Decode(fields); decodeError != nil {
		return ProjectContext{}, ParseError{Path: manifestPath, Cause: decodeError}
	}

	project := ProjectContext{
		Name:        strings.TrimSpace(decoded.Name),
		Description: strings.TrimSpace(decoded.Description),
	}
	if trimmedVersion := strings.TrimSpace(decoded.Version); len(trimmedVersion) > 0 {
		version, versionError := semver.NewVersion(trimmedVersion)
		if versionError != nil {
			return ProjectContext{}, ValidationError{Path: manifestPath, Message: fmt.Sprintf(invalidVersionTemplateConstant, trimmedVersion)}
		}
		project.Version = version
	}
	if trimmedMinimum := strings.TrimSpace(decoded.MinimumVersion); len(trimmedMinimum) > 0 {
		minimumVersion, versionError := semver.NewVersion(trimmedMinimum)
		if versionError != nil {
			return ProjectContext{}, ValidationError{Path: manifestPath, Message: fmt.Sprintf(invalidMinimumVersionTemplateConstant, trimmedMinimum)}
		}
		project.MinimumToolVersion = minimumVersion
	}
	return project, nil
}

func decodeSubpackage(manifestPath string, entry subpackageEntry) (SubpackageSpec, error) {
	if _, isMapping := entry.declaration.(map[string]any); !isMapping {
		return SubpackageSpec{}, ValidationError{Path: manifestPath, Subpackage: entry.name, Message: subpackageNotMappingMessageConstant}
	}

	var decoded subpackageFields
	decoder, decoderError := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:    mapstructureTagNameConstant,
		DecodeHook: singleStringToSliceHook,
		Result:     &decoded,
	})
	if decoderError != nil {
		return SubpackageSpec{}, decoderError
	}
	if decodeError := decoder.Decode(entry.declaration); decodeError != nil {
		return SubpackageSpec{}, ValidationError{Path: manifestPath, Subpackage: entry.name, Message: fmt.Sprintf(decodeSubpackageTemplateConstant, decodeError)}
	}

	if len(decoded.Path) == 0 {
		return SubpackageSpec{}, ValidationError{Path: manifestPath, Subpackage: entry.name, Message: missingPathMessageConstant}
	}
	candidatePaths := make([]string, 0, len(decoded.Path))
	for _, candidatePath := range decoded.Path {
		trimmedPath := strings.TrimSpace(candidatePath)
		if len(trimmedPath) == 0 {
			return SubpackageSpec{}, ValidationError{Path: manifestPath, Subpackage: entry.name, Message: emptyPathMessageConstant}
		}
		candidatePaths = append(candidatePaths, trimmedPath)
	}

	if len(strings.TrimSpace(decoded.URL)) == 0 {
		return SubpackageSpec{}, ValidationError{Path: manifestPath, Subpackage: entry.name, Message: missingURLMessageConstant}
	}

	var protocol gitrepo.TransportProtocol
	if trimmedProtocol := strings.TrimSpace(decoded.Protocol); len(trimmedProtocol) > 0 {
		parsedProtocol, parsed := gitrepo.ParseTransportProtocol(trimmedProtocol)
		if !parsed {
			return SubpackageSpec{}, ValidationError{Path: manifestPath, Subpackage: entry.name, Message: fmt.Sprintf(invalidProtocolTemplateConstant, trimmedProtocol)}
		}
		protocol = parsedProtocol
	}

	branch := strings.TrimSpace(decoded.Branch)
	if len(branch) == 0 {
		branch = DefaultBranchName
	}

	return SubpackageSpec{
		Name:           entry.name,
		CandidatePaths: candidatePaths,
		Host:           ParseHostSpec(decoded.URL),
		Branch:         branch,
		Protocol:       protocol,
	}, nil
}

func singleStringToSliceHook(sourceType reflect.Type, targetType reflect.Type, data any) (any, error) {
	if sourceType.Kind() != reflect.String || targetType.Kind() != reflect.Slice {
		return data, nil
	}
	if targetType.Elem().Kind() != reflect.String {
		return data, nil
	}
	return []string{reflect.ValueOf(data).String()}, nil
}

// IsNotFound reports whether the error indicates a missing manifest.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrManifestNotFound)
}
