package subpackages

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/tree"
	"gopkg.in/yaml.v3"

	"github.com/temirov/subpkg/internal/resolution"
)

// OutputFormat selects how a resolved tree is written.
type OutputFormat string

// Supported output formats.
const (
	OutputFormatTree OutputFormat = OutputFormat("tree")
	OutputFormatJSON OutputFormat = OutputFormat("json")
	OutputFormatYAML OutputFormat = OutputFormat("yaml")
)

const (
	iconFetchedConstant           = "✓"
	iconPresentConstant           = "●"
	iconReferenceConstant         = "↺"
	iconPendingConstant           = "○"
	iconFailedConstant            = "✗"
	iconWarningConstant           = "!"
	arrowConstant                 = "=>"
	referenceArrowConstant        = "->"
	labelSeparatorConstant        = " "
	branchTemplateConstant        = "(%s)"
	failureDetailTemplateConstant = "%s: %s"
	manifestFailureLabelConstant  = "manifest"
	ambiguousTemplateConstant     = "also present: %s"
	fallbackLabelConstant         = "no mirror answered"
	listSeparatorConstant         = ", "
	summaryTemplateConstant       = "%d subpackages: %s\n"
	summaryCountTemplateConstant  = "%d %s"
	summaryEmptyConstant          = "none"
	updateLineTemplateConstant    = "%s %s %s %s\n"
	updateFailureTemplateConstant = "%s %s %s\n"
	updateEmptyMessageConstant    = "no subpackages to update\n"
	jsonIndentConstant            = "  "
	yamlIndentConstant            = 2
	unsupportedFormatTemplate     = "unsupported output format %q"
	renderErrorTemplateConstant   = "unable to render tree: %w"
	writerMissingMessageConstant  = "renderer requires an output writer"
)

// ErrRendererWriterNotConfigured indicates a renderer without an output writer.
var ErrRendererWriterNotConfigured = errors.New(writerMissingMessageConstant)

var (
	colorGreen  = lipgloss.Color("35")
	colorYellow = lipgloss.Color("220")
	colorRed    = lipgloss.Color("167")
	colorBlue   = lipgloss.Color("75")
	colorGray   = lipgloss.Color("245")
	colorDim    = lipgloss.Color("240")

	styleName      = lipgloss.NewStyle().Bold(true)
	styleFetched   = lipgloss.NewStyle().Foreground(colorGreen)
	stylePresent   = lipgloss.NewStyle().Foreground(colorGray)
	styleReference = lipgloss.NewStyle().Foreground(colorBlue)
	stylePending   = lipgloss.NewStyle().Foreground(colorYellow)
	styleFailed    = lipgloss.NewStyle().Foreground(colorRed)
	styleWarning   = lipgloss.NewStyle().Foreground(colorYellow)
	styleDetail    = lipgloss.NewStyle().Foreground(colorDim)
)

var statusOrder = []resolution.Status{
	resolution.StatusFetched,
	resolution.StatusAlreadyPresent,
	resolution.StatusAlternativePath,
	resolution.StatusPendingFetch,
	resolution.StatusFetchFailed,
}

// ParseOutputFormat normalizes a format name.
func ParseOutputFormat(value string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(value))) {
	case OutputFormatTree, "":
		return OutputFormatTree, nil
	case OutputFormatJSON:
		return OutputFormatJSON, nil
	case OutputFormatYAML:
		return OutputFormatYAML, nil
	default:
		return "", fmt.Errorf(unsupportedFormatTemplate, value)
	}
}

// Renderer writes resolved trees.
type Renderer struct {
	Writer io.Writer
}

// Render writes the tree in the requested format.
func (renderer Renderer) Render(root *resolution.Node, format OutputFormat) error {
	if renderer.Writer == nil {
		return ErrRendererWriterNotConfigured
	}

	var renderError error
	switch format {
	case OutputFormatJSON:
		encoder := json.NewEncoder(renderer.Writer)
		encoder.SetIndent("", jsonIndentConstant)
		renderError = encoder.Encode(root)
	case OutputFormatYAML:
		encoder := yaml.NewEncoder(renderer.Writer)
		encoder.SetIndent(yamlIndentConstant)
		renderError = encoder.Encode(root)
		if renderError == nil {
			renderError = encoder.Close()
		}
	case OutputFormatTree, "":
		renderError = renderer.renderTree(root)
	default:
		renderError = fmt.Errorf(unsupportedFormatTemplate, string(format))
	}

	if renderError == nil {
		renderError = renderer.flush()
	}
	if renderError != nil {
		return fmt.Errorf(renderErrorTemplateConstant, renderError)
	}
	return nil
}

// RenderUpdates writes one line per pulled subpackage.
func (renderer Renderer) RenderUpdates(results []UpdateResult) error {
	if renderer.Writer == nil {
		return ErrRendererWriterNotConfigured
	}
	if len(results) == 0 {
		if _, writeError := fmt.Fprint(renderer.Writer, updateEmptyMessageConstant); writeError != nil {
			return writeError
		}
		return renderer.flush()
	}
	for _, result := range results {
		var writeError error
		if result.Err != nil {
			_, writeError = fmt.Fprintf(renderer.Writer, updateFailureTemplateConstant, styleFailed.Render(iconFailedConstant), styleName.Render(result.Name), styleFailed.Render(result.Err.Error()))
		} else {
			_, writeError = fmt.Fprintf(renderer.Writer, updateLineTemplateConstant, styleFetched.Render(iconFetchedConstant), styleName.Render(result.Name), styleDetail.Render(result.Remote), result.Path)
		}
		if writeError != nil {
			return writeError
		}
	}
	return renderer.flush()
}

func (renderer Renderer) flush() error {
	if bufferedWriter, buffered := renderer.Writer.(interface{ Flush() error }); buffered {
		return bufferedWriter.Flush()
	}
	return nil
}

func (renderer Renderer) renderTree(root *resolution.Node) error {
	if root == nil {
		return nil
	}
	rendered := buildTree(root, true).String()
	if _, writeError := fmt.Fprintln(renderer.Writer, rendered); writeError != nil {
		return writeError
	}
	_, writeError := fmt.Fprint(renderer.Writer, summaryLine(resolution.Summarize(root)))
	return writeError
}

func buildTree(node *resolution.Node, isRoot bool) *tree.Tree {
	branch := tree.Root(nodeLabel(node, isRoot)).Enumerator(tree.RoundedEnumerator).EnumeratorStyle(styleDetail)
	for _, child := range node.Children {
		if len(child.Children) == 0 {
			branch.Child(nodeLabel(child, false))
			continue
		}
		branch.Child(buildTree(child, false))
	}
	return branch
}

func nodeLabel(node *resolution.Node, isRoot bool) string {
	icon, iconStyle := statusIcon(node.Status)
	parts := []string{iconStyle.Render(icon), styleName.Render(node.Name)}

	if isRoot {
		parts = append(parts, styleDetail.Render(node.ChosenPath))
		return strings.Join(appendManifestFailure(parts, node), labelSeparatorConstant)
	}

	url := node.ResolvedURL
	if len(url) == 0 {
		url = node.DeclaredURL
	}
	parts = append(parts, url)
	if len(node.Branch) > 0 {
		parts = append(parts, styleDetail.Render(fmt.Sprintf(branchTemplateConstant, node.Branch)))
	}
	parts = append(parts, arrowConstant, node.ChosenPath)

	if node.Status == resolution.StatusAlternativePath && len(node.ReferencePath) > 0 {
		parts = append(parts, styleReference.Render(referenceArrowConstant+labelSeparatorConstant+node.ReferencePath))
	}
	if node.HostFallback {
		parts = append(parts, styleWarning.Render(iconWarningConstant+labelSeparatorConstant+fallbackLabelConstant))
	}
	if len(node.AmbiguousPaths) > 0 {
		parts = append(parts, styleWarning.Render(iconWarningConstant+labelSeparatorConstant+fmt.Sprintf(ambiguousTemplateConstant, strings.Join(node.AmbiguousPaths, listSeparatorConstant))))
	}
	if len(node.Failure) > 0 {
		parts = append(parts, styleFailed.Render(fmt.Sprintf(failureDetailTemplateConstant, node.FailureKind, node.Failure)))
	}
	return strings.Join(appendManifestFailure(parts, node), labelSeparatorConstant)
}

func appendManifestFailure(parts []string, node *resolution.Node) []string {
	if len(node.ManifestFailure) == 0 {
		return parts
	}
	return append(parts, styleFailed.Render(fmt.Sprintf(failureDetailTemplateConstant, manifestFailureLabelConstant, node.ManifestFailure)))
}

func statusIcon(status resolution.Status) (string, lipgloss.Style) {
	switch status {
	case resolution.StatusFetched:
		return iconFetchedConstant, styleFetched
	case resolution.StatusAlternativePath:
		return iconReferenceConstant, styleReference
	case resolution.StatusPendingFetch:
		return iconPendingConstant, stylePending
	case resolution.StatusFetchFailed:
		return iconFailedConstant, styleFailed
	default:
		return iconPresentConstant, stylePresent
	}
}

func summaryLine(summary resolution.Summary) string {
	counts := make([]string, 0, len(statusOrder))
	for _, status := range statusOrder {
		if count := summary.Counts[status]; count > 0 {
			counts = append(counts, fmt.Sprintf(summaryCountTemplateConstant, count, status))
		}
	}
	if len(counts) == 0 {
		counts = append(counts, summaryEmptyConstant)
	}
	return fmt.Sprintf(summaryTemplateConstant, summary.Total, strings.Join(counts, listSeparatorConstant))
}
