package resolution

// Status classifies how a subpackage was resolved.
type Status string

// Supported statuses.
const (
	StatusFetched         Status = Status("fetched")
	StatusAlreadyPresent  Status = Status("already-present")
	StatusAlternativePath Status = Status("alternative-path")
	StatusPendingFetch    Status = Status("pending-fetch")
	StatusFetchFailed     Status = Status("fetch-failed")
)

// Node is the resolution outcome of one subpackage declaration within one parent.
type Node struct {
	Name            string   `json:"name" yaml:"name"`
	Status          Status   `json:"status" yaml:"status"`
	ChosenPath      string   `json:"path" yaml:"path"`
	Branch          string   `json:"branch,omitempty" yaml:"branch,omitempty"`
	DeclaredURL     string   `json:"declared_url,omitempty" yaml:"declared_url,omitempty"`
	ResolvedURL     string   `json:"url,omitempty" yaml:"url,omitempty"`
	ResolvedHost    string   `json:"host,omitempty" yaml:"host,omitempty"`
	ResolvedMirror  string   `json:"mirror,omitempty" yaml:"mirror,omitempty"`
	ReferencePath   string   `json:"reference,omitempty" yaml:"reference,omitempty"`
	HostFallback    bool     `json:"host_fallback,omitempty" yaml:"host_fallback,omitempty"`
	AmbiguousPaths  []string `json:"ambiguous_paths,omitempty" yaml:"ambiguous_paths,omitempty"`
	Failure         string   `json:"failure,omitempty" yaml:"failure,omitempty"`
	FailureKind     string   `json:"failure_kind,omitempty" yaml:"failure_kind,omitempty"`
	ManifestFailure string   `json:"manifest_error,omitempty" yaml:"manifest_error,omitempty"`
	Children        []*Node  `json:"children,omitempty" yaml:"children,omitempty"`
}

// Failed reports whether the node or its manifest could not be resolved.
func (node *Node) Failed() bool {
	return node.Status == StatusFetchFailed || len(node.ManifestFailure) > 0
}

// Walk visits the node and its descendants depth-first in child order.
func Walk(node *Node, visitor func(node *Node, depth int)) {
	walk(node, 0, visitor)
}

func walk(node *Node, depth int, visitor func(node *Node, depth int)) {
	if node == nil {
		return
	}
	visitor(node, depth)
	for _, child := range node.Children {
		walk(child, depth+1, visitor)
	}
}

// Summary counts descendants of the root by status.
type Summary struct {
	Counts           map[Status]int
	Total            int
	ManifestFailures int
}

// Failures returns the number of nodes whose fetch or manifest failed.
func (summary Summary) Failures() int {
	return summary.Counts[StatusFetchFailed] + summary.ManifestFailures
}

// Summarize counts every node below the root.
func Summarize(root *Node) Summary {
	summary := Summary{Counts: make(map[Status]int)}
	Walk(root, func(node *Node, depth int) {
		if len(node.ManifestFailure) > 0 {
			summary.ManifestFailures++
		}
		if depth == 0 {
			return
		}
		summary.Counts[node.Status]++
		summary.Total++
	})
	return summary
}
