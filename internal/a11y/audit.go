// Package a11y runs a small set of accessibility checks over the browser's
// computed accessibility tree.
package a11y

import (
	"sort"
	"strings"
)

const maxNodesPerViolation = 25

// Impact levels, highest first.
const (
	ImpactCritical = "critical"
	ImpactSerious  = "serious"
	ImpactModerate = "moderate"
)

// Node is one entry of the accessibility tree.
type Node struct {
	ID        string
	Role      string
	Name      string
	Ignored   bool
	BackendID int64
}

// Document carries the document-level facts the tree does not expose.
// Unavailable marks facts that could not be read from the page; the
// document-title and html-has-lang rules are not evaluated against them.
type Document struct {
	Title       string
	Lang        string
	Unavailable bool
}

// NodeRef identifies an offending node in a violation.
type NodeRef struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	BackendID int64  `json:"backendNodeId,omitempty"`
}

// Violation groups every node that fails one rule.
type Violation struct {
	ID          string    `json:"id"`
	Impact      string    `json:"impact"`
	Description string    `json:"description"`
	Help        string    `json:"help"`
	NodeCount   int       `json:"nodeCount"`
	Nodes       []NodeRef `json:"nodes,omitempty"`
}

// Report is the audit outcome attached to a probe report.
type Report struct {
	Violations   []Violation `json:"violations"`
	NodesScanned int         `json:"nodesScanned"`
}

type rule struct {
	id          string
	impact      string
	description string
	help        string
	roles       map[string]bool
}

var nodeRules = []rule{
	{
		id:          "button-name",
		impact:      ImpactCritical,
		description: "Buttons must have discernible text",
		help:        "Give the button visible text, aria-label or aria-labelledby",
		roles:       roleSet("button"),
	},
	{
		id:          "image-alt",
		impact:      ImpactCritical,
		description: "Images must have alternate text",
		help:        "Add an alt attribute, or role=presentation for decorative images",
		roles:       roleSet("img", "image"),
	},
	{
		id:          "label",
		impact:      ImpactCritical,
		description: "Form elements must have labels",
		help:        "Associate a <label>, aria-label or aria-labelledby with the control",
		roles:       roleSet("textbox", "searchbox", "combobox", "checkbox", "radio", "slider", "spinbutton", "listbox", "switch"),
	},
	{
		id:          "link-name",
		impact:      ImpactSerious,
		description: "Links must have discernible text",
		help:        "Give the link text content or an aria-label",
		roles:       roleSet("link"),
	},
}

func roleSet(roles ...string) map[string]bool {
	m := make(map[string]bool, len(roles))
	for _, r := range roles {
		m[r] = true
	}
	return m
}

// Audit evaluates the rules against nodes and doc. Violations are ordered by rule id.
func Audit(nodes []Node, doc Document) Report {
	report := Report{Violations: []Violation{}}

	if !doc.Unavailable && strings.TrimSpace(doc.Title) == "" {
		report.Violations = append(report.Violations, Violation{
			ID:          "document-title",
			Impact:      ImpactSerious,
			Description: "Documents must have a <title> element",
			Help:        "Add a non-empty <title> to the document head",
			NodeCount:   1,
		})
	}
	if !doc.Unavailable && strings.TrimSpace(doc.Lang) == "" {
		report.Violations = append(report.Violations, Violation{
			ID:          "html-has-lang",
			Impact:      ImpactSerious,
			Description: "The <html> element must have a lang attribute",
			Help:        "Set lang on the root element, e.g. <html lang=\"en\">",
			NodeCount:   1,
		})
	}

	byRule := make(map[string]*Violation)
	for _, n := range nodes {
		if n.Ignored {
			continue
		}
		report.NodesScanned++
		if strings.TrimSpace(n.Name) != "" {
			continue
		}
		role := strings.ToLower(n.Role)
		for _, r := range nodeRules {
			if !r.roles[role] {
				continue
			}
			v, ok := byRule[r.id]
			if !ok {
				v = &Violation{ID: r.id, Impact: r.impact, Description: r.description, Help: r.help}
				byRule[r.id] = v
			}
			v.NodeCount++
			if len(v.Nodes) < maxNodesPerViolation {
				v.Nodes = append(v.Nodes, NodeRef{ID: n.ID, Role: role, BackendID: n.BackendID})
			}
		}
	}
	for _, v := range byRule {
		report.Violations = append(report.Violations, *v)
	}

	sort.Slice(report.Violations, func(i, j int) bool {
		return report.Violations[i].ID < report.Violations[j].ID
	})
	return report
}
