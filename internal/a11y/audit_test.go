package a11y

import (
	"fmt"
	"testing"
)

func TestAuditCleanDocument(t *testing.T) {
	nodes := []Node{
		{ID: "1", Role: "RootWebArea", Name: "Survey"},
		{ID: "2", Role: "button", Name: "Run"},
		{ID: "3", Role: "image", Name: "Aerial tile"},
		{ID: "4", Role: "generic", Ignored: true},
	}
	report := Audit(nodes, Document{Title: "Survey", Lang: "en"})

	if len(report.Violations) != 0 {
		t.Fatalf("violations = %+v; want none", report.Violations)
	}
	if report.NodesScanned != 3 {
		t.Fatalf("NodesScanned = %d, want 3", report.NodesScanned)
	}
}

func TestAuditFindsViolations(t *testing.T) {
	nodes := []Node{
		{ID: "1", Role: "button", Name: ""},
		{ID: "2", Role: "img", Name: " "},
		{ID: "3", Role: "link", Name: ""},
		{ID: "4", Role: "textbox", Name: "", BackendID: 44},
		{ID: "5", Role: "button", Name: "", Ignored: true},
		{ID: "6", Role: "link", Name: "Home"},
	}
	report := Audit(nodes, Document{})

	var ids []string
	for _, v := range report.Violations {
		ids = append(ids, v.ID)
	}
	want := []string{"button-name", "document-title", "html-has-lang", "image-alt", "label", "link-name"}
	if fmt.Sprint(ids) != fmt.Sprint(want) {
		t.Fatalf("violation ids = %v; want %v", ids, want)
	}
	for _, v := range report.Violations {
		if v.ID == "label" {
			if v.NodeCount != 1 || v.Nodes[0].BackendID != 44 || v.Impact != ImpactCritical {
				t.Fatalf("label violation = %+v", v)
			}
		}
	}
}

func TestAuditSkipsDocumentRulesWhenUnavailable(t *testing.T) {
	nodes := []Node{{ID: "1", Role: "button", Name: ""}}
	report := Audit(nodes, Document{Unavailable: true})

	var ids []string
	for _, v := range report.Violations {
		ids = append(ids, v.ID)
	}
	if fmt.Sprint(ids) != "[button-name]" {
		t.Fatalf("violation ids = %v; want [button-name]", ids)
	}
}

func TestAuditCapsListedNodes(t *testing.T) {
	var nodes []Node
	for i := 0; i < 40; i++ {
		nodes = append(nodes, Node{ID: fmt.Sprint(i), Role: "link"})
	}
	report := Audit(nodes, Document{Title: "t", Lang: "en"})

	if len(report.Violations) != 1 {
		t.Fatalf("violations = %+v", report.Violations)
	}
	v := report.Violations[0]
	if v.NodeCount != 40 || len(v.Nodes) != maxNodesPerViolation {
		t.Fatalf("NodeCount = %d, listed = %d; want 40 and %d", v.NodeCount, len(v.Nodes), maxNodesPerViolation)
	}
}
