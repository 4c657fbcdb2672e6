// Package dom holds the page-side scripts a probe evaluates and the shapes
// their results decode into.
package dom

import (
	"encoding/json"
	"fmt"
)

// StyleProperties is the computed style subset recorded for each element.
var StyleProperties = []string{
	"display",
	"visibility",
	"position",
	"z-index",
	"opacity",
	"color",
	"background-color",
	"font-size",
	"overflow",
}

// Target names a selector to snapshot.
type Target struct {
	Name     string `json:"name"`
	Selector string `json:"selector"`
}

// Rect is an element's bounding client rectangle in CSS pixels.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ElementSnapshot is the geometry and metadata of the first element matching a selector.
// Found is false when nothing matched; the remaining fields are then empty.
type ElementSnapshot struct {
	Name       string            `json:"name"`
	Selector   string            `json:"selector"`
	Found      bool              `json:"found"`
	Error      string            `json:"error,omitempty"`
	Tag        string            `json:"tag,omitempty"`
	ID         string            `json:"id,omitempty"`
	Classes    []string          `json:"classes,omitempty"`
	Text       string            `json:"text,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Style      map[string]string `json:"style,omitempty"`
	Rect       *Rect             `json:"rect,omitempty"`
	Visible    bool              `json:"visible"`
}

// DocumentInfo describes the loaded document.
type DocumentInfo struct {
	Title      string `json:"title"`
	Lang       string `json:"lang"`
	URL        string `json:"url"`
	ReadyState string `json:"readyState"`
}

const snapshotJS = `(() => {
const targets = %s;
const keys = %s;
return JSON.stringify(targets.map(t => {
  let el = null;
  try { el = document.querySelector(t.selector); }
  catch (e) { return {name: t.name, selector: t.selector, found: false, error: String(e && e.message || e)}; }
  if (!el) return {name: t.name, selector: t.selector, found: false, visible: false};
  const cs = window.getComputedStyle(el);
  const style = {};
  for (const k of keys) style[k] = cs.getPropertyValue(k);
  const attrs = {};
  for (const a of Array.from(el.attributes).slice(0, 30)) {
    if (a.name === "class" || a.name === "style") continue;
    attrs[a.name] = String(a.value).slice(0, 200);
  }
  const r = el.getBoundingClientRect();
  return {
    name: t.name,
    selector: t.selector,
    found: true,
    tag: el.tagName.toLowerCase(),
    id: el.id || "",
    classes: Array.from(el.classList),
    text: String(el.innerText || el.textContent || "").trim().slice(0, 200),
    attributes: attrs,
    style: style,
    rect: {x: r.x, y: r.y, width: r.width, height: r.height},
    visible: r.width > 0 && r.height > 0 && cs.visibility !== "hidden" && cs.display !== "none"
  };
}));
})()`

// SnapshotScript returns a JS expression that evaluates to a JSON string of
// []ElementSnapshot, one per target in order.
func SnapshotScript(targets []Target) string {
	if targets == nil {
		targets = []Target{}
	}
	t, _ := json.Marshal(targets)
	k, _ := json.Marshal(StyleProperties)
	return fmt.Sprintf(snapshotJS, t, k)
}

// DecodeSnapshots parses the result of SnapshotScript.
func DecodeSnapshots(raw string) ([]ElementSnapshot, error) {
	var out []ElementSnapshot
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decode element snapshots: %w", err)
	}
	return out, nil
}

// DocumentInfoScript evaluates to a JSON string of DocumentInfo.
const DocumentInfoScript = `JSON.stringify({
title: document.title || "",
lang: (document.documentElement && document.documentElement.getAttribute("lang")) || "",
url: String(location.href),
readyState: document.readyState
})`

// DecodeDocumentInfo parses the result of DocumentInfoScript.
func DecodeDocumentInfo(raw string) (DocumentInfo, error) {
	var info DocumentInfo
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		return DocumentInfo{}, fmt.Errorf("decode document info: %w", err)
	}
	return info, nil
}

// ExistsScript evaluates to true when selector matches an element.
func ExistsScript(selector string) string {
	s, _ := json.Marshal(selector)
	return fmt.Sprintf(`(() => { try { return document.querySelector(%s) !== null; } catch (e) { return false; } })()`, s)
}
