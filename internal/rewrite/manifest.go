package rewrite

import (
	"errors"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/tidwall/gjson"

	"github.com/GriffinCanCode/routeproxy/internal/route"
	"github.com/GriffinCanCode/routeproxy/internal/tree"
)

// manifestFields maps member paths, with * for any array index, to the
// resource type they load.
var manifestFields = map[string]route.ResourceType{
	"start_url":               route.HTML,
	"scope":                   route.HTML,
	"shortcuts.*.url":         route.HTML,
	"icons.*.src":             route.Binary,
	"screenshots.*.src":       route.Binary,
	"shortcuts.*.icons.*.src": route.Binary,
	"serviceworker.src":       route.JS,
}

type jsonNode struct {
	path     string
	value    gjson.Result
	span     tree.Range
	children []*jsonNode
}

func (n *jsonNode) Kind() string {
	switch {
	case n.value.IsObject():
		return "object"
	case n.value.IsArray():
		return "array"
	}
	return strings.ToLower(n.value.Type.String())
}

func (n *jsonNode) Range() (tree.Range, bool) { return n.span, true }

func (n *jsonNode) Slots() []tree.Slot {
	if len(n.children) == 0 {
		return nil
	}
	kids := make([]tree.Node, len(n.children))
	for i, c := range n.children {
		kids[i] = c
	}
	return []tree.Slot{tree.Seq("members", kids...)}
}

// buildJSON mirrors res as a tree. gjson hands out raw slices but not their
// positions, so each child is located by searching forward from the end of
// the previous one; only separators can lie between them.
func buildJSON(res gjson.Result, start int, path string) *jsonNode {
	n := &jsonNode{
		path:  path,
		value: res,
		span:  tree.Range{Start: start, End: start + len(res.Raw)},
	}
	if !res.IsObject() && !res.IsArray() {
		return n
	}

	raw := res.Raw
	cursor := 0
	isObject := res.IsObject()
	res.ForEach(func(key, value gjson.Result) bool {
		childPath := "*"
		if isObject {
			k := strings.Index(raw[cursor:], key.Raw)
			if k < 0 {
				return false
			}
			cursor += k + len(key.Raw)
			childPath = key.String()
		}
		v := strings.Index(raw[cursor:], value.Raw)
		if v < 0 {
			return false
		}
		at := cursor + v
		cursor = at + len(value.Raw)
		if path != "" {
			childPath = path + "." + childPath
		}
		n.children = append(n.children, buildJSON(value, start+at, childPath))
		return true
	})
	return n
}

func (s *session) manifest(text string) (string, error) {
	if !gjson.Valid(text) {
		var parsed any
		err := sonic.UnmarshalString(text, &parsed)
		if err == nil {
			err = errors.New("invalid JSON")
		}
		return "", &ParseError{Type: route.Manifest, Err: err}
	}

	res := gjson.Parse(text)
	root := buildJSON(res, strings.Index(text, res.Raw), "")

	return s.walk(root, text, func(ctx *tree.Context) error {
		n, ok := ctx.Node().(*jsonNode)
		if !ok || n.value.Type != gjson.String {
			return nil
		}
		t, ok := manifestFields[n.path]
		if !ok {
			return nil
		}
		routed, changed, err := s.routeRef(n.value.String(), t, s.page)
		if err != nil || !changed {
			return err
		}
		quoted, err := quote(routed)
		if err != nil {
			return err
		}
		return s.replace(ctx, quoted)
	})
}
