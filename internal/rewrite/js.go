package rewrite

import (
	"reflect"
	"strings"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/parser"

	"github.com/GriffinCanCode/routeproxy/internal/route"
	"github.com/GriffinCanCode/routeproxy/internal/tree"
)

// Members whose access is routed through the hook's p() lookup.
var hookedMembers = map[string]bool{
	"location": true,
	"top":      true,
	"parent":   true,
}

// Slot keys under which an identifier names something rather than reads a
// binding.
var declaringKeys = map[string]bool{
	"Identifier": true,
	"Name":       true,
	"Label":      true,
	"Key":        true,
	"Target":     true,
	"Parameter":  true,
	"Meta":       true,
	"Property":   true,
}

// Fields that alias nodes already reachable through the statement list.
var aliasFields = map[string]bool{
	"DeclarationList": true,
}

var astNode = reflect.TypeOf((*ast.Node)(nil)).Elem()

// Event handler attributes are function bodies, so they may use return.
const (
	handlerPrefix = "(function(event){"
	handlerSuffix = "\n})"
)

// jsAdapter exposes a goja AST through tree.Node. It hands out exactly one
// wrapper per AST node so staged originals compare equal.
type jsAdapter struct {
	nodes map[ast.Node]*jsNode
}

type jsRoot struct {
	adapter *jsAdapter
	program *ast.Program
	size    int
}

func (r *jsRoot) Kind() string { return "Program" }

func (r *jsRoot) Range() (tree.Range, bool) { return tree.Range{Start: 0, End: r.size}, true }

func (r *jsRoot) Slots() []tree.Slot {
	body := make([]tree.Node, 0, len(r.program.Body))
	for _, stmt := range r.program.Body {
		if child, ok := r.adapter.child(reflect.ValueOf(&stmt).Elem()); ok {
			body = append(body, child)
		}
	}
	return []tree.Slot{tree.Seq("Body", body...)}
}

type jsNode struct {
	adapter *jsAdapter
	node    ast.Node
	kind    string
	slots   []tree.Slot
	built   bool
}

func (n *jsNode) Kind() string { return n.kind }

// Range converts goja's 1-based indices to byte offsets.
func (n *jsNode) Range() (tree.Range, bool) {
	start, end := int(n.node.Idx0())-1, int(n.node.Idx1())-1
	if start < 0 || end < start {
		return tree.Range{}, false
	}
	return tree.Range{Start: start, End: end}, true
}

func (n *jsNode) Slots() []tree.Slot {
	if !n.built {
		n.slots = n.adapter.slots(n.node)
		n.built = true
	}
	return n.slots
}

func (a *jsAdapter) wrap(n ast.Node) *jsNode {
	if w, ok := a.nodes[n]; ok {
		return w
	}
	kind := reflect.TypeOf(n).String()
	kind = kind[strings.LastIndexByte(kind, '.')+1:]
	w := &jsNode{adapter: a, node: n, kind: kind}
	a.nodes[n] = w
	return w
}

// child wraps v when it holds an AST node: a non-nil interface or pointer, or
// an addressable struct whose pointer is a node.
func (a *jsAdapter) child(v reflect.Value) (tree.Node, bool) {
	switch v.Kind() {
	case reflect.Interface, reflect.Pointer:
		if v.IsNil() {
			return nil, false
		}
		n, ok := v.Interface().(ast.Node)
		if !ok {
			return nil, false
		}
		if rv := reflect.ValueOf(n); rv.Kind() == reflect.Pointer && rv.IsNil() {
			return nil, false
		}
		return a.wrap(n), true
	case reflect.Struct:
		if v.CanAddr() && v.Addr().Type().Implements(astNode) {
			return a.wrap(v.Addr().Interface().(ast.Node)), true
		}
	}
	return nil, false
}

// slots lists every exported field of n that holds nodes, in declaration
// order, which for goja matches source order.
func (a *jsAdapter) slots(n ast.Node) []tree.Slot {
	v := reflect.ValueOf(n)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return nil
	}
	v = v.Elem()
	t := v.Type()

	var slots []tree.Slot
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() || aliasFields[field.Name] {
			continue
		}
		fv := v.Field(i)
		if fv.Kind() == reflect.Slice {
			var kids []tree.Node
			for j := 0; j < fv.Len(); j++ {
				if child, ok := a.child(fv.Index(j)); ok {
					kids = append(kids, child)
				}
			}
			if len(kids) > 0 {
				slots = append(slots, tree.Seq(field.Name, kids...))
			}
			continue
		}
		if child, ok := a.child(fv); ok {
			slots = append(slots, tree.One(field.Name, child))
		}
	}
	return slots
}

func astOf(ctx *tree.Context) ast.Node {
	if n, ok := ctx.Node().(*jsNode); ok {
		return n.node
	}
	return nil
}

func (s *session) js(src string, t route.ResourceType) (string, error) {
	var prefix, suffix string
	if t == route.Module {
		prefix, suffix = modulePrefix, moduleSuffix
	}
	masked := maskJS(src, t == route.Module)
	program, err := parser.ParseFile(nil, "", prefix+masked.text+suffix, 0, parser.WithDisableSourceMaps)
	if err != nil {
		return "", &ParseError{Type: t, Err: err}
	}

	text := prefix + src + suffix
	s.imports = make(map[int]bool, len(masked.imports))
	for offset := range masked.imports {
		s.imports[offset+len(prefix)] = true
	}
	for _, r := range masked.specifiers {
		if err := s.jsSpecifier(text, tree.Range{Start: r.Start + len(prefix), End: r.End + len(prefix)}); err != nil {
			return "", err
		}
	}

	a := &jsAdapter{nodes: make(map[ast.Node]*jsNode)}
	root := &jsRoot{adapter: a, program: program, size: len(text)}

	out, err := s.walk(root, text, func(ctx *tree.Context) error {
		switch n := astOf(ctx).(type) {
		case *ast.DotExpression:
			return s.jsMember(text, n)
		case *ast.Identifier:
			return s.jsIdentifier(ctx, n)
		case *ast.CallExpression:
			return s.jsCall(ctx, n)
		case *ast.NewExpression:
			return s.jsNew(ctx, n)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	out = strings.TrimPrefix(out, prefix)
	return strings.TrimSuffix(out, suffix), nil
}

// jsHandler rewrites the body of an inline event handler.
func (s *session) jsHandler(code string) (string, error) {
	out, err := s.js(handlerPrefix+code+handlerSuffix, route.JS)
	if err != nil {
		return "", err
	}
	out = strings.TrimPrefix(out, handlerPrefix)
	return strings.TrimSuffix(out, handlerSuffix), nil
}

// jsMember turns x.location into x[hook.p("location")]. Only the ".name" span
// is replaced so edits inside x stay independent.
func (s *session) jsMember(src string, n *ast.DotExpression) error {
	name := n.Identifier.Name.String()
	if !hookedMembers[name] {
		return nil
	}
	if _, optional := n.Left.(*ast.Optional); optional {
		return nil
	}

	nameStart := int(n.Identifier.Idx) - 1
	nameEnd := nameStart + len(name)
	if nameStart <= 0 || nameEnd > len(src) || src[nameStart:nameEnd] != name {
		// Escaped identifier; its source text is not its name.
		return nil
	}
	dot := nameStart - 1
	for dot >= 0 && isJSSpace(src[dot]) {
		dot--
	}
	if dot < 0 || src[dot] != '.' || (dot > 0 && src[dot-1] == '?') {
		return nil
	}

	key, err := quote(name)
	if err != nil {
		return err
	}
	s.stageSpan("member", tree.Range{Start: dot, End: nameEnd}, "["+s.engine.hook+".p("+key+")]")
	s.engine.observer.ReferenceRouted(s.kind)
	return nil
}

// jsIdentifier routes reads and writes of the free location binding.
func (s *session) jsIdentifier(ctx *tree.Context, n *ast.Identifier) error {
	if n.Name.String() != "location" || declaringKeys[ctx.Key()] {
		return nil
	}
	if parent := ctx.Parent(); parent != nil {
		if _, params := astOf(parent).(*ast.ParameterList); params {
			return nil
		}
	}
	s.engine.observer.ReferenceRouted(s.kind)
	return s.replace(ctx, s.engine.hook+".location")
}

func (s *session) jsCall(ctx *tree.Context, n *ast.CallExpression) error {
	switch callee := n.Callee.(type) {
	case *ast.Identifier:
		switch callee.Name.String() {
		case "importScripts":
			return s.jsRouteArgs(ctx, route.JS, -1)
		case dynamicImport:
			if s.imports[int(callee.Idx)-1] {
				return s.jsImport(ctx)
			}
		}
	case *ast.DotExpression:
		switch callee.Identifier.Name.String() {
		case "importScripts":
			return s.jsRouteArgs(ctx, route.JS, -1)
		case "register":
			left, ok := callee.Left.(*ast.DotExpression)
			if ok && left.Identifier.Name.String() == "serviceWorker" {
				return s.jsRouteArgs(ctx, workerType(n.ArgumentList), 1)
			}
		}
	}
	return nil
}

func (s *session) jsNew(ctx *tree.Context, n *ast.NewExpression) error {
	var name string
	switch callee := n.Callee.(type) {
	case *ast.Identifier:
		name = callee.Name.String()
	case *ast.DotExpression:
		name = callee.Identifier.Name.String()
	}
	if name == "Worker" || name == "SharedWorker" {
		return s.jsRouteArgs(ctx, workerType(n.ArgumentList), 1)
	}
	return nil
}

// jsRouteArgs routes the string literal arguments of the call at ctx. limit
// caps how many leading arguments are considered; -1 means all.
func (s *session) jsRouteArgs(ctx *tree.Context, t route.ResourceType, limit int) error {
	for i, arg := range ctx.Slot("ArgumentList") {
		if limit >= 0 && i >= limit {
			break
		}
		lit, ok := astOf(arg).(*ast.StringLiteral)
		if !ok {
			continue
		}
		if err := s.jsRouteString(arg, lit.Value.String(), t); err != nil {
			return err
		}
	}
	return nil
}

// jsImport routes the specifier of an import() call.
func (s *session) jsImport(ctx *tree.Context) error {
	args := ctx.Slot("ArgumentList")
	if len(args) == 0 {
		return nil
	}
	lit, ok := astOf(args[0]).(*ast.StringLiteral)
	if !ok || !isURLSpecifier(lit.Value.String()) {
		return nil
	}
	return s.jsRouteString(args[0], lit.Value.String(), route.Module)
}

func (s *session) jsRouteString(arg *tree.Context, value string, t route.ResourceType) error {
	routed, changed, err := s.routeRef(value, t, s.page)
	if err != nil || !changed {
		return err
	}
	quoted, err := quote(routed)
	if err != nil {
		return err
	}
	return s.replace(arg, quoted)
}

// jsSpecifier routes the module named by the string literal at r, which the
// parser never saw.
func (s *session) jsSpecifier(text string, r tree.Range) error {
	value := text[r.Start+1 : r.End-1]
	if strings.IndexByte(value, '\\') >= 0 || !isURLSpecifier(value) {
		return nil
	}
	routed, changed, err := s.routeRef(value, route.Module, s.page)
	if err != nil || !changed {
		return err
	}
	quoted, err := quote(routed)
	if err != nil {
		return err
	}
	s.stageSpan("specifier", r, quoted)
	return nil
}

// workerType reads {type: "module"} from a worker or registration options
// argument.
func workerType(args []ast.Expression) route.ResourceType {
	if len(args) < 2 {
		return route.JS
	}
	obj, ok := args[1].(*ast.ObjectLiteral)
	if !ok {
		return route.JS
	}
	for _, prop := range obj.Value {
		keyed, ok := prop.(*ast.PropertyKeyed)
		if !ok || keyed.Computed || propertyName(keyed.Key) != "type" {
			continue
		}
		if v, ok := keyed.Value.(*ast.StringLiteral); ok && v.Value.String() == "module" {
			return route.Module
		}
	}
	return route.JS
}

func propertyName(key ast.Expression) string {
	switch k := key.(type) {
	case *ast.Identifier:
		return k.Name.String()
	case *ast.StringLiteral:
		return k.Value.String()
	}
	return ""
}

func isJSSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\v' || c == '\f'
}
