// Package astjson decodes the JSON encoding of internal/ast's node tree.
// Per spec §2 the AST is externally owned: each frontend's own parser
// builds it upstream of this module. cmd/vc has no parser, so this
// package is the concrete shape of that hand-off for the driver: a
// frontend emits its AST as JSON (a discriminated "kind" envelope per
// node, mirroring the internal/ast node set one for one), and Decode
// rebuilds the internal/ast tree the analyzer/lowerer pipeline expects.
//
// Source positions are not part of the envelope, so nodes decoded here
// carry the zero SourceLoc. Frontends needing precise diagnostics
// locations should report them before handing the AST to this module.
package astjson

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/splanck/viper-sub008/internal/ast"
)

type node map[string]json.RawMessage

func (n node) str(key string) string {
	var s string
	if raw, ok := n[key]; ok {
		_ = json.Unmarshal(raw, &s)
	}
	return s
}

func (n node) boolean(key string) bool {
	var b bool
	if raw, ok := n[key]; ok {
		_ = json.Unmarshal(raw, &b)
	}
	return b
}

func (n node) integer(key string) int {
	var i int
	if raw, ok := n[key]; ok {
		_ = json.Unmarshal(raw, &i)
	}
	return i
}

// Decode parses data as a JSON-encoded File.
func Decode(data []byte) (*ast.File, error) {
	var n node
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, errors.Wrap(err, "astjson: decode file")
	}
	return decodeFile(n)
}

func decodeFile(n node) (*ast.File, error) {
	f := &ast.File{}
	if raw, ok := n["using"]; ok {
		var items []node
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, errors.Wrap(err, "astjson: using")
		}
		for _, u := range items {
			f.Using = append(f.Using, ast.UsingDirective{
				Namespace: u.str("namespace"),
				Alias:     u.str("alias"),
			})
		}
	}
	decls, err := decodeDeclList(n, "decls")
	if err != nil {
		return nil, err
	}
	f.Decls = decls
	return f, nil
}

func decodeNodeList(raw json.RawMessage) ([]node, error) {
	if raw == nil {
		return nil, nil
	}
	var items []node
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, errors.Wrap(err, "astjson: node list")
	}
	return items, nil
}

func decodeDeclList(n node, key string) ([]ast.Decl, error) {
	items, err := decodeNodeList(n[key])
	if err != nil {
		return nil, err
	}
	decls := make([]ast.Decl, 0, len(items))
	for _, it := range items {
		d, err := decodeDecl(it)
		if err != nil {
			return nil, err
		}
		decls = append(decls, d)
	}
	return decls, nil
}

func decodeStmtList(n node, key string) ([]ast.Stmt, error) {
	items, err := decodeNodeList(n[key])
	if err != nil {
		return nil, err
	}
	stmts := make([]ast.Stmt, 0, len(items))
	for _, it := range items {
		s, err := decodeStmt(it)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
	}
	return stmts, nil
}

func decodeExprList(n node, key string) ([]ast.Expr, error) {
	items, err := decodeNodeList(n[key])
	if err != nil {
		return nil, err
	}
	exprs := make([]ast.Expr, 0, len(items))
	for _, it := range items {
		e, err := decodeExpr(it)
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, e)
	}
	return exprs, nil
}

func decodeExprField(n node, key string) (ast.Expr, error) {
	raw, ok := n[key]
	if !ok || string(raw) == "null" {
		return nil, nil
	}
	var child node
	if err := json.Unmarshal(raw, &child); err != nil {
		return nil, errors.Wrapf(err, "astjson: field %q", key)
	}
	return decodeExpr(child)
}

func decodeTypeField(n node, key string) (ast.TypeExpr, error) {
	raw, ok := n[key]
	if !ok || string(raw) == "null" {
		return nil, nil
	}
	var child node
	if err := json.Unmarshal(raw, &child); err != nil {
		return nil, errors.Wrapf(err, "astjson: field %q", key)
	}
	return decodeTypeExpr(child)
}

func decodeParams(n node, key string) ([]ast.ParamDecl, error) {
	items, err := decodeNodeList(n[key])
	if err != nil {
		return nil, err
	}
	params := make([]ast.ParamDecl, 0, len(items))
	for _, p := range items {
		typ, err := decodeTypeField(p, "type")
		if err != nil {
			return nil, err
		}
		def, err := decodeExprField(p, "default")
		if err != nil {
			return nil, err
		}
		params = append(params, ast.ParamDecl{
			Name:    p.str("name"),
			Type:    typ,
			ByRef:   p.boolean("byref"),
			Default: def,
		})
	}
	return params, nil
}

func decodeFields(n node, key string) ([]ast.FieldDecl, error) {
	items, err := decodeNodeList(n[key])
	if err != nil {
		return nil, err
	}
	out := make([]ast.FieldDecl, 0, len(items))
	for _, fn := range items {
		typ, err := decodeTypeField(fn, "type")
		if err != nil {
			return nil, err
		}
		out = append(out, ast.FieldDecl{
			Name:       fn.str("name"),
			Type:       typ,
			Weak:       fn.boolean("weak"),
			Visibility: fn.integer("visibility"),
		})
	}
	return out, nil
}

func decodeProperties(n node, key string) ([]ast.PropertyDecl, error) {
	items, err := decodeNodeList(n[key])
	if err != nil {
		return nil, err
	}
	out := make([]ast.PropertyDecl, 0, len(items))
	for _, pn := range items {
		typ, err := decodeTypeField(pn, "type")
		if err != nil {
			return nil, err
		}
		out = append(out, ast.PropertyDecl{
			Name:          pn.str("name"),
			Type:          typ,
			ReadAccessor:  pn.str("read"),
			WriteAccessor: pn.str("write"),
			Visibility:    pn.integer("visibility"),
		})
	}
	return out, nil
}

func decodeStrings(n node, key string) []string {
	raw, ok := n[key]
	if !ok {
		return nil
	}
	var out []string
	_ = json.Unmarshal(raw, &out)
	return out
}

func decodeMethods(n node, key string) ([]*ast.ProcDecl, error) {
	items, err := decodeNodeList(n[key])
	if err != nil {
		return nil, err
	}
	out := make([]*ast.ProcDecl, 0, len(items))
	for _, m := range items {
		d, err := decodeDecl(m)
		if err != nil {
			return nil, err
		}
		proc, ok := d.(*ast.ProcDecl)
		if !ok {
			return nil, errors.Errorf("astjson: method entry is not a proc: %T", d)
		}
		out = append(out, proc)
	}
	return out, nil
}

func decodeEnumMembers(n node, key string) []ast.EnumMember {
	items, err := decodeNodeList(n[key])
	if err != nil {
		return nil
	}
	out := make([]ast.EnumMember, 0, len(items))
	for _, m := range items {
		em := ast.EnumMember{Name: m.str("name")}
		if raw, ok := m["ordinal"]; ok && string(raw) != "null" {
			var ord int
			_ = json.Unmarshal(raw, &ord)
			em.Ordinal = &ord
		}
		out = append(out, em)
	}
	return out
}

func decodeDecl(n node) (ast.Decl, error) {
	switch n.str("kind") {
	case "TypeDecl":
		rhs, err := decodeTypeField(n, "rhs")
		if err != nil {
			return nil, err
		}
		return &ast.TypeDecl{Name: n.str("name"), RHS: rhs}, nil
	case "VarDecl":
		typ, err := decodeTypeField(n, "type")
		if err != nil {
			return nil, err
		}
		init, err := decodeExprField(n, "init")
		if err != nil {
			return nil, err
		}
		return &ast.VarDecl{
			Name:        n.str("name"),
			Type:        typ,
			Init:        init,
			ModuleLevel: n.boolean("module_level"),
		}, nil
	case "ConstDecl":
		typ, err := decodeTypeField(n, "type")
		if err != nil {
			return nil, err
		}
		init, err := decodeExprField(n, "init")
		if err != nil {
			return nil, err
		}
		return &ast.ConstDecl{Name: n.str("name"), Type: typ, Init: init}, nil
	case "EnumDecl":
		return &ast.EnumDecl{Name: n.str("name"), Members: decodeEnumMembers(n, "members")}, nil
	case "ProcDecl":
		ret, err := decodeTypeField(n, "return")
		if err != nil {
			return nil, err
		}
		params, err := decodeParams(n, "params")
		if err != nil {
			return nil, err
		}
		var body []ast.Stmt
		if _, ok := n["body"]; ok {
			body, err = decodeStmtList(n, "body")
			if err != nil {
				return nil, err
			}
		}
		return &ast.ProcDecl{
			Name:       n.str("name"),
			ClassName:  n.str("class_name"),
			Kind:       n.integer("proc_kind"),
			Return:     ret,
			Params:     params,
			Body:       body,
			IsVirtual:  n.boolean("is_virtual"),
			IsOverride: n.boolean("is_override"),
			IsAbstract: n.boolean("is_abstract"),
			Visibility: n.integer("visibility"),
		}, nil
	case "ClassDecl":
		fields, err := decodeFields(n, "fields")
		if err != nil {
			return nil, err
		}
		props, err := decodeProperties(n, "properties")
		if err != nil {
			return nil, err
		}
		methods, err := decodeMethods(n, "methods")
		if err != nil {
			return nil, err
		}
		return &ast.ClassDecl{
			Name:       n.str("name"),
			BaseName:   n.str("base_name"),
			Interfaces: decodeStrings(n, "interfaces"),
			Fields:     fields,
			Properties: props,
			Methods:    methods,
			IsAbstract: n.boolean("is_abstract"),
		}, nil
	case "InterfaceDecl":
		methods, err := decodeMethods(n, "methods")
		if err != nil {
			return nil, err
		}
		return &ast.InterfaceDecl{
			Name:    n.str("name"),
			Bases:   decodeStrings(n, "bases"),
			Methods: methods,
		}, nil
	default:
		return nil, errors.Errorf("astjson: unknown decl kind %q", n.str("kind"))
	}
}

func decodeTypeExpr(n node) (ast.TypeExpr, error) {
	switch n.str("kind") {
	case "NamedType":
		return &ast.NamedType{Name: n.str("name")}, nil
	case "OptionalType":
		inner, err := decodeTypeField(n, "inner")
		if err != nil {
			return nil, err
		}
		return &ast.OptionalType{Inner: inner}, nil
	case "ArrayType":
		elem, err := decodeTypeField(n, "elem")
		if err != nil {
			return nil, err
		}
		var dims []int
		if raw, ok := n["dims"]; ok {
			_ = json.Unmarshal(raw, &dims)
		}
		return &ast.ArrayType{Elem: elem, Dims: dims}, nil
	default:
		return nil, errors.Errorf("astjson: unknown type kind %q", n.str("kind"))
	}
}

func decodeCaseArms(n node, key string) ([]ast.CaseArm, error) {
	items, err := decodeNodeList(n[key])
	if err != nil {
		return nil, err
	}
	out := make([]ast.CaseArm, 0, len(items))
	for _, a := range items {
		labels, err := decodeExprList(a, "labels")
		if err != nil {
			return nil, err
		}
		body, err := decodeStmtList(a, "body")
		if err != nil {
			return nil, err
		}
		out = append(out, ast.CaseArm{Labels: labels, Body: body})
	}
	return out, nil
}

func decodeHandlers(n node, key string) ([]ast.ExceptHandler, error) {
	items, err := decodeNodeList(n[key])
	if err != nil {
		return nil, err
	}
	out := make([]ast.ExceptHandler, 0, len(items))
	for _, h := range items {
		body, err := decodeStmtList(h, "body")
		if err != nil {
			return nil, err
		}
		out = append(out, ast.ExceptHandler{
			ExcType: h.str("exc_type"),
			Name:    h.str("name"),
			Body:    body,
		})
	}
	return out, nil
}

func decodeStmt(n node) (ast.Stmt, error) {
	switch n.str("kind") {
	case "LocalVarStmt":
		decl := node{}
		if raw, ok := n["decl"]; ok {
			if err := json.Unmarshal(raw, &decl); err != nil {
				return nil, errors.Wrap(err, "astjson: local var decl")
			}
		}
		decl["kind"] = json.RawMessage(`"VarDecl"`)
		d, err := decodeDecl(decl)
		if err != nil {
			return nil, err
		}
		return &ast.LocalVarStmt{Decl: *d.(*ast.VarDecl)}, nil
	case "AssignStmt":
		target, err := decodeExprField(n, "target")
		if err != nil {
			return nil, err
		}
		value, err := decodeExprField(n, "value")
		if err != nil {
			return nil, err
		}
		return &ast.AssignStmt{Target: target, Value: value}, nil
	case "ExprStmt":
		x, err := decodeExprField(n, "x")
		if err != nil {
			return nil, err
		}
		return &ast.ExprStmt{X: x}, nil
	case "IfStmt":
		cond, err := decodeExprField(n, "cond")
		if err != nil {
			return nil, err
		}
		then, err := decodeStmtList(n, "then")
		if err != nil {
			return nil, err
		}
		els, err := decodeStmtList(n, "else")
		if err != nil {
			return nil, err
		}
		return &ast.IfStmt{Cond: cond, Then: then, Else: els}, nil
	case "WhileStmt":
		cond, err := decodeExprField(n, "cond")
		if err != nil {
			return nil, err
		}
		body, err := decodeStmtList(n, "body")
		if err != nil {
			return nil, err
		}
		return &ast.WhileStmt{Cond: cond, Body: body}, nil
	case "RepeatStmt":
		cond, err := decodeExprField(n, "cond")
		if err != nil {
			return nil, err
		}
		body, err := decodeStmtList(n, "body")
		if err != nil {
			return nil, err
		}
		return &ast.RepeatStmt{Body: body, Cond: cond}, nil
	case "ForStmt":
		low, err := decodeExprField(n, "low")
		if err != nil {
			return nil, err
		}
		high, err := decodeExprField(n, "high")
		if err != nil {
			return nil, err
		}
		body, err := decodeStmtList(n, "body")
		if err != nil {
			return nil, err
		}
		return &ast.ForStmt{
			Var:    n.str("var"),
			Low:    low,
			High:   high,
			Downto: n.boolean("downto"),
			Body:   body,
		}, nil
	case "ForInStmt":
		coll, err := decodeExprField(n, "collection")
		if err != nil {
			return nil, err
		}
		body, err := decodeStmtList(n, "body")
		if err != nil {
			return nil, err
		}
		return &ast.ForInStmt{Var: n.str("var"), Collection: coll, Body: body}, nil
	case "CaseStmt":
		scrutinee, err := decodeExprField(n, "scrutinee")
		if err != nil {
			return nil, err
		}
		arms, err := decodeCaseArms(n, "arms")
		if err != nil {
			return nil, err
		}
		def, err := decodeStmtList(n, "default")
		if err != nil {
			return nil, err
		}
		return &ast.CaseStmt{Scrutinee: scrutinee, Arms: arms, Default: def}, nil
	case "TryStmt":
		body, err := decodeStmtList(n, "body")
		if err != nil {
			return nil, err
		}
		handlers, err := decodeHandlers(n, "handlers")
		if err != nil {
			return nil, err
		}
		finally, err := decodeStmtList(n, "finally")
		if err != nil {
			return nil, err
		}
		return &ast.TryStmt{Body: body, Handlers: handlers, Finally: finally}, nil
	case "ExitStmt":
		value, err := decodeExprField(n, "value")
		if err != nil {
			return nil, err
		}
		return &ast.ExitStmt{Value: value}, nil
	case "BreakStmt":
		return &ast.BreakStmt{}, nil
	case "ContinueStmt":
		return &ast.ContinueStmt{}, nil
	case "WithStmt":
		recv, err := decodeExprField(n, "receiver")
		if err != nil {
			return nil, err
		}
		body, err := decodeStmtList(n, "body")
		if err != nil {
			return nil, err
		}
		return &ast.WithStmt{Receiver: recv, Body: body}, nil
	case "RaiseStmt":
		value, err := decodeExprField(n, "value")
		if err != nil {
			return nil, err
		}
		return &ast.RaiseStmt{Value: value}, nil
	default:
		return nil, errors.Errorf("astjson: unknown stmt kind %q", n.str("kind"))
	}
}

func decodeExpr(n node) (ast.Expr, error) {
	switch n.str("kind") {
	case "IntLit":
		var v int64
		_ = json.Unmarshal(n["value"], &v)
		return &ast.IntLit{Value: v}, nil
	case "FloatLit":
		var v float64
		_ = json.Unmarshal(n["value"], &v)
		return &ast.FloatLit{Value: v}, nil
	case "BoolLit":
		return &ast.BoolLit{Value: n.boolean("value")}, nil
	case "StringLit":
		return &ast.StringLit{Value: n.str("value")}, nil
	case "NilLit":
		return &ast.NilLit{}, nil
	case "Ident":
		return &ast.Ident{Name: n.str("name")}, nil
	case "UnaryExpr":
		x, err := decodeExprField(n, "x")
		if err != nil {
			return nil, err
		}
		return &ast.UnaryExpr{Op: n.str("op"), X: x}, nil
	case "BinaryExpr":
		x, err := decodeExprField(n, "x")
		if err != nil {
			return nil, err
		}
		y, err := decodeExprField(n, "y")
		if err != nil {
			return nil, err
		}
		return &ast.BinaryExpr{Op: n.str("op"), X: x, Y: y}, nil
	case "CoalesceExpr":
		x, err := decodeExprField(n, "x")
		if err != nil {
			return nil, err
		}
		y, err := decodeExprField(n, "y")
		if err != nil {
			return nil, err
		}
		return &ast.CoalesceExpr{X: x, Y: y}, nil
	case "CallExpr":
		callee, err := decodeExprField(n, "callee")
		if err != nil {
			return nil, err
		}
		args, err := decodeExprList(n, "args")
		if err != nil {
			return nil, err
		}
		return &ast.CallExpr{Callee: callee, Args: args}, nil
	case "FieldAccess":
		x, err := decodeExprField(n, "x")
		if err != nil {
			return nil, err
		}
		return &ast.FieldAccess{X: x, Name: n.str("name")}, nil
	case "IndexExpr":
		x, err := decodeExprField(n, "x")
		if err != nil {
			return nil, err
		}
		idx, err := decodeExprField(n, "index")
		if err != nil {
			return nil, err
		}
		return &ast.IndexExpr{X: x, Index: idx}, nil
	case "CastExpr":
		x, err := decodeExprField(n, "x")
		if err != nil {
			return nil, err
		}
		return &ast.CastExpr{TypeName: n.str("type_name"), X: x}, nil
	case "InheritedExpr":
		args, err := decodeExprList(n, "args")
		if err != nil {
			return nil, err
		}
		return &ast.InheritedExpr{MethodName: n.str("method_name"), Args: args}, nil
	default:
		return nil, errors.Errorf("astjson: unknown expr kind %q", n.str("kind"))
	}
}
