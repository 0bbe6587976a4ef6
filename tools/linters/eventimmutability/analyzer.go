// Copyright 2025 Philipp Hossner
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package eventimmutability reports writes to the fields of bus events.
//
// Events from msaf/pkg/controller/events are delivered by pointer to every
// subscriber (metrics, commentator, debug buffer, sync component). A handler
// that modifies one changes what the others see.
package eventimmutability

import (
	"go/ast"
	"go/types"
	"strings"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/passes/inspect"
	"golang.org/x/tools/go/ast/inspector"
)

const Doc = `detect modifications to event struct fields

Event structs in pkg/controller/events are immutable after creation. A
function that receives an event as a parameter must only read it.

Violation:

	func handle(event *M3RequestFailedEvent) {
		event.Status = 0 // event field mutation detected
	}

Events built locally may be filled in before they are published.`

// Analyzer is the event immutability analyzer.
var Analyzer = &analysis.Analyzer{
	Name:     "eventimmutability",
	Doc:      Doc,
	Requires: []*analysis.Analyzer{inspect.Analyzer},
	Run:      run,
}

func run(pass *analysis.Pass) (any, error) {
	insp := pass.ResultOf[inspect.Analyzer].(*inspector.Inspector)

	var (
		receiver types.Type
		params   map[types.Object]bool
	)

	nodeFilter := []ast.Node{
		(*ast.FuncDecl)(nil),
		(*ast.AssignStmt)(nil),
		(*ast.IncDecStmt)(nil),
	}

	insp.Preorder(nodeFilter, func(n ast.Node) {
		switch node := n.(type) {
		case *ast.FuncDecl:
			receiver = receiverType(pass, node)
			params = make(map[types.Object]bool)
			if node.Type.Params == nil {
				return
			}
			for _, field := range node.Type.Params.List {
				for _, name := range field.Names {
					if obj := pass.TypesInfo.ObjectOf(name); obj != nil {
						params[obj] = true
					}
				}
			}

		case *ast.AssignStmt:
			for _, lhs := range node.Lhs {
				check(pass, lhs, receiver, params)
			}

		case *ast.IncDecStmt:
			check(pass, node.X, receiver, params)
		}
	})

	return nil, nil
}

// check reports expr when it selects a field of an event parameter.
func check(pass *analysis.Pass, expr ast.Expr, receiver types.Type, params map[types.Object]bool) {
	sel, ok := expr.(*ast.SelectorExpr)
	if !ok {
		return
	}
	ident, ok := sel.X.(*ast.Ident)
	if !ok || !params[pass.TypesInfo.ObjectOf(ident)] {
		return
	}

	named := eventStruct(pass.TypesInfo.TypeOf(sel.X))
	if named == nil {
		return
	}
	// Constructors and methods on the event itself may set fields.
	if receiver != nil && types.Identical(receiver, named) {
		return
	}

	pass.Reportf(sel.Pos(),
		"event field mutation detected: event struct fields must not be modified after creation (type: %s, field: %s)",
		named.Obj().Name(), sel.Sel.Name)
}

func receiverType(pass *analysis.Pass, fn *ast.FuncDecl) types.Type {
	if fn.Recv == nil || len(fn.Recv.List) == 0 {
		return nil
	}
	t := pass.TypesInfo.TypeOf(fn.Recv.List[0].Type)
	if ptr, ok := t.(*types.Pointer); ok {
		return ptr.Elem()
	}
	return t
}

// eventStruct returns the named struct type behind t when it is declared in
// the events package.
func eventStruct(t types.Type) *types.Named {
	if ptr, ok := t.(*types.Pointer); ok {
		t = ptr.Elem()
	}
	named, ok := t.(*types.Named)
	if !ok {
		return nil
	}
	obj := named.Obj()
	if obj == nil || obj.Pkg() == nil || !isEventPackage(obj.Pkg().Path()) {
		return nil
	}
	if _, ok := named.Underlying().(*types.Struct); !ok {
		return nil
	}
	return named
}

func isEventPackage(pkgPath string) bool {
	return pkgPath == "msaf/pkg/controller/events" || strings.HasSuffix(pkgPath, "/pkg/controller/events")
}
