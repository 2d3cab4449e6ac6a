package code

import (
	"errors"
	"go/ast"
	"go/parser"
	"go/token"
)

// DeclaredNames returns the identifiers declared or assigned by the
// top-level statements of body. Names bound inside nested blocks are not
// reported.
func DeclaredNames(body string) (map[string]bool, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "fragment.go", "package p\nfunc _() {\n"+body+"\n}\n", 0)
	if err != nil {
		return nil, err
	}
	names := map[string]bool{}
	fn, ok := f.Decls[0].(*ast.FuncDecl)
	if !ok || fn.Body == nil {
		return nil, errors.New("unexpected fragment structure")
	}
	for _, stmt := range fn.Body.List {
		switch s := stmt.(type) {
		case *ast.AssignStmt:
			for _, lhs := range s.Lhs {
				if id, ok := lhs.(*ast.Ident); ok && id.Name != "_" {
					names[id.Name] = true
				}
			}
		case *ast.DeclStmt:
			gd, ok := s.Decl.(*ast.GenDecl)
			if !ok {
				continue
			}
			for _, spec := range gd.Specs {
				if vs, ok := spec.(*ast.ValueSpec); ok {
					for _, id := range vs.Names {
						if id.Name != "_" {
							names[id.Name] = true
						}
					}
				}
			}
		}
	}
	return names, nil
}
