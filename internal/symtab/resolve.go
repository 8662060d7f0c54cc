package symtab

import "strings"

// Resolve maps a call target to a symbol. Each scope from scope up through
// its parents is tried in turn; within one scope the first of these wins:
//
//  1. a binding named exactly name, dots included;
//  2. for dotted names, the first segment looked up in the scope and each
//     further segment taken as an attribute of the previous result;
//  3. the first callable binding whose key equals name.
//
// Resolve never fails loudly: unknown names simply report false.
func Resolve(name string, scope *Scope) (*Symbol, bool) {
	if name == "" {
		return nil, false
	}
	for s := scope; s != nil; s = s.Parent {
		if sym, ok := resolveIn(name, s); ok {
			return sym, true
		}
	}
	return nil, false
}

func resolveIn(name string, scope *Scope) (*Symbol, bool) {
	if sym, ok := scope.Lookup(name); ok {
		return sym, true
	}

	if parts := strings.Split(name, "."); len(parts) > 1 {
		return traverse(scope, parts)
	}

	for key, sym := range scope.All() {
		if key == name && sym.Callable() {
			return sym, true
		}
	}
	return nil, false
}

func traverse(scope *Scope, parts []string) (*Symbol, bool) {
	cur, ok := scope.Lookup(parts[0])
	if !ok {
		return nil, false
	}
	for _, part := range parts[1:] {
		if cur, ok = cur.Attr(part); !ok {
			return nil, false
		}
	}
	return cur, true
}
