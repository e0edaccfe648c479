package validation

import (
	"sort"
	"strings"

	"github.com/opal-lang/beast/core/ast"
)

// Cycle is a chain of local calls that leads back to its first function.
type Cycle struct {
	Function string   // Where the cycle was found
	Path     []string // The call path, e.g. ["$a", "$b", "$a"]
}

func (c Cycle) String() string {
	return strings.Join(c.Path, " -> ")
}

// CallGraph maps every declared function to the declared functions it calls,
// in order of first call. Calls to imports and unknown names are left out.
func CallGraph(m *ast.Module) map[string][]string {
	declared := make(map[string]bool, len(m.Functions))
	for _, fn := range m.Functions {
		declared[fn.Name] = true
	}

	graph := make(map[string][]string, len(m.Functions))
	for _, fn := range m.Functions {
		seen := make(map[string]bool)
		var calls []string
		ast.Walk(fn.Body, func(in ast.Instruction) bool {
			if call, ok := in.(*ast.Call); ok && declared[call.Target] && !seen[call.Target] {
				seen[call.Target] = true
				calls = append(calls, call.Target)
			}
			return true
		})
		graph[fn.Name] = calls
	}
	return graph
}

// FindRecursion reports every simple cycle in the call graph once, starting
// from its lexically smallest function. Recursion is legal; callers use this
// for reporting.
func FindRecursion(m *ast.Module) []Cycle {
	graph := CallGraph(m)

	names := make([]string, 0, len(graph))
	for name := range graph {
		names = append(names, name)
	}
	sort.Strings(names)

	var cycles []Cycle
	for _, root := range names {
		visiting := map[string]bool{root: true}
		detectCycles(root, root, graph, []string{root}, visiting, &cycles)
	}
	return cycles
}

// detectCycles extends path depth-first. A call back to root closes a cycle;
// functions sorting before root were already explored as roots themselves.
func detectCycles(root, name string, graph map[string][]string, path []string, visiting map[string]bool, out *[]Cycle) {
	for _, next := range graph[name] {
		if next == root {
			cycle := append(append([]string(nil), path...), root)
			*out = append(*out, Cycle{Function: root, Path: cycle})
			continue
		}
		if visiting[next] || next < root {
			continue
		}

		visiting[next] = true
		detectCycles(root, next, graph, append(path, next), visiting, out)
		delete(visiting, next)
	}
}
