package predicate

import (
	"fmt"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/token"

	"github.com/roach88/arbor/internal/item"
)

// CompileError reports a problem in a scope configuration.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// LoadScope reads and compiles a CUE scope file.
func LoadScope(file string) (*Scope, error) {
	raw, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read scope file: %w", err)
	}

	ctx := cuecontext.New()
	v := ctx.CompileBytes(raw, cue.Filename(file))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compile scope file: %w", err)
	}

	return CompileScope(v.LookupPath(cue.ParsePath("scope")))
}

// CompileScope parses a CUE value into a Scope.
// Uses the CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the scope struct itself.
func CompileScope(v cue.Value) (*Scope, error) {
	if !v.Exists() {
		return nil, &CompileError{Field: "scope", Message: "scope is required"}
	}
	if err := v.Err(); err != nil {
		return nil, &CompileError{Field: "scope", Message: err.Error(), Pos: v.Pos()}
	}

	scope := &Scope{
		Partitions:     make(map[string]PathRules),
		ExcludedFields: make(map[item.ID]bool),
	}

	partsVal := v.LookupPath(cue.ParsePath("partitions"))
	if !partsVal.Exists() {
		return nil, &CompileError{Field: "scope.partitions", Message: "partitions is required", Pos: v.Pos()}
	}

	iter, err := partsVal.Fields()
	if err != nil {
		return nil, &CompileError{Field: "scope.partitions", Message: err.Error(), Pos: partsVal.Pos()}
	}
	for iter.Next() {
		name := strings.Trim(iter.Selector().String(), `"`)
		rules, err := parsePathRules(name, iter.Value())
		if err != nil {
			return nil, err
		}
		scope.Partitions[name] = rules
	}
	if len(scope.Partitions) == 0 {
		return nil, &CompileError{Field: "scope.partitions", Message: "at least one partition is required", Pos: partsVal.Pos()}
	}

	fieldsVal := v.LookupPath(cue.ParsePath("fields.exclude"))
	if fieldsVal.Exists() {
		ids, err := parseStringList("scope.fields.exclude", fieldsVal)
		if err != nil {
			return nil, err
		}
		for _, raw := range ids {
			id, parseErr := item.ParseID(raw)
			if parseErr != nil {
				return nil, &CompileError{
					Field:   "scope.fields.exclude",
					Message: fmt.Sprintf("invalid field id %q", raw),
					Pos:     fieldsVal.Pos(),
				}
			}
			scope.ExcludedFields[id] = true
		}
	}

	return scope, nil
}

// parsePathRules extracts one partition's include/exclude lists.
func parsePathRules(partition string, v cue.Value) (PathRules, error) {
	field := fmt.Sprintf("scope.partitions.%s", partition)

	include, err := parseOptionalPaths(field+".include", v.LookupPath(cue.ParsePath("include")))
	if err != nil {
		return PathRules{}, err
	}
	if len(include) == 0 {
		return PathRules{}, &CompileError{
			Field:   field + ".include",
			Message: "at least one include path is required",
			Pos:     v.Pos(),
		}
	}

	exclude, err := parseOptionalPaths(field+".exclude", v.LookupPath(cue.ParsePath("exclude")))
	if err != nil {
		return PathRules{}, err
	}

	return PathRules{Include: include, Exclude: exclude}, nil
}

func parseOptionalPaths(field string, v cue.Value) ([]string, error) {
	if !v.Exists() {
		return nil, nil
	}
	paths, err := parseStringList(field, v)
	if err != nil {
		return nil, err
	}
	for _, p := range paths {
		if !strings.HasPrefix(p, "/") {
			return nil, &CompileError{
				Field:   field,
				Message: fmt.Sprintf("path %q must be absolute", p),
				Pos:     v.Pos(),
			}
		}
	}
	return paths, nil
}

func parseStringList(field string, v cue.Value) ([]string, error) {
	list, err := v.List()
	if err != nil {
		return nil, &CompileError{Field: field, Message: "must be a list of strings", Pos: v.Pos()}
	}

	var out []string
	for list.Next() {
		s, err := list.Value().String()
		if err != nil {
			return nil, &CompileError{Field: field, Message: "must be a list of strings", Pos: list.Value().Pos()}
		}
		out = append(out, s)
	}
	return out, nil
}
