package source

import (
	"fmt"
	"os"
	"strings"

	"github.com/zclconf/go-cty/cty"
	"gopkg.in/yaml.v3"
)

// sidecarFile is the YAML schema declaring CSV column types:
//
//	columns:
//	  n: number
//	  q: list(number)
//	  tag: string
type sidecarFile struct {
	Columns map[string]string `yaml:"columns"`
}

// loadSidecar reads a YAML sidecar schema into cty types.
func loadSidecar(path string) (map[string]cty.Type, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file %s: %w", path, err)
	}
	var sidecar sidecarFile
	if err := yaml.Unmarshal(raw, &sidecar); err != nil {
		return nil, fmt.Errorf("parse schema file %s: %w", path, err)
	}
	types := make(map[string]cty.Type, len(sidecar.Columns))
	for name, spec := range sidecar.Columns {
		ty, err := parseTypeSpec(spec)
		if err != nil {
			return nil, fmt.Errorf("schema file %s: column %q: %w", path, name, err)
		}
		types[name] = ty
	}
	return types, nil
}

// parseTypeSpec understands number, string, bool and list(T) of those.
func parseTypeSpec(spec string) (cty.Type, error) {
	spec = strings.TrimSpace(strings.ToLower(spec))
	if inner, ok := strings.CutPrefix(spec, "list("); ok {
		inner, ok = strings.CutSuffix(inner, ")")
		if !ok {
			return cty.NilType, fmt.Errorf("malformed list type %q", spec)
		}
		elem, err := parseTypeSpec(inner)
		if err != nil {
			return cty.NilType, err
		}
		if elem.IsListType() {
			return cty.NilType, fmt.Errorf("nested list type %q not supported", spec)
		}
		return cty.List(elem), nil
	}
	switch spec {
	case "number":
		return cty.Number, nil
	case "string":
		return cty.String, nil
	case "bool":
		return cty.Bool, nil
	default:
		return cty.NilType, fmt.Errorf("unknown type %q", spec)
	}
}
