// Package resolver turns a product's parameter mapping into concrete
// provisioning parameters using the outputs recorded in deploy state.
package resolver

import (
	"fmt"
	"sort"

	"github.com/davidthor/scdctl/pkg/errors"
	"github.com/davidthor/scdctl/pkg/schema/catalog"
	"github.com/davidthor/scdctl/pkg/state/types"
)

// EnvironmentParameter is injected into every provisioning call with the
// environment name as its value.
const EnvironmentParameter = "Environment"

// Parameter is one resolved provisioning parameter.
type Parameter struct {
	Key   string
	Value string
}

// Resolve maps every parameter of the product to the recorded output of the
// dependency it references. Values come only from deploy state; the
// catalog's declared outputs are never used as a value source.
func Resolve(product string, spec catalog.ProductSpec, env *types.DeployEnvironmentState) (map[string]string, error) {
	params := make(map[string]string, len(spec.ParameterMapping))

	keys := make([]string, 0, len(spec.ParameterMapping))
	for k := range spec.ParameterMapping {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, param := range keys {
		ref := spec.ParameterMapping[param]
		dep, output, ok := catalog.SplitReference(ref)
		if !ok {
			return nil, errors.MappingError(product, param, ref, "expected <dependency>.<output>")
		}

		depState, _ := env.Lookup(dep)
		if depState == nil {
			return nil, errors.StateError(
				fmt.Sprintf("%s: missing deployed state for dependency %q", product, dep),
				map[string]interface{}{"product": product, "dependency": dep, "parameter": param},
			)
		}

		value, ok := depState.Outputs[output]
		if !ok {
			return nil, errors.StateError(
				fmt.Sprintf("%s: missing output %q on dependency %q", product, output, dep),
				map[string]interface{}{"product": product, "dependency": dep, "parameter": param, "output": output},
			)
		}
		params[param] = value
	}

	return params, nil
}

// ForEnvironment resolves the product's parameters and injects the
// environment name. The result is sorted by key so provisioning calls are
// reproducible.
func ForEnvironment(environment, product string, spec catalog.ProductSpec, env *types.DeployEnvironmentState) ([]Parameter, error) {
	params, err := Resolve(product, spec, env)
	if err != nil {
		return nil, err
	}
	params[EnvironmentParameter] = environment

	out := make([]Parameter, 0, len(params))
	for k, v := range params {
		out = append(out, Parameter{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
