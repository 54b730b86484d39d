package resolver

import (
	"fmt"

	"github.com/davidthor/scdctl/pkg/errors"
	"github.com/davidthor/scdctl/pkg/schema/catalog"
	"github.com/davidthor/scdctl/pkg/state/types"
)

// CheckBatch verifies, before anything is provisioned, that an ordered batch
// can run against the recorded state: every product has a published version
// and every dependency outside the batch that its parameters read from
// already has a live instance. Dependencies inside the batch are provisioned
// earlier in the same run, so their outputs are resolved later, product by
// product. A dependency no parameter reads only orders the batch.
func CheckBatch(environment string, order []string, products map[string]catalog.ProductSpec, env *types.DeployEnvironmentState) error {
	inBatch := make(map[string]bool, len(order))
	for _, p := range order {
		inBatch[p] = true
	}

	for _, p := range order {
		ps, _ := env.Lookup(p)
		if ps.Phase() == types.PhaseUnpublished {
			return errors.StateError(
				fmt.Sprintf("product %q not published yet (run `scdctl deploy publish -e %s`)", p, environment),
				map[string]interface{}{"product": p, "environment": environment},
			)
		}

		for _, dep := range mappedDependencies(products[p]) {
			if inBatch[dep] {
				continue
			}
			ds, _ := env.Lookup(dep)
			if ds.Phase() != types.PhaseProvisioned {
				return errors.StateError(
					fmt.Sprintf("%s depends on %q, which has not been deployed (run `scdctl deploy apply -e %s %s`)", p, dep, environment, dep),
					map[string]interface{}{"product": p, "dependency": dep, "environment": environment},
				)
			}
		}
	}
	return nil
}

// mappedDependencies returns the declared dependencies at least one
// parameter mapping reads from, in declaration order.
func mappedDependencies(spec catalog.ProductSpec) []string {
	read := make(map[string]bool, len(spec.ParameterMapping))
	for _, ref := range spec.ParameterMapping {
		if dep, _, ok := catalog.SplitReference(ref); ok {
			read[dep] = true
		}
	}
	var deps []string
	for _, dep := range spec.Dependencies {
		if read[dep] {
			deps = append(deps, dep)
		}
	}
	return deps
}
