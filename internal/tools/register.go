package tools

import "fmt"

// Register adds every tool from the given toolsets to the registry.
// Returns an error on the first toolset or tool that fails; partially
// registered tools are left in place since setup aborts on error anyway.
func Register(registry *Registry, toolsets ...Toolset) error {
	if registry == nil {
		return fmt.Errorf("registry is required (cannot be nil)")
	}

	for _, ts := range toolsets {
		toolList, err := ts.Tools()
		if err != nil {
			return fmt.Errorf("listing tools for toolset %s: %w", ts.Name(), err)
		}
		for _, t := range toolList {
			if err := registry.Add(t); err != nil {
				return fmt.Errorf("registering toolset %s: %w", ts.Name(), err)
			}
		}
	}
	return nil
}
