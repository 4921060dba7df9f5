// Package tools provides tool registration and execution for the chat agent.
//
// # Architecture
//
// This package implements the tool layer of the agent system, providing:
//   - Typed tool definitions with generated JSON Schemas (via jsonschema-go)
//   - A registry that validates arguments and executes tools without ever
//     propagating failures as Go errors (failures become structured Results)
//   - Toolsets that group related tools behind a shared backend client
//
// # Design Principles
//
//   - Dependency Injection: Backend endpoints and validators passed as parameters
//   - No Package-Level State: Tools capture dependencies via closures
//   - Never-throw execution: Registry.Execute always returns a Result; unknown
//     tools, invalid arguments, backend failures, and handler panics all fold
//     into error Results the model can read and react to
//
// # Toolsets
//
//  1. Weather (1): getWeather
//  2. Images (2): searchImages, generateImage
//  3. Search (1): searchWeb
//  4. Fetch (1): fetchPage
//
// # Usage
//
// Toolsets are created during app setup, registered into a Registry for
// execution, and defined with Genkit so the model sees their descriptors.
//
// Example:
//
//	registry := tools.NewRegistry(logger)
//	weather, _ := tools.NewWeather(cfg.Weather, logger)
//	if err := tools.Register(registry, weather); err != nil { ... }
//	registry.DefineAll(g)
package tools
