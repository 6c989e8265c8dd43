// Package registry holds the step DAG.
//
// Steps are declared with NewStep, parameterized by their result type, and
// erased behind Definition so the executor can treat them uniformly while the
// result type stays fixed at compile time. A Registry is built once at start
// up and handed to the executor; there is no package-level state.
package registry
