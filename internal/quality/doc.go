// Package quality grades step outputs without ever stopping a chain.
//
// Each step name maps to a Gate that inspects the output and lists issues.
// Manager.Check turns those issues into one of five tiers, recovering from
// any gate panic, and GenerateReport rolls per-step assessments into an
// overall tier with advisory fallback recommendations. Nothing here is
// applied automatically; callers decide what to do with a degraded result.
package quality
