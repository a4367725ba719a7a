// Package experiment provides deterministic A/B assignment across named
// variants with configured traffic weights, plus per-variant result
// accumulation and summary statistics.
package experiment
