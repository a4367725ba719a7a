// Package style scores generated text against externally defined style
// rules: required terms, banned terms, and a target reading-level band
// computed with a Flesch-Kincaid grade estimate.
package style
