// Package domain defines the cataloged entities of a population projection
// (estimations, the six forecast kinds and projections), their year ranges
// and catalog entries, the error taxonomy, and the persistence contracts the
// catalog backends implement.
package domain
