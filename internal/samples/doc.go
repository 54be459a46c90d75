// Package samples owns the observation records and the per-species weighted
// samples the fitter consumes.
//
// Responsibilities: reading observation tables, the upstream filter stages
// (positive mass ratio, species restriction), grouping by species, and the
// Sample Weighter that turns prey counts into weights by number and by
// biomass. Every stage is a plain function over typed records.
// Key types: Observation, WeightedSample, DataError.
//
// Dependency rule: samples depends only on gonum/floats. It never imports
// kernel or fit.
package samples
