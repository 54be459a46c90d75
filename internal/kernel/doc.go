// Package kernel owns the feeding-kernel density model.
//
// Responsibilities: the 5-parameter bounded exponential shape, its
// normalization over the fixed mass-ratio support, the weighted negative
// log-likelihood used for fitting, and the mapping of fitted parameters
// into the kernel coefficients consumed by the ecosystem model.
// Key types: ShapeParameters, Normalizer, Density, KernelCoefficients.
//
// Dependency rule: kernel is a leaf package. It knows nothing about
// species grouping, optimizers, or storage.
package kernel
