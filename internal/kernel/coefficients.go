package kernel

// KernelCoefficients are the per-species feeding-kernel parameters consumed
// by the ecosystem model.
type KernelCoefficients struct {
	KernelExp float64 `json:"kernel_exp"`
	KernelLL  float64 `json:"kernel_l_l"`
	KernelUL  float64 `json:"kernel_u_l"`
	KernelLR  float64 `json:"kernel_l_r"`
	KernelUR  float64 `json:"kernel_u_r"`
}

// MapCoefficients converts fitted shape parameters into kernel coefficients.
// lambda is the model-wide spectral exponent; it is supplied by the caller
// and never estimated here.
func MapCoefficients(p ShapeParameters, lambda float64) KernelCoefficients {
	return KernelCoefficients{
		KernelExp: p.Alpha + 4.0/3.0 - lambda,
		KernelLL:  p.LLeft,
		KernelUL:  p.ULeft,
		KernelLR:  p.LRight,
		KernelUR:  p.URight,
	}
}
