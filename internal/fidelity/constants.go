package fidelity

const (
	ObjectiveRuntime          = "runtime"
	ObjectiveRNX              = "r_nx"
	ObjectiveBNX              = "b_nx"
	ObjectiveMRRE             = "mrre"
	ObjectiveMRRETrust        = "mrre_trustworthiness"
	ObjectiveMRRECont         = "mrre_continuity"
	ObjectiveStress           = "stress"
	ObjectiveResidualVariance = "residual_variance"
)

// DefaultKInterval is the neighbourhood interval used when none is configured.
func DefaultKInterval() KInterval {
	return KInterval{Min: 2, Max: 5}
}

// DefaultObjectives lists every objective the Evaluator can compute.
func DefaultObjectives() []string {
	return []string{
		ObjectiveRNX,
		ObjectiveBNX,
		ObjectiveMRRE,
		ObjectiveMRRETrust,
		ObjectiveMRRECont,
		ObjectiveStress,
		ObjectiveResidualVariance,
	}
}

// AllObjectives is DefaultObjectives plus the runtime measured by workers.
func AllObjectives() []string {
	return append([]string{ObjectiveRuntime}, DefaultObjectives()...)
}
