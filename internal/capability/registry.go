package capability

// Constructor builds a fresh, unloaded capability.
type Constructor func() Capability

// registry maps the discriminator stored in artifact metadata to the
// constructor of its variant. It is closed: artifacts written by any
// other variant cannot be reconstructed.
var registry = map[Kind]Constructor{
	ComplianceGap:         func() Capability { return NewComplianceGap() },
	RegulatoryPredictor:   func() Capability { return NewRegulatoryPredictor() },
	DriftDetector:         func() Capability { return NewDriftDetector() },
	DeploymentOptimizer:   func() Capability { return NewDeploymentOptimizer() },
	MarketSignalPredictor: func() Capability { return NewMarketSignalPredictor() },
	TaxonomyClassifier:    func() Capability { return NewTaxonomyClassifier(nil) },
}

// New constructs the variant registered under discriminator. Unknown
// discriminators report false.
func New(discriminator string) (Capability, bool) {
	ctor, ok := registry[Kind(discriminator)]
	if !ok {
		return nil, false
	}
	return ctor(), true
}
