package store

// Default engine settings, used to seed the engine_settings table and
// as the fallback when no row exists yet.
const (
	DefaultAutoAssignThreshold = 0.85
	DefaultSuggestionThreshold = 0.70
	DefaultMinClusterSize      = 3
	DefaultClusterEpsilon      = 0.35
	DefaultPrototypeQuota      = 5
	DefaultCentroidMinFaces    = 10
	DefaultMaxCandidates       = 10
	DefaultFindMoreAnchors     = 8
	DefaultPropagationLimit    = 3
)

// DefaultSettings returns the built-in engine settings.
func DefaultSettings() EngineSettings {
	return EngineSettings{
		AutoAssignThreshold: DefaultAutoAssignThreshold,
		SuggestionThreshold: DefaultSuggestionThreshold,
		MinClusterSize:      DefaultMinClusterSize,
		ClusterEpsilon:      DefaultClusterEpsilon,
		PrototypeQuota:      DefaultPrototypeQuota,
		CentroidMinFaces:    DefaultCentroidMinFaces,
		MaxCandidates:       DefaultMaxCandidates,
		FindMoreAnchors:     DefaultFindMoreAnchors,
		PropagationLimit:    DefaultPropagationLimit,
	}
}

// Validate checks settings for values the engine cannot run with.
func (s EngineSettings) Validate() error {
	if s.AutoAssignThreshold < s.SuggestionThreshold {
		return ErrInvalidArgument
	}
	if s.MinClusterSize < 2 || s.PrototypeQuota < 1 || s.MaxCandidates < 1 {
		return ErrInvalidArgument
	}
	return nil
}
