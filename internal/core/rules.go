package core

import "keepernest/pkg/domain"

// NewRulesEngine constructs an empty engine.
func NewRulesEngine() *domain.RulesEngine {
	return domain.NewRulesEngine()
}

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine() *domain.RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(AssetStateRule())
	engine.Register(AssignmentIntegrityRule())
	return engine
}

func toSet[T ~string](values ...T) map[T]struct{} {
	set := make(map[T]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func changedAsset(payload any) (domain.Asset, bool) {
	switch v := payload.(type) {
	case domain.Asset:
		return v, true
	case *domain.Asset:
		if v == nil {
			return domain.Asset{}, false
		}
		return *v, true
	default:
		return domain.Asset{}, false
	}
}

func changedEmployee(payload any) (domain.Employee, bool) {
	switch v := payload.(type) {
	case domain.Employee:
		return v, true
	case *domain.Employee:
		if v == nil {
			return domain.Employee{}, false
		}
		return *v, true
	default:
		return domain.Employee{}, false
	}
}
