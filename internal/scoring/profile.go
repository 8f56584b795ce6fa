package scoring

// ProfileName identifies a weight profile.
type ProfileName string

const (
	ProfileRuleBased ProfileName = "rule_based"
	ProfileML        ProfileName = "ml"
)

// Component is a weighted input to the combined score.
type Component string

// Rule-based components map one to one onto signals.
const (
	ComponentExactID   Component = "exact_id"
	ComponentBiometric Component = "biometric"
	ComponentPhonetic  Component = "phonetic"
	ComponentFuzzyName Component = "fuzzy_name"
	ComponentDOB       Component = "dob"
	ComponentAddress   Component = "address"
)

// ML-style components blend several signals each.
const (
	ComponentDemographic Component = "demographic"
	ComponentName        Component = "name"
)

// Profile is a named set of component weights. Weights need not sum to one;
// the combined score always divides by the weights of present components.
type Profile struct {
	Name    ProfileName
	Weights map[Component]float64
}

// RuleBased weights exact identifiers and biometrics above name evidence.
func RuleBased() Profile {
	return Profile{
		Name: ProfileRuleBased,
		Weights: map[Component]float64{
			ComponentExactID:   0.40,
			ComponentBiometric: 0.30,
			ComponentPhonetic:  0.15,
			ComponentFuzzyName: 0.10,
			ComponentDOB:       0.05,
			ComponentAddress:   0.10,
		},
	}
}

// MLProfile is the ensemble profile: demographic, biometric, address and
// name components.
func MLProfile() Profile {
	return Profile{
		Name: ProfileML,
		Weights: map[Component]float64{
			ComponentDemographic: 0.25,
			ComponentBiometric:   0.35,
			ComponentAddress:     0.20,
			ComponentName:        0.20,
		},
	}
}

// ProfileByName resolves a profile name, defaulting to RuleBased.
func ProfileByName(name string) (Profile, bool) {
	switch ProfileName(name) {
	case ProfileRuleBased, "":
		return RuleBased(), true
	case ProfileML:
		return MLProfile(), true
	default:
		return Profile{}, false
	}
}

// combine computes Σ(score·weight)/Σ(weight) over the components present.
func (p Profile) combine(components map[Component]float64) float64 {
	var total, weight float64
	for c, v := range components {
		w, ok := p.Weights[c]
		if !ok || w <= 0 {
			continue
		}
		total += v * w
		weight += w
	}
	if weight == 0 {
		return 0
	}
	combined := total / weight
	if combined >= 1-unitTolerance {
		// a pair agreeing on every present signal must clear threshold 1
		return 1
	}
	return clamp01(combined)
}

// unitTolerance absorbs rounding in the weighted average.
const unitTolerance = 1e-12

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
