package textproc

import "strings"

// Stage identifies which optional pipeline stage produced a candidate.
type Stage string

const (
	StageClean   Stage = "clean"
	StageEnhance Stage = "enhance"
)

// Reason explains why a candidate was rejected. A rejection is a decision,
// not an error: the caller falls back to the deterministic transform.
type Reason string

const (
	ReasonTooShort          Reason = "too_short"
	ReasonRoleMarker        Reason = "role_marker"
	ReasonSelfDuplication   Reason = "self_duplication"
	ReasonLengthDrift       Reason = "length_drift"
	ReasonLanguageBleed     Reason = "language_bleed"
	ReasonContentDivergence Reason = "content_divergence"
)

// Verdict is the validator's decision on one candidate.
type Verdict struct {
	Accept bool
	Reason Reason
}

func accept() Verdict         { return Verdict{Accept: true} }
func reject(r Reason) Verdict { return Verdict{Reason: r} }

// minCandidateLength is the floor below which model output is considered
// degenerate.
const minCandidateLength = 3

// roleMarkers are fragments of chat scaffolding that indicate the model
// failed to isolate its answer from its own prompt.
var roleMarkers = []string{"assistant", "system:", "user:", "<|im_start|>", "<|im_end|>"}

// spanishFunctionWords is a closed set of common Spanish function words used
// to detect translation bleed-through in an English candidate.
var spanishFunctionWords = []string{
	"que", "por", "está", "pero", "como", "cuando", "donde", "así", "también",
}

// Validate judges whether an AI-produced candidate is trustworthy relative
// to its deterministic reference. Checks run in a fixed order and
// short-circuit on the first failure. Pure and side-effect free.
func Validate(candidate, reference string, stage Stage) Verdict {
	trimmed := strings.TrimSpace(candidate)
	if len(trimmed) < minCandidateLength {
		return reject(ReasonTooShort)
	}

	lowerCandidate := strings.ToLower(trimmed)
	for _, marker := range roleMarkers {
		if strings.Contains(lowerCandidate, marker) {
			return reject(ReasonRoleMarker)
		}
	}

	refWords := strings.Fields(reference)
	if len(refWords) >= 3 {
		leading := strings.ToLower(strings.Join(refWords[:3], " "))
		if strings.Count(lowerCandidate, leading) > 1 {
			return reject(ReasonSelfDuplication)
		}
	}

	refLen := len(reference)
	candLen := len(trimmed)
	switch stage {
	case StageEnhance:
		if refLen > 0 && (candLen*2 > refLen*3 || candLen*2 < refLen) {
			return reject(ReasonLengthDrift)
		}
	default:
		if refLen > 0 && candLen > refLen*2 {
			return reject(ReasonLengthDrift)
		}
	}

	if stage == StageEnhance {
		candWords := strings.Fields(lowerCandidate)
		if len(candWords) > 0 {
			bleed := 0
			for _, fw := range spanishFunctionWords {
				for _, w := range candWords {
					if strings.Trim(w, ".,;!?") == fw {
						bleed++
						break
					}
				}
			}
			if bleed*5 > len(candWords) {
				return reject(ReasonLanguageBleed)
			}
		}

		refSet := make(map[string]struct{}, len(refWords))
		for _, w := range refWords {
			refSet[strings.ToLower(strings.Trim(w, ".,;!?"))] = struct{}{}
		}
		if len(refSet) > 2 {
			common := 0
			candSet := make(map[string]struct{})
			for _, w := range strings.Fields(lowerCandidate) {
				candSet[strings.Trim(w, ".,;!?")] = struct{}{}
			}
			for w := range refSet {
				if _, ok := candSet[w]; ok {
					common++
				}
			}
			if common*2 < len(refSet) {
				return reject(ReasonContentDivergence)
			}
		}
	}

	return accept()
}
