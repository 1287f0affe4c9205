package dialog

import "parts-order-bot/internal/domain"

// Frustration is the outcome of DetectFrustration.
type Frustration struct {
	Detected  bool
	Apologize bool
}

// DetectFrustration flags a frustrated customer when the extractor saw a
// frustration signal and we are about to ask the same question again.
func DetectFrustration(signal bool, last, planned domain.QuestionType) Frustration {
	if !signal || planned == "" || planned != last {
		return Frustration{}
	}
	return Frustration{Detected: true, Apologize: true}
}
