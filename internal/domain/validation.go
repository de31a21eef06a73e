package domain

// ValidationResult is the structured outcome of a business-rule or workflow
// check. Errors block the action; warnings are advisory and never change
// IsValid.
type ValidationResult struct {
	IsValid  bool     `json:"isValid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Valid returns a passing result with empty lists.
func Valid() ValidationResult {
	return ValidationResult{IsValid: true, Errors: []string{}, Warnings: []string{}}
}

// NewValidationResult builds a result whose validity is derived from errors.
func NewValidationResult(errors, warnings []string) ValidationResult {
	if errors == nil {
		errors = []string{}
	}
	if warnings == nil {
		warnings = []string{}
	}
	return ValidationResult{
		IsValid:  len(errors) == 0,
		Errors:   errors,
		Warnings: warnings,
	}
}

// Combine merges results: errors and warnings are de-duplicated in first-seen
// order, and the combined result is valid only when every input is.
func Combine(results ...ValidationResult) ValidationResult {
	valid := true
	var errs, warns []string
	seenErr := make(map[string]struct{})
	seenWarn := make(map[string]struct{})
	for _, r := range results {
		valid = valid && r.IsValid
		for _, e := range r.Errors {
			if _, ok := seenErr[e]; ok {
				continue
			}
			seenErr[e] = struct{}{}
			errs = append(errs, e)
		}
		for _, w := range r.Warnings {
			if _, ok := seenWarn[w]; ok {
				continue
			}
			seenWarn[w] = struct{}{}
			warns = append(warns, w)
		}
	}
	out := NewValidationResult(errs, warns)
	out.IsValid = valid && len(out.Errors) == 0
	return out
}
