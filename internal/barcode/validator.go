package barcode

import "regexp"

// Validation reason codes. These are persisted with rejected candidates and
// audit rows, so the literals are part of the data contract.
const (
	ReasonLengthError    = "길이_오류"
	ReasonNonNumeric     = "숫자_오류"
	ReasonRegistered     = "등록_제품"
	ReasonInvalidPattern = "명백한_잘못된_패턴"
	ReasonStandard13     = "표준_13자리_바코드"
	ReasonStandard12     = "표준_12자리_바코드"
	ReasonGeneric        = "일반_바코드"
	ReasonValidationErr  = "검증_오류"
)

// Obvious garbage reads: long runs of a single digit, or a 13-digit code
// built only from 0-2 (a common partial-read artifact on this line).
var obviousInvalidPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^0{8,}`),
	regexp.MustCompile(`^1{8,}`),
	regexp.MustCompile(`^[0-2]{13}$`),
	regexp.MustCompile(`^9{8,}`),
}

// Validate classifies a decoded barcode payload. Registration bypasses the
// pattern rejection: a catalog entry is accepted no matter what it looks
// like. The function never panics; any internal failure reads as a reject
// with ReasonValidationErr.
func Validate(code string, catalog Catalog) (accepted bool, reason string) {
	defer func() {
		if r := recover(); r != nil {
			accepted, reason = false, ReasonValidationErr
		}
	}()

	if len(code) < 10 || len(code) > 15 {
		return false, ReasonLengthError
	}

	for _, ch := range code {
		if ch < '0' || ch > '9' {
			return false, ReasonNonNumeric
		}
	}

	if catalog.Contains(code) {
		return true, ReasonRegistered
	}

	for _, pattern := range obviousInvalidPatterns {
		if pattern.MatchString(code) {
			return false, ReasonInvalidPattern
		}
	}

	switch len(code) {
	case 13:
		return true, ReasonStandard13
	case 12:
		return true, ReasonStandard12
	}
	return true, ReasonGeneric
}
