// Package resource classifies uploaded assets against per-category rules.
// Every function here is pure.
package resource

import (
	"encoding/base64"
	"fmt"
)

// Rejection reasons, in the order the rules are evaluated.
const (
	ReasonCategory  = "category"
	ReasonName      = "name"
	ReasonSize      = "size"
	ReasonExtension = "extension"
	ReasonEncoding  = "encoding"
	ReasonStructure = "structural check"
)

// Result is the outcome of validating one upload.
type Result struct {
	Accepted bool
	// Reason names the rule that rejected the upload.
	Reason string
	Detail string
}

// Accepted returns a passing result.
func Accepted() Result {
	return Result{Accepted: true}
}

// Rejected returns a failing result for the given rule.
func Rejected(reason, detail string) Result {
	return Result{Reason: reason, Detail: detail}
}

// Validate checks an upload against its category's rules. sizeBytes is the
// declared size; the larger of it and len(data) is compared to the ceiling.
func Validate(category, declaredName string, data []byte, sizeBytes int64) Result {
	rule, res := precheck(category, declaredName, max(sizeBytes, int64(len(data))))
	if !res.Accepted {
		return res
	}
	if !rule.Signature.Match(data) {
		return Rejected(ReasonStructure, fmt.Sprintf("content is not a valid %s image", category))
	}
	return Accepted()
}

// ValidateEncoded decodes base64 content and validates it. The declared size is
// checked before decoding, so oversize uploads are rejected without allocation.
// The decoded bytes are returned only when the upload is accepted.
func ValidateEncoded(category, declaredName, encoded string, sizeBytes int64) (Result, []byte) {
	if _, res := precheck(category, declaredName, sizeBytes); !res.Accepted {
		return res, nil
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Rejected(ReasonEncoding, "file data is not valid base64"), nil
	}

	res := Validate(category, declaredName, data, sizeBytes)
	if !res.Accepted {
		return res, nil
	}
	return res, data
}

func precheck(category, declaredName string, size int64) (Rule, Result) {
	rule, ok := Lookup(category)
	if !ok {
		return rule, Rejected(ReasonCategory, fmt.Sprintf("unknown category %q", category))
	}
	if err := CheckName(declaredName); err != nil {
		return rule, Rejected(ReasonName, err.Error())
	}
	if size < 0 {
		return rule, Rejected(ReasonSize, "size is negative")
	}
	if size > rule.MaxSize {
		return rule, Rejected(ReasonSize, fmt.Sprintf("%d bytes exceeds the %d byte limit", size, rule.MaxSize))
	}
	if ext := Extension(declaredName); !rule.AllowsExtension(ext) {
		return rule, Rejected(ReasonExtension, fmt.Sprintf("%q is not allowed for %s", ext, category))
	}
	return rule, Accepted()
}
