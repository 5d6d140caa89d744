package payments

import (
	"strings"

	"github.com/ovenly/backend/pkg/mpesa"
)

// resultStillProcessing is the query result code Daraja returns while the
// customer has not answered the prompt yet.
const resultStillProcessing = 4999

var pendingPhrases = []string{
	"processing",
	"being processed",
	"pending",
	"in progress",
	"not yet",
	"awaiting",
	"under process",
}

var failurePhrases = []string{
	"cancel",
	"fail",
	"insufficient",
	"timeout",
	"timed out",
	"expired",
	"declined",
	"rejected",
	"invalid",
	"wrong pin",
	"unable to lock",
}

// Classify maps a provider result code and description to an outcome.
// Code 0 is the only success; without a code the description decides, and
// anything unrecognized stays pending so no payment is written off.
func Classify(code mpesa.ResultCode, desc string) Outcome {
	if code.Valid {
		switch code.Value {
		case 0:
			return OutcomeSuccess
		case resultStillProcessing:
			return OutcomePending
		default:
			return OutcomeFailed
		}
	}
	return classifyText(desc)
}

// ClassifyStatus classifies a status-query answer. Provider error bodies
// ("Invalid Access Token", "request timed out") describe the API call, not
// the payment, so they stay pending whatever their wording.
func ClassifyStatus(status *mpesa.STKStatus) Outcome {
	if status == nil || status.ProviderError() {
		return OutcomePending
	}
	if status.ResultCode.Valid {
		return Classify(status.ResultCode, status.ResultDesc)
	}
	return classifyText(status.ResultDesc)
}

func classifyText(desc string) Outcome {
	text := strings.ToLower(strings.TrimSpace(desc))
	if text == "" {
		return OutcomePending
	}
	for _, phrase := range pendingPhrases {
		if strings.Contains(text, phrase) {
			return OutcomePending
		}
	}
	for _, phrase := range failurePhrases {
		if strings.Contains(text, phrase) {
			return OutcomeFailed
		}
	}
	return OutcomePending
}
