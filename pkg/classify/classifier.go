// Package classify holds the classification collaborator. The pipeline
// consumes it as a pure decision function; the bundled implementation is a
// keyword matcher over subject and body.
package classify

import (
	"strings"

	"github.com/ShriramNarkhede/Email-OneBox/pkg/email"
)

// KeywordClassifier assigns categories by keyword matching. First matching
// category wins; match order is Interested, Meeting Booked, Not Interested,
// Out of Office, Spam, so an enthusiastic reply that also mentions a meeting
// counts as Interested.
type KeywordClassifier struct{}

// NewKeywordClassifier returns the keyword-based classifier.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

// notInterestedPhrases is checked before the table: "not interested" would
// otherwise match the "interested" keyword.
var notInterestedPhrases = []string{
	"not interested",
	"no thank",
	"remove me",
	"not a good fit",
	"pass on this",
	"decline",
}

var categoryKeywords = []struct {
	category email.Category
	keywords []string
}{
	{email.CategoryInterested, []string{
		"interested",
		"sounds good",
		"let's discuss",
		"would like to",
		"want to know more",
		"tell me more",
		"looking forward",
		"excited about",
		"great opportunity",
		"sounds interesting",
		"shortlisted",
	}},
	{email.CategoryMeetingBooked, []string{
		"meeting",
		"schedule",
		"calendar",
		"appointment",
		"interview scheduled",
		"confirmed",
		"booked",
		"see you on",
	}},
	{email.CategoryNotInterested, notInterestedPhrases},
	{email.CategoryOutOfOffice, []string{
		"out of office",
		"vacation",
		"away from",
		"automatic reply",
		"will respond when",
		"currently unavailable",
		"on leave",
	}},
	{email.CategorySpam, []string{
		"click here",
		"buy now",
		"limited offer",
		"you won",
		"free money",
		"act now",
		"special promotion",
		"% off",
		"unsubscribe",
	}},
}

// Classify never returns an error; unmatched messages are Uncategorized.
func (c *KeywordClassifier) Classify(msg *email.Message) (email.Category, error) {
	combined := strings.ToLower(msg.Body + " " + msg.Subject)

	for _, kw := range notInterestedPhrases {
		if strings.Contains(combined, kw) {
			return email.CategoryNotInterested, nil
		}
	}
	for _, entry := range categoryKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(combined, kw) {
				return entry.category, nil
			}
		}
	}
	return email.CategoryUncategorized, nil
}
