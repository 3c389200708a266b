package stream

import (
	"github.com/Tributary-ai-services/datadetector/pkg/scan"
)

// TopicRouter determines which topics a finding should be published to
type TopicRouter struct {
	topics Topics
}

// NewTopicRouter creates a new topic router with the given topic configuration
func NewTopicRouter(topics Topics) *TopicRouter {
	return &TopicRouter{
		topics: topics,
	}
}

// Route returns the list of topics this finding should be published to.
//
// Routing rules:
//   - ALL findings go to topics.Findings
//   - Critical severity findings also go to topics.Critical
//   - Card, IBAN and bank account findings also go to topics.Financial
//   - National id and passport findings also go to topics.Identity
//
// Unset topics are skipped and no topic is returned twice.
func (r *TopicRouter) Route(finding Finding) []string {
	var topics []string
	add := func(t string) {
		if t == "" {
			return
		}
		for _, have := range topics {
			if have == t {
				return
			}
		}
		topics = append(topics, t)
	}

	add(r.topics.Findings)

	if finding.Severity == scan.SeverityCritical {
		add(r.topics.Critical)
	}

	switch finding.Category {
	case scan.CategoryPaymentCard, scan.CategoryIBAN, scan.CategoryBankAccount:
		add(r.topics.Financial)
	case scan.CategoryNationalID, scan.CategoryPassport:
		add(r.topics.Identity)
	}

	return topics
}
