package domain

// MessageTag classifies a drip message by what it nags the customer about.
// Tags are what the stale-trigger cleanup operates on: entering a status
// deletes still-pending messages whose tag that status obsoletes.
type MessageTag string

const (
	TagPaymentReminder  MessageTag = "payment_reminder"
	TagFactsReminder    MessageTag = "facts_reminder"
	TagDemoFollowup     MessageTag = "demo_followup"
	TagProductionUpdate MessageTag = "production_update"
	TagDeliveryFollowup MessageTag = "delivery_followup"
	TagReviewRequest    MessageTag = "review_request"
)

// AllMessageTags lists every known tag. Used by exhaustive tests and by
// template seed validation.
var AllMessageTags = []MessageTag{
	TagPaymentReminder,
	TagFactsReminder,
	TagDemoFollowup,
	TagProductionUpdate,
	TagDeliveryFollowup,
	TagReviewRequest,
}

// KnownMessageTag reports whether tag is part of the closed tag enumeration.
func KnownMessageTag(tag MessageTag) bool {
	for _, known := range AllMessageTags {
		if tag == known {
			return true
		}
	}
	return false
}

// obsoletedByStatus is the literal cleanup table: new status to the set of
// message tags whose still-pending messages it makes obsolete.
//
// This is business data, not a derivable rule. Paying obsoletes payment
// nagging but leaves post-purchase messages alone; cancellation and refund
// obsolete everything; completion obsoletes everything except the review
// request, which is the one message still worth sending afterward.
// Statuses absent from the table obsolete nothing.
var obsoletedByStatus = map[OrderStatus][]MessageTag{
	StatusPaid: {
		TagPaymentReminder,
	},
	StatusInProduction: {
		TagPaymentReminder,
		TagFactsReminder,
		TagDemoFollowup,
	},
	StatusDelivered: {
		TagPaymentReminder,
		TagFactsReminder,
		TagDemoFollowup,
		TagProductionUpdate,
	},
	StatusCompleted: {
		TagPaymentReminder,
		TagFactsReminder,
		TagDemoFollowup,
		TagProductionUpdate,
		TagDeliveryFollowup,
	},
	StatusCancelled: {
		TagPaymentReminder,
		TagFactsReminder,
		TagDemoFollowup,
		TagProductionUpdate,
		TagDeliveryFollowup,
		TagReviewRequest,
	},
	StatusRefunded: {
		TagPaymentReminder,
		TagFactsReminder,
		TagDemoFollowup,
		TagProductionUpdate,
		TagDeliveryFollowup,
		TagReviewRequest,
	},
}

// ObsoletedTags returns the message tags made obsolete by entering status.
// The returned slice is a copy; callers may not mutate the table through it.
// A status not covered by the table returns nil.
func ObsoletedTags(status OrderStatus) []MessageTag {
	tags, ok := obsoletedByStatus[status]
	if !ok {
		return nil
	}
	out := make([]MessageTag, len(tags))
	copy(out, tags)
	return out
}
