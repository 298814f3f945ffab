package clientcache

import "github.com/dmitrymomot/essayauditor/pkg/quota"

// Command transforms a snapshot into its optimistic post-command shape. Apply
// must be a pure function of its input so a rollback is just restoring the
// previous snapshot.
type Command interface {
	Apply(record quota.Record) quota.Record
}

// CancelCommand anticipates a cancellation: back to the free baseline with
// the subscription identity dropped. Usage already consumed stays counted.
type CancelCommand struct{}

func (CancelCommand) Apply(record quota.Record) quota.Record {
	record.Tier = quota.TierFree
	record.Threshold = quota.ThresholdFor(quota.TierFree)
	record.Billing = quota.FreeBilling{}
	return record
}

// UpgradeCommand anticipates a plan change to the given tier. The usage
// counter resets because the new plan starts a fresh allowance; the
// subscription identity is kept until the webhook confirms the real one.
type UpgradeCommand struct {
	Tier quota.Tier
}

func (c UpgradeCommand) Apply(record quota.Record) quota.Record {
	record.Tier = c.Tier
	record.Threshold = quota.ThresholdFor(c.Tier)
	record.NumUsages = 0
	return record
}
