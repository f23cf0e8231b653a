package policy

// Combined fans every event out to a list of contained policies, in order.
type Combined struct {
	policies []Policy
}

func NewCombined(policies ...Policy) *Combined {
	return &Combined{policies: policies}
}

// Contained returns the policy at the provided index, as passed to
// NewCombined.
func (c *Combined) Contained(index int) Policy {
	return c.policies[index]
}

func (c *Combined) OnAllocate(n, alignment int, p []byte) {
	for _, policy := range c.policies {
		policy.OnAllocate(n, alignment, p)
	}
}

func (c *Combined) OnDeallocate(p []byte, n int) {
	for _, policy := range c.policies {
		policy.OnDeallocate(p, n)
	}
}

func (c *Combined) OnReset() {
	for _, policy := range c.policies {
		policy.OnReset()
	}
}
