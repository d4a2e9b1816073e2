package serve

import "sync"

// channelOwners ties each messaging channel in use to one organization, so
// an authenticated caller can neither stream nor publish into a channel
// another organization is using. A claim lasts while any run or subscriber
// holds it.
type channelOwners struct {
	mu     sync.Mutex
	claims map[string]*channelClaim
}

type channelClaim struct {
	org  string
	refs int
}

func newChannelOwners() *channelOwners {
	return &channelOwners{claims: make(map[string]*channelClaim)}
}

// acquire claims channel for org, or joins org's existing claim. It reports
// false when another organization holds the channel.
func (o *channelOwners) acquire(channel, org string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	c, ok := o.claims[channel]
	if !ok {
		o.claims[channel] = &channelClaim{org: org, refs: 1}
		return true
	}
	if c.org != org {
		return false
	}
	c.refs++
	return true
}

// release drops one reference taken by acquire.
func (o *channelOwners) release(channel string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	c, ok := o.claims[channel]
	if !ok {
		return
	}
	if c.refs--; c.refs <= 0 {
		delete(o.claims, channel)
	}
}
