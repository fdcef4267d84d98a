/*
Package portalguard is a distributed admission-control layer for a public
portal running as several stateless instances behind a load balancer.

Every instance shares one Redis, so a limit of five login attempts per
fifteen minutes means five in total, not five per instance.

Rate Limiting (pkg/ratelimit):
  - keys: client identity from edge headers, proxy chain or peer address
  - policy: named, immutable policies and the registry of protected surfaces
  - distributed: shared fixed-window counter, block list and store health probe
  - limiter: the Check decision, fail-open handling and admin operations
  - transport: net/http and gin middleware plus the admin API

Task Scheduling (pkg/scheduling):
  - workerpool: bounded pool running exceeded hooks off the request path
  - scheduler: cron and interval scheduling for the store health probe

Example usage:

	import (
		"github.com/vnykmshr/portalguard/pkg/ratelimit/distributed"
		"github.com/vnykmshr/portalguard/pkg/ratelimit/limiter"
		"github.com/vnykmshr/portalguard/pkg/ratelimit/policy"
		"github.com/vnykmshr/portalguard/pkg/ratelimit/transport"
	)

	store := distributed.Config{Redis: rdb}
	counter, _ := distributed.NewWindowCounter(store)
	blocks, _ := distributed.NewBlockList(store)
	policies, _ := policy.NewRegistry(policy.Defaults()...)

	l, _ := limiter.New(limiter.Config{Counter: counter, Blocks: blocks, Policies: policies})
	http.Handle("/login", transport.Middleware(l, policies.MustGet(policy.Auth), transport.Options{})(login))
*/
package portalguard
