/*
Package ratelimit groups the pieces of portalguard's distributed limiter.

A check flows through the subpackages in order:

	transport  adapts an HTTP request to keys.Request
	keys       derives the client identity
	limiter    consults the block list, then increments the window counter
	distributed  talks to the shared Redis store

Windows are fixed and aligned to the Unix epoch, so every instance agrees on
the current window without coordination:

	index := nowMs / windowMs
	key   := prefix:policy:identity:index

A request is admitted while the window count is at most the policy's limit.
The first request over the limit is denied and, for policies with a block
duration, puts the identity on the shared block list.

When the shared store cannot be reached within its timeout the limiter
admits the request and logs a warning. Availability of the portal wins over
strict enforcement; policies can opt out with FailClosed.
*/
package ratelimit
