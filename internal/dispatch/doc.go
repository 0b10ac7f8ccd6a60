// Package dispatch delivers reminder occurrences to an outbound channel.
//
// The engine treats delivery as a blocking call; the service applies a
// token-bucket rate limit and bounded retry with jittered backoff around
// whichever channel (log, webhook, telegram) is configured.
package dispatch
