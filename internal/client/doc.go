// package client is the request engine every Spotify endpoint call goes through.
//
// An [Executor] attaches a valid bearer token, sends through the build's [transport.Sender], absorbs 429 responses
// by waiting out Retry-After and recovers from one rejected token per call by forcing a refresh. [AppClient] and
// [UserClient] wire an executor to a client credentials or a user-delegated grant respectively; only the latter
// can reach user endpoints.
package client
