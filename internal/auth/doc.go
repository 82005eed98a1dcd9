// package auth owns the credential lifecycle for a Spotify client: the [Token] value, the three OAuth grants that
// produce one ([ClientCredentials], [AuthorizationCode] and [PKCE]) and the [Manager] that hands out a currently
// valid token to any number of concurrent callers while performing at most one renewal at a time.
package auth
