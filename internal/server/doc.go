// Package server receives the redirect from Spotify's consent page during an interactive login.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering.
//
// # OAuth Callback Handler
//
// [OAuthHandler] validates the state parameter, hands the code to an [Exchanger], and sends the outcome through a
// channel. It only processes one callback.
//
// [CallbackServer] binds the host of the configured redirect URI (e.g. 127.0.0.1:3000), serves the handler, and
// shuts down once [CallbackServer.Wait] returns.
package server
