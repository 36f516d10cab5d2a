// Package httpmw holds the middleware of the public listener.
//
// httpserver.NewHandler wraps the router, outermost first, in: security
// headers, panic recovery, request ID, client IP, rate limiting, otelhttp,
// content headers, trace headers, metrics and the request logger. Inside the
// router, AnnotateHTTPRoute and AccessLog run for every route, and admin
// routes add MaxBody with their own limit.
//
// Query strings and user agents are kept out of access logs. Credential
// attributes are masked by the logger itself.
package httpmw
