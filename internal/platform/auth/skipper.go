package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths lists URL paths that bypass authentication and tenant
// resolution. These are infrastructure endpoints that probes and load
// balancers must reach without credentials.
var publicPaths = map[string]bool{
	"/health": true,
}

// AuthSkipper returns true for requests whose path should skip
// authentication. Both JWTMiddleware and DevAuthMiddleware consult it, and
// the tenant middleware takes it as its skip function, so public endpoints
// need neither a bearer token nor a tenant-scoped connection.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}

// IsPublicPath reports whether the given path is a public infrastructure
// endpoint that should bypass auth and tenant middleware.
func IsPublicPath(path string) bool {
	return publicPaths[path]
}
