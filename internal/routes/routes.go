// Package routes holds the client route table and the authentication gate
// the SPA consults before rendering a page.
package routes

import "strings"

// Decision is the outcome of resolving a path: either render it, or navigate
// to RedirectTo instead.
type Decision struct {
	Path       string `json:"path"`
	Allowed    bool   `json:"allowed"`
	RedirectTo string `json:"redirectTo,omitempty"`
}

var publicPaths = map[string]struct{}{
	"/":       {},
	"/signup": {},
	"/login":  {},
}

var protectedPaths = map[string]struct{}{
	"/dashboard":           {},
	"/lifestyle-analysis":  {},
	"/personal-challenges": {},
	"/community":           {},
	"/resources":           {},
	"/profile":             {},
	"/profile/edit":        {},
	"/carbon-footprint":    {},
}

// Resolve applies the gate: unauthenticated access to a protected path goes
// to /login, unknown paths go to /, and a signed-in user landing on / is
// taken straight to the dashboard.
func Resolve(path string, authenticated bool) Decision {
	normalized := normalize(path)

	if normalized == "/" && authenticated {
		return Decision{Path: normalized, Allowed: false, RedirectTo: "/dashboard"}
	}
	if _, ok := publicPaths[normalized]; ok {
		return Decision{Path: normalized, Allowed: true}
	}
	if _, ok := protectedPaths[normalized]; ok {
		if !authenticated {
			return Decision{Path: normalized, Allowed: false, RedirectTo: "/login"}
		}
		return Decision{Path: normalized, Allowed: true}
	}
	return Decision{Path: normalized, Allowed: false, RedirectTo: "/"}
}

// Protected reports whether a path requires an authenticated session.
func Protected(path string) bool {
	_, ok := protectedPaths[normalize(path)]
	return ok
}

func normalize(path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "/"
	}
	if !strings.HasPrefix(trimmed, "/") {
		trimmed = "/" + trimmed
	}
	if len(trimmed) > 1 {
		trimmed = strings.TrimRight(trimmed, "/")
	}
	return trimmed
}
