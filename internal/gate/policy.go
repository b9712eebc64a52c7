package gate

import "context"

// Policy defines authorization rules for a resource domain.
// U is the user/subject type (e.g., uint for userID, *User for full struct).
type Policy[U any] interface {
	// Can returns true if user may perform action on resource.
	// For list/create, resource may be nil (context-only check).
	Can(ctx context.Context, user U, action Action, resource any) bool
}
