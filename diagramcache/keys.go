package diagramcache

import "fmt"

// Redis key schema, matching the original deployment exactly so an
// operator migrating data between implementations sees identical keys.
func diagramKey(userID uint, diagramID string) string {
	return fmt.Sprintf("diagram:%d:%s", userID, diagramID)
}

func userMetaKey(userID uint) string {
	return fmt.Sprintf("diagrams:user:%d:meta", userID)
}

func userListKey(userID uint) string {
	return fmt.Sprintf("diagrams:user:%d:list", userID)
}

const (
	dirtySetKey      = "diagrams:dirty"
	pendingCreateKey = "diagrams:pending_create"
)

func dirtyMember(userID uint, diagramID string) string {
	return fmt.Sprintf("%d:%s", userID, diagramID)
}
