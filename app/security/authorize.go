package security

import "github.com/soundvault/ms-go-auth/app/entity"

// CanMutate is the mutation policy shared by every owned resource: the
// resource's own creator or an administrator may mutate it, nobody else.
func CanMutate(actorID, actorRole, ownerID string) bool {
	return actorRole == entity.RoleAdmin || actorID == ownerID
}
