package consumer

import (
	"context"
	"time"

	"github.com/xenking/freshcart/internal/domain/apperr"
)

// ErrNotFound is returned when a consumer does not exist.
var ErrNotFound = apperr.New(apperr.KindNotFound, "consumer_not_found", "consumer not found")

// Role is the permission level of a consumer.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Consumer is a registered shopper. Identity and credentials live outside
// this service; only the fields needed for ordering and notifications are kept.
type Consumer struct {
	ID        int64
	Email     string
	Nickname  string
	Role      Role
	CreatedAt time.Time
}

// Repository provides consumer lookups.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Consumer, error)
}
