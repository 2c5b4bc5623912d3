package catalog

import (
	"context"
	"strconv"
)

// Repository defines service catalog lookup operations
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Service, error)
}

// ErrServiceNotFound indicates missing catalog service
type ErrServiceNotFound struct {
	ServiceID int64
}

func (e ErrServiceNotFound) Error() string {
	return "service not found: " + strconv.FormatInt(e.ServiceID, 10)
}
