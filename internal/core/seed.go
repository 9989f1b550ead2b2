package core

import (
	"context"
	"log/slog"
	"time"

	"github.com/learnsphere/moderation/internal/model"
)

// DemoUsers returns the accounts seeded into an empty store.
func DemoUsers(joined time.Time) []model.Actor {
	joined = joined.UTC()

	return []model.Actor{
		{ID: "u-admin", Name: "Alex Morgan", Email: "admin@learnsphere.com", Role: model.RoleAdmin, Status: model.ActorActive, JoinDate: joined},
		{ID: "u-sarah", Name: "Sarah Johnson", Email: "sarah.johnson@learnsphere.com", Role: model.RoleInstructor, Status: model.ActorActive, JoinDate: joined},
		{ID: "u-michael", Name: "Michael Chen", Email: "michael.chen@learnsphere.com", Role: model.RoleInstructor, Status: model.ActorActive, JoinDate: joined},
		{ID: "u-emma", Name: "Emma Wilson", Email: "emma.wilson@learnsphere.com", Role: model.RoleStudent, Status: model.ActorActive, JoinDate: joined},
		{ID: "u-james", Name: "James Brown", Email: "james.brown@learnsphere.com", Role: model.RoleStudent, Status: model.ActorActive, JoinDate: joined},
	}
}

// Seed writes the demo accounts if no user exists yet.
func (c *Context) Seed(ctx context.Context) (bool, error) {
	var (
		seeded bool
		err    error
	)
	c.Exclusive(func() {
		seeded, err = c.Catalog.Seed(c.WithOrigin(ctx), DemoUsers(time.Now()))
	})
	if err != nil {
		return false, err
	}

	if seeded {
		c.logger.Info("seeded demo users", slog.Int("count", len(DemoUsers(time.Time{}))))
	}

	return seeded, nil
}
