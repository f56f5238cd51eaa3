package kpi

import (
	"context"

	"kpitracker/internal/domain/directory"
)

// ValidateAssignment enforces the role/user exclusivity rule: a role
// assignment carries a role and no user, a user assignment the reverse.
func ValidateAssignment(a *Assignment) error {
	switch a.Type {
	case AssignmentRole:
		if a.RoleID == nil || *a.RoleID == "" {
			return Invalid("role_id", "role is required for role assignments")
		}
		if a.UserID != nil {
			return Invalid("user_id", "user must be empty for role assignments")
		}
	case AssignmentUser:
		if a.UserID == nil || *a.UserID == "" {
			return Invalid("user_id", "user is required for user assignments")
		}
		if a.RoleID != nil {
			return Invalid("role_id", "role must be empty for user assignments")
		}
	default:
		return Invalid("assignment_type", "must be 'role' or 'user'")
	}
	return nil
}

// UserDirectory is the slice of the user store the resolver needs.
type UserDirectory interface {
	UsersWithRole(ctx context.Context, roleID string) ([]directory.User, error)
	UserByID(ctx context.Context, id string) (directory.User, error)
}

// Resolver expands assignments to the concrete users responsible for
// reporting on a KPI.
type Resolver struct {
	Store StoreAPI
	Users UserDirectory
}

func NewResolver(store StoreAPI, users UserDirectory) *Resolver {
	return &Resolver{Store: store, Users: users}
}

// ResponsibleUsers returns the union of users covered by the KPI's
// active assignments: every active holder of an assigned role plus
// every individually assigned active user, deduplicated by id.
func (r *Resolver) ResponsibleUsers(ctx context.Context, kpiID string) ([]directory.User, error) {
	active := true
	assignments, err := r.Store.ListAssignments(ctx, AssignmentFilter{KPIID: kpiID, IsActive: &active})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var users []directory.User
	for _, a := range assignments {
		switch a.Type {
		case AssignmentRole:
			holders, err := r.Users.UsersWithRole(ctx, *a.RoleID)
			if err != nil {
				return nil, err
			}
			for _, u := range holders {
				if !seen[u.ID] {
					seen[u.ID] = true
					users = append(users, u)
				}
			}
		case AssignmentUser:
			u, err := r.Users.UserByID(ctx, *a.UserID)
			if err != nil {
				continue
			}
			if u.IsActive && !seen[u.ID] {
				seen[u.ID] = true
				users = append(users, u)
			}
		}
	}
	return users, nil
}

// UserCanReport reports whether the actor is covered by the assignment,
// directly or through their role.
func UserCanReport(a *Assignment, actor directory.Actor) bool {
	if !a.IsActive {
		return false
	}
	switch a.Type {
	case AssignmentUser:
		return a.UserID != nil && *a.UserID == actor.UserID
	case AssignmentRole:
		return a.RoleID != nil && *a.RoleID == actor.RoleID
	default:
		return false
	}
}
