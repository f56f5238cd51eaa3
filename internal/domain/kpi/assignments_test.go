package kpi

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"kpitracker/internal/domain/directory"
)

func TestValidateAssignment(t *testing.T) {
	cases := []struct {
		name       string
		assignment Assignment
		wantField  string
	}{
		{"valid role", Assignment{Type: AssignmentRole, RoleID: strPtr("r1")}, ""},
		{"valid user", Assignment{Type: AssignmentUser, UserID: strPtr("u1")}, ""},
		{"role without role id", Assignment{Type: AssignmentRole}, "role_id"},
		{"role with user id", Assignment{Type: AssignmentRole, RoleID: strPtr("r1"), UserID: strPtr("u1")}, "user_id"},
		{"user without user id", Assignment{Type: AssignmentUser}, "user_id"},
		{"user with role id", Assignment{Type: AssignmentUser, UserID: strPtr("u1"), RoleID: strPtr("r1")}, "role_id"},
		{"unknown type", Assignment{Type: "team"}, "assignment_type"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateAssignment(&tc.assignment)
			if tc.wantField == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrValidation)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			require.Equal(t, tc.wantField, verr.Field)
		})
	}
}

func TestResponsibleUsersUnion(t *testing.T) {
	store := newMemStore()
	users := newMemDirectory(
		directory.User{ID: "u1", Email: "ann@example.com", RoleID: "r-agent", IsActive: true},
		directory.User{ID: "u2", Email: "bob@example.com", RoleID: "r-agent", IsActive: true},
		directory.User{ID: "u3", Email: "cat@example.com", RoleID: "r-other", IsActive: true},
		directory.User{ID: "u4", Email: "dan@example.com", RoleID: "r-agent", IsActive: false},
	)
	k := seedManualKPI(t, store, PeriodWeekly)

	roleAsgn := Assignment{KPIID: k.ID, Type: AssignmentRole, RoleID: strPtr("r-agent"), IsActive: true}
	require.NoError(t, store.CreateAssignment(context.Background(), &roleAsgn))
	// u1 is also individually assigned; the union must not duplicate them.
	userAsgn := Assignment{KPIID: k.ID, Type: AssignmentUser, UserID: strPtr("u1"), IsActive: true}
	require.NoError(t, store.CreateAssignment(context.Background(), &userAsgn))
	outsideAsgn := Assignment{KPIID: k.ID, Type: AssignmentUser, UserID: strPtr("u3"), IsActive: true}
	require.NoError(t, store.CreateAssignment(context.Background(), &outsideAsgn))

	resolved, err := NewResolver(store, users).ResponsibleUsers(context.Background(), k.ID)
	require.NoError(t, err)

	ids := make([]string, len(resolved))
	for i, u := range resolved {
		ids[i] = u.ID
	}
	require.ElementsMatch(t, []string{"u1", "u2", "u3"}, ids)
}

func TestResponsibleUsersIgnoresInactiveAssignments(t *testing.T) {
	store := newMemStore()
	users := newMemDirectory(
		directory.User{ID: "u1", Email: "ann@example.com", RoleID: "r-agent", IsActive: true},
	)
	k := seedManualKPI(t, store, PeriodWeekly)
	asgn := Assignment{KPIID: k.ID, Type: AssignmentRole, RoleID: strPtr("r-agent"), IsActive: false}
	require.NoError(t, store.CreateAssignment(context.Background(), &asgn))

	resolved, err := NewResolver(store, users).ResponsibleUsers(context.Background(), k.ID)
	require.NoError(t, err)
	require.Empty(t, resolved)
}

func TestUserCanReport(t *testing.T) {
	agent := directory.Actor{UserID: "u1", RoleID: "r-agent"}

	roleAsgn := Assignment{Type: AssignmentRole, RoleID: strPtr("r-agent"), IsActive: true}
	require.True(t, UserCanReport(&roleAsgn, agent))

	otherRole := Assignment{Type: AssignmentRole, RoleID: strPtr("r-other"), IsActive: true}
	require.False(t, UserCanReport(&otherRole, agent))

	userAsgn := Assignment{Type: AssignmentUser, UserID: strPtr("u1"), IsActive: true}
	require.True(t, UserCanReport(&userAsgn, agent))

	otherUser := Assignment{Type: AssignmentUser, UserID: strPtr("u2"), IsActive: true}
	require.False(t, UserCanReport(&otherUser, agent))

	inactive := Assignment{Type: AssignmentUser, UserID: strPtr("u1"), IsActive: false}
	require.False(t, UserCanReport(&inactive, agent))
}
