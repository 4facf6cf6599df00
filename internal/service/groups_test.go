package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ReilBleem13/ChatRelay/internal/domain"
	"github.com/ReilBleem13/ChatRelay/internal/logger"
)

func newGroupFixture(t *testing.T, groups ...*domain.ChatGroup) (*GroupService, *fakeGroupRepo, *fakeCache, *fakePresence) {
	t.Helper()

	repo := newFakeGroupRepo(groups...)
	cache := newFakeCache()
	presence := newFakePresence()
	svc := NewGroupService(repo, cache, presence, time.Hour, logger.NewNop())
	svc.now = func() time.Time { return testNow }
	return svc, repo, cache, presence
}

func TestCreateGroup(t *testing.T) {
	svc, repo, _, _ := newGroupFixture(t)

	g, err := svc.CreateGroup(context.Background(), &CreateGroupDTO{
		CreatorID:   1,
		CreatorName: "alice",
		Name:        "  team  ",
	})
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if g.ID == 0 || g.Name != "team" || g.MaxMembers != domain.DefaultMaxMembers {
		t.Fatalf("unexpected group %+v", g)
	}
	if role, _ := g.RoleOf(1); role != domain.RoleOwner {
		t.Fatalf("creator role = %s", role)
	}
	if _, err := repo.GetByID(context.Background(), g.ID); err != nil {
		t.Fatalf("group not stored: %v", err)
	}

	if _, err := svc.CreateGroup(context.Background(), &CreateGroupDTO{CreatorID: 1, CreatorName: "alice"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("missing name: err = %v", err)
	}
}

func TestGetGroupHidesPrivateGroups(t *testing.T) {
	g := testGroup(t)
	g.IsPrivate = true
	svc, _, _, _ := newGroupFixture(t, g)

	if _, err := svc.GetGroup(context.Background(), 10, 42); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("outsider: err = %v", err)
	}
	if _, err := svc.GetGroup(context.Background(), 10, 3); err != nil {
		t.Fatalf("member: %v", err)
	}
}

func TestAddMemberPermissions(t *testing.T) {
	tests := []struct {
		name    string
		private bool
		in      AddMemberDTO
		want    error
	}{
		{
			name: "admin adds member",
			in:   AddMemberDTO{ActorID: 2, UserID: 4, Username: "dave"},
		},
		{
			name: "owner adds admin",
			in:   AddMemberDTO{ActorID: 1, UserID: 4, Username: "dave", Role: domain.RoleAdmin},
		},
		{
			name: "admin cannot add admin",
			in:   AddMemberDTO{ActorID: 2, UserID: 4, Username: "dave", Role: domain.RoleAdmin},
			want: domain.ErrForbidden,
		},
		{
			name: "plain member cannot add others",
			in:   AddMemberDTO{ActorID: 3, UserID: 4, Username: "dave"},
			want: domain.ErrForbidden,
		},
		{
			name: "self join public group",
			in:   AddMemberDTO{ActorID: 4, UserID: 4, Username: "dave"},
		},
		{
			name:    "self join private group",
			private: true,
			in:      AddMemberDTO{ActorID: 4, UserID: 4, Username: "dave"},
			want:    domain.ErrForbidden,
		},
		{
			name: "already a member",
			in:   AddMemberDTO{ActorID: 1, UserID: 3, Username: "carol"},
			want: domain.ErrAlreadyExists,
		},
		{
			name: "owner role is not assignable",
			in:   AddMemberDTO{ActorID: 1, UserID: 4, Username: "dave", Role: domain.RoleOwner},
			want: domain.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := testGroup(t)
			g.IsPrivate = tt.private
			svc, repo, _, _ := newGroupFixture(t, g)

			in := tt.in
			in.GroupID = 10
			_, err := svc.AddMember(context.Background(), &in)
			if tt.want != nil {
				if !errors.Is(err, tt.want) {
					t.Fatalf("err = %v, want %v", err, tt.want)
				}
				return
			}
			if err != nil {
				t.Fatalf("AddMember: %v", err)
			}
			stored, _ := repo.GetByID(context.Background(), 10)
			if !stored.IsMember(4) {
				t.Fatal("member was not stored")
			}
		})
	}
}

func TestConcurrentJoinsAreAllKept(t *testing.T) {
	svc, repo, _, _ := newGroupFixture(t, testGroup(t))
	ctx := context.Background()

	const joiners = 20
	start := make(chan struct{})
	errs := make(chan error, joiners)
	var wg sync.WaitGroup
	for i := 0; i < joiners; i++ {
		userID := 20 + i
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.AddMember(ctx, &AddMemberDTO{
				GroupID:  10,
				ActorID:  userID,
				UserID:   userID,
				Username: fmt.Sprintf("user%d", userID),
			})
			errs <- err
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("AddMember: %v", err)
		}
	}

	stored, _ := repo.GetByID(ctx, 10)
	if len(stored.Members) != 3+joiners {
		t.Fatalf("members = %d, want %d", len(stored.Members), 3+joiners)
	}
	for i := 0; i < joiners; i++ {
		if !stored.IsMember(20 + i) {
			t.Fatalf("join of user %d was lost", 20+i)
		}
	}
}

func TestConcurrentJoinAndLeave(t *testing.T) {
	svc, repo, _, _ := newGroupFixture(t, testGroup(t))
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if _, err := svc.AddMember(ctx, &AddMemberDTO{GroupID: 10, ActorID: 20, UserID: 20, Username: "erin"}); err != nil {
			t.Errorf("AddMember: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := svc.RemoveMember(ctx, 10, 3, 3); err != nil {
			t.Errorf("RemoveMember: %v", err)
		}
	}()
	wg.Wait()

	stored, _ := repo.GetByID(ctx, 10)
	if !stored.IsMember(20) || stored.IsMember(3) {
		t.Fatalf("members = %+v", stored.Members)
	}
}

func TestMutationInvalidatesCachedGroup(t *testing.T) {
	svc, _, cache, _ := newGroupFixture(t, testGroup(t))
	ctx := context.Background()

	if ok, err := svc.IsMember(ctx, 10, 3); err != nil || !ok {
		t.Fatalf("IsMember: %v, %v", ok, err)
	}
	if !cache.hasGroup(10) {
		t.Fatal("group not cached")
	}

	if err := svc.RemoveMember(ctx, 10, 3, 3); err != nil {
		t.Fatalf("RemoveMember: %v", err)
	}
	if cache.hasGroup(10) {
		t.Fatal("cached group survived a mutation")
	}
	if ok, _ := svc.IsMember(ctx, 10, 3); ok {
		t.Fatal("removed member still reported as member")
	}
}

func TestRoleChanges(t *testing.T) {
	svc, _, _, _ := newGroupFixture(t, testGroup(t))
	ctx := context.Background()

	if _, err := svc.PromoteMember(ctx, 10, 3, 2); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("admin promote: err = %v", err)
	}
	g, err := svc.PromoteMember(ctx, 10, 3, 1)
	if err != nil {
		t.Fatalf("PromoteMember: %v", err)
	}
	if role, _ := g.RoleOf(3); role != domain.RoleAdmin {
		t.Fatalf("role = %s", role)
	}

	if _, err := svc.DemoteMember(ctx, 10, 1, 1); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("sole owner demote: err = %v", err)
	}

	g, err = svc.TransferOwnership(ctx, 10, 1, 2)
	if err != nil {
		t.Fatalf("TransferOwnership: %v", err)
	}
	if g.OwnerCount() != 1 {
		t.Fatalf("owners = %d", g.OwnerCount())
	}
	if role, _ := g.RoleOf(1); role != domain.RoleMember {
		t.Fatalf("previous owner role = %s", role)
	}

	if err := svc.DeleteGroup(ctx, 10, 1); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("former owner delete: err = %v", err)
	}
	if err := svc.DeleteGroup(ctx, 10, 2); err != nil {
		t.Fatalf("DeleteGroup: %v", err)
	}
	if _, err := svc.GetGroup(ctx, 10, 2); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("deleted group: err = %v", err)
	}
}

func TestMarkReadAndMute(t *testing.T) {
	svc, repo, _, _ := newGroupFixture(t, testGroup(t))
	ctx := context.Background()

	if err := svc.MarkRead(ctx, 10, 3); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if err := svc.SetMuted(ctx, 10, 3, true); err != nil {
		t.Fatalf("SetMuted: %v", err)
	}
	if err := svc.SetMuted(ctx, 10, 42, true); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("outsider mute: err = %v", err)
	}

	g, _ := repo.GetByID(ctx, 10)
	m, _ := g.Member(3)
	if m.LastReadAt == nil || !m.LastReadAt.Equal(testNow) || !m.IsMuted {
		t.Fatalf("member state %+v", m)
	}
}

func TestGetOnlineUsers(t *testing.T) {
	svc, _, _, presence := newGroupFixture(t, testGroup(t))
	ctx := context.Background()

	presence.SetUserOnline(ctx, 2, 10)
	if _, err := svc.GetOnlineUsers(ctx, 10, 42); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("outsider: err = %v", err)
	}
	ids, err := svc.GetOnlineUsers(ctx, 10, 1)
	if err != nil || len(ids) != 1 || ids[0] != 2 {
		t.Fatalf("online = %v, %v", ids, err)
	}
}

func TestPersistenceErrorsAreWrapped(t *testing.T) {
	svc, repo, _, _ := newGroupFixture(t, testGroup(t))
	repo.saveErr = errBackendDown

	err := svc.SetMuted(context.Background(), 10, 3, true)
	if !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("err = %v, want ErrPersistence", err)
	}

	repo.saveErr = domain.ErrAlreadyExists
	_, err = svc.AddMember(context.Background(), &AddMemberDTO{GroupID: 10, ActorID: 1, UserID: 4, Username: "dave"})
	if !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("err = %v, want ErrAlreadyExists", err)
	}
}
