package rights

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/bel-commons/bel-commons/internal/db"
)

type fakeStore struct {
	networks map[int64]db.Network
	shares   map[int64][]string
	projects map[int64][]string
}

func (s *fakeStore) GetNetwork(_ context.Context, id int64) (db.Network, error) {
	n, ok := s.networks[id]
	if !ok {
		return db.Network{}, errors.New("no rows in result set")
	}
	return n, nil
}

func (s *fakeStore) NetworkSharedWith(_ context.Context, arg db.NetworkSharedWithParams) (bool, error) {
	for _, u := range s.shares[arg.NetworkID] {
		if u == arg.UserID {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) NetworkInUserProject(_ context.Context, arg db.NetworkInUserProjectParams) (bool, error) {
	for _, u := range s.projects[arg.NetworkID] {
		if u == arg.UserID {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) ListVisibleNetworks(_ context.Context, userID string) ([]db.Network, error) {
	var out []db.Network
	for id, n := range s.networks {
		visible := n.Public || (n.UploaderID.Valid && n.UploaderID.String == userID)
		if !visible {
			if ok, _ := s.NetworkSharedWith(context.Background(), db.NetworkSharedWithParams{NetworkID: id, UserID: userID}); ok {
				visible = true
			}
		}
		if !visible {
			if ok, _ := s.NetworkInUserProject(context.Background(), db.NetworkInUserProjectParams{NetworkID: id, UserID: userID}); ok {
				visible = true
			}
		}
		if visible {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *fakeStore) ListAllNetworks(_ context.Context) ([]db.Network, error) {
	out := make([]db.Network, 0, len(s.networks))
	for _, n := range s.networks {
		out = append(out, n)
	}
	return out, nil
}

func uploader(id string) pgtype.Text {
	return pgtype.Text{String: id, Valid: true}
}

func testStore() *fakeStore {
	return &fakeStore{
		networks: map[int64]db.Network{
			1: {ID: 1, Public: true},
			2: {ID: 2, UploaderID: uploader("alice")},
			3: {ID: 3, UploaderID: uploader("bob")},
			4: {ID: 4, UploaderID: uploader("bob")},
			5: {ID: 5, UploaderID: uploader("bob")},
		},
		shares:   map[int64][]string{3: {"alice"}},
		projects: map[int64][]string{4: {"alice", "carol"}},
	}
}

func TestMayAccess(t *testing.T) {
	c := NewChecker(testStore())
	alice := Subject{ID: "alice", Role: "user"}

	tests := []struct {
		name    string
		sub     Subject
		network int64
		want    bool
	}{
		{"Public", alice, 1, true},
		{"OwnUpload", alice, 2, true},
		{"DirectShare", alice, 3, true},
		{"ProjectTransitive", alice, 4, true},
		{"NoGrant", alice, 5, false},
		{"AdminShortCircuit", Subject{ID: "root", Role: RoleAdmin}, 5, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := c.MayAccess(context.Background(), tc.sub, tc.network)
			if err != nil {
				t.Fatalf("MayAccess failed: %v", err)
			}
			if got != tc.want {
				t.Fatalf("MayAccess = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestVisibleNetworksUnion(t *testing.T) {
	c := NewChecker(testStore())

	visible, err := c.VisibleNetworks(context.Background(), Subject{ID: "alice", Role: "user"})
	if err != nil {
		t.Fatalf("VisibleNetworks failed: %v", err)
	}
	if len(visible) != 4 {
		t.Fatalf("alice sees %d networks, want 4", len(visible))
	}

	all, err := c.VisibleNetworks(context.Background(), Subject{ID: "root", Role: RoleAdmin})
	if err != nil {
		t.Fatalf("VisibleNetworks failed: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("admin sees %d networks, want all 5", len(all))
	}
}

func TestMayModify(t *testing.T) {
	c := NewChecker(testStore())
	ctx := context.Background()

	if ok, _ := c.MayModify(ctx, Subject{ID: "alice", Role: "user"}, 2); !ok {
		t.Fatal("uploader may not modify own network")
	}
	// A direct share grants read, never write.
	if ok, _ := c.MayModify(ctx, Subject{ID: "alice", Role: "user"}, 3); ok {
		t.Fatal("share recipient may modify")
	}
	if ok, _ := c.MayModify(ctx, Subject{ID: "root", Role: RoleAdmin}, 3); !ok {
		t.Fatal("admin may not modify")
	}
}

func TestMayRunAssembly(t *testing.T) {
	c := NewChecker(testStore())
	ctx := context.Background()
	alice := Subject{ID: "alice", Role: "user"}

	if ok, _ := c.MayRunAssembly(ctx, alice, []int64{1, 2, 3, 4}); !ok {
		t.Fatal("accessible assembly rejected")
	}
	// One forbidden network poisons the whole assembly.
	if ok, _ := c.MayRunAssembly(ctx, alice, []int64{1, 5}); ok {
		t.Fatal("assembly with forbidden network allowed")
	}
	if ok, _ := c.MayRunAssembly(ctx, Subject{ID: "root", Role: RoleAdmin}, []int64{1, 5}); !ok {
		t.Fatal("admin assembly rejected")
	}
}
