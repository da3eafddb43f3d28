package services_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/refnet/refnet_backend/models"
	"github.com/refnet/refnet_backend/repositories"
	"github.com/refnet/refnet_backend/services"
)

func seedUser(t *testing.T, store *repositories.MemStore, username, code string) *models.User {
	t.Helper()
	u := &models.User{
		ID:           primitive.NewObjectID(),
		Username:     username,
		ReferralCode: code,
	}
	if err := store.Insert(context.Background(), u); err != nil {
		t.Fatalf("seed %s: %v", username, err)
	}
	return u
}

func TestAttachChild(t *testing.T) {
	store := repositories.NewMemStore()
	tree := services.NewReferralTree(store)
	ctx := context.Background()

	parent := seedUser(t, store, "alice", "AAAAAA")
	childID := primitive.NewObjectID()

	gotParentID, err := tree.AttachChild(ctx, "AAAAAA", childID)
	if err != nil {
		t.Fatalf("AttachChild: %v", err)
	}
	if gotParentID != parent.ID {
		t.Errorf("parent id = %s, want %s", gotParentID.Hex(), parent.ID.Hex())
	}

	updated, err := store.FindByID(ctx, parent.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if len(updated.Leg) != 1 || updated.Leg[0] != childID {
		t.Errorf("parent leg = %v, want [%s]", updated.Leg, childID.Hex())
	}
}

func TestAttachChildInvalidCode(t *testing.T) {
	store := repositories.NewMemStore()
	tree := services.NewReferralTree(store)

	_, err := tree.AttachChild(context.Background(), "NOPE00", primitive.NewObjectID())
	if !errors.Is(err, services.ErrInvalidReferralCode) {
		t.Errorf("err = %v, want ErrInvalidReferralCode", err)
	}
}

func TestAttachChildLegLimit(t *testing.T) {
	store := repositories.NewMemStore()
	tree := services.NewReferralTree(store)
	ctx := context.Background()

	seedUser(t, store, "alice", "AAAAAA")
	for i := 0; i < models.MaxLegs; i++ {
		if _, err := tree.AttachChild(ctx, "AAAAAA", primitive.NewObjectID()); err != nil {
			t.Fatalf("attach %d: %v", i, err)
		}
	}

	_, err := tree.AttachChild(ctx, "AAAAAA", primitive.NewObjectID())
	if !errors.Is(err, services.ErrReferralLimitReached) {
		t.Errorf("err = %v, want ErrReferralLimitReached", err)
	}
}

// Concurrent registrations under a nearly full parent must never exceed the
// leg capacity.
func TestAttachChildConcurrent(t *testing.T) {
	store := repositories.NewMemStore()
	tree := services.NewReferralTree(store)
	ctx := context.Background()

	parent := seedUser(t, store, "alice", "AAAAAA")

	const attempts = 20
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = tree.AttachChild(ctx, "AAAAAA", primitive.NewObjectID())
		}(i)
	}
	wg.Wait()

	var ok, limited int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, services.ErrReferralLimitReached):
			limited++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != models.MaxLegs {
		t.Errorf("successful attaches = %d, want %d", ok, models.MaxLegs)
	}
	if limited != attempts-models.MaxLegs {
		t.Errorf("limited attaches = %d, want %d", limited, attempts-models.MaxLegs)
	}

	updated, _ := store.FindByID(ctx, parent.ID)
	if len(updated.Leg) != models.MaxLegs {
		t.Errorf("parent leg size = %d, want %d", len(updated.Leg), models.MaxLegs)
	}
}

func TestParentAndGrandparent(t *testing.T) {
	store := repositories.NewMemStore()
	tree := services.NewReferralTree(store)
	ctx := context.Background()

	root := seedUser(t, store, "root", "R00000")
	mid := &models.User{
		ID:           primitive.NewObjectID(),
		Username:     "mid",
		ReferralCode: "M00000",
		ParentID:     &root.ID,
	}
	if err := store.Insert(ctx, mid); err != nil {
		t.Fatal(err)
	}
	leaf := &models.User{
		ID:           primitive.NewObjectID(),
		Username:     "leaf",
		ReferralCode: "L00000",
		ParentID:     &mid.ID,
	}
	if err := store.Insert(ctx, leaf); err != nil {
		t.Fatal(err)
	}

	parent, err := tree.Parent(ctx, leaf.ID)
	if err != nil || parent == nil || parent.ID != mid.ID {
		t.Fatalf("Parent = %v, %v; want mid", parent, err)
	}
	grandparent, err := tree.Grandparent(ctx, leaf.ID)
	if err != nil || grandparent == nil || grandparent.ID != root.ID {
		t.Fatalf("Grandparent = %v, %v; want root", grandparent, err)
	}

	// Roots have neither.
	if p, err := tree.Parent(ctx, root.ID); err != nil || p != nil {
		t.Errorf("root Parent = %v, %v; want nil, nil", p, err)
	}
	if g, err := tree.Grandparent(ctx, mid.ID); err != nil || g != nil {
		t.Errorf("mid Grandparent = %v, %v; want nil, nil", g, err)
	}
}

func TestChildrenInLegOrder(t *testing.T) {
	store := repositories.NewMemStore()
	tree := services.NewReferralTree(store)
	ctx := context.Background()

	parent := seedUser(t, store, "alice", "AAAAAA")
	for i := 0; i < 3; i++ {
		child := seedUser(t, store, fmt.Sprintf("child%d", i), fmt.Sprintf("C%05d", i))
		if _, err := tree.AttachChild(ctx, "AAAAAA", child.ID); err != nil {
			t.Fatal(err)
		}
	}

	children, err := tree.Children(ctx, parent.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(children) != 3 {
		t.Fatalf("children = %d, want 3", len(children))
	}
	for i, child := range children {
		if want := fmt.Sprintf("child%d", i); child.Username != want {
			t.Errorf("children[%d] = %s, want %s", i, child.Username, want)
		}
	}
}
