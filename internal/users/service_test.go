package users

import (
	"context"
	"testing"

	"github.com/SilverbirchLabs/chunkfeed/backend/internal/faults"
)

func TestRegisterCreatesAccountWithDerivedCredential(t *testing.T) {
	service, _ := newTestService(t, nil)

	user, err := service.Register(context.Background(), RegistrationInput{
		Name:     "Alice",
		Handle:   "alice",
		Email:    "alice@example.com",
		Password: "hunter2hunter2",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.ID == "" {
		t.Fatalf("expected generated id")
	}
	if user.Gender != GenderUnspecified {
		t.Fatalf("expected default gender, got %s", user.Gender)
	}
	if user.PassSalt == "" || user.PassHash == "" {
		t.Fatalf("expected derived credential to be stored")
	}
	if user.PassHash == "hunter2hunter2" {
		t.Fatalf("plaintext must never be stored")
	}
}

func TestRegisterRejectsDuplicateHandleAndEmail(t *testing.T) {
	service, _ := newTestService(t, nil)
	mustRegister(t, service, "alice")

	_, err := service.Register(context.Background(), RegistrationInput{
		Handle:   "alice",
		Email:    "other@example.com",
		Password: "password",
	})
	if faults.KindOf(err) != faults.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if faults.FieldsOf(err)["handle"] != "is already taken" {
		t.Fatalf("expected handle field message, got %#v", faults.FieldsOf(err))
	}

	_, err = service.Register(context.Background(), RegistrationInput{
		Handle:   "alice2",
		Email:    "alice@example.com",
		Password: "password",
	})
	if faults.FieldsOf(err)["email"] != "is already taken" {
		t.Fatalf("expected email field message, got %v", err)
	}
}

func TestRegisterValidatesInput(t *testing.T) {
	service, _ := newTestService(t, nil)

	tests := []struct {
		name  string
		input RegistrationInput
		field string
	}{
		{name: "blank-handle", input: RegistrationInput{Email: "a@b.c", Password: "x"}, field: "handle"},
		{name: "handle-with-space", input: RegistrationInput{Handle: "a b", Email: "a@b.c", Password: "x"}, field: "handle"},
		{name: "blank-email", input: RegistrationInput{Handle: "a", Password: "x"}, field: "email"},
		{name: "email-without-at", input: RegistrationInput{Handle: "a", Email: "nope", Password: "x"}, field: "email"},
		{name: "blank-password", input: RegistrationInput{Handle: "a", Email: "a@b.c"}, field: "password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.Register(context.Background(), tt.input)
			if faults.KindOf(err) != faults.KindValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
			if _, ok := faults.FieldsOf(err)[tt.field]; !ok {
				t.Fatalf("expected %s field message, got %#v", tt.field, faults.FieldsOf(err))
			}
		})
	}
}

func TestAuthenticateReportsFieldScopedFailures(t *testing.T) {
	service, _ := newTestService(t, nil)
	registered := mustRegister(t, service, "alice")

	user, err := service.Authenticate(context.Background(), "alice@example.com", "pass-alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.ID != registered.ID {
		t.Fatalf("unexpected user %s", user.ID)
	}

	_, err = service.Authenticate(context.Background(), "ghost@example.com", "whatever")
	if faults.KindOf(err) != faults.KindInvalidCredential {
		t.Fatalf("expected invalid credential, got %v", err)
	}
	if faults.FieldsOf(err)["email"] != "is not registered" {
		t.Fatalf("expected email field message, got %#v", faults.FieldsOf(err))
	}

	_, err = service.Authenticate(context.Background(), "alice@example.com", "wrong")
	if faults.FieldsOf(err)["password"] != "is incorrect" {
		t.Fatalf("expected password field message, got %v", err)
	}
}

func TestUpdateProfileAppliesChanges(t *testing.T) {
	service, _ := newTestService(t, nil)
	registered := mustRegister(t, service, "alice")

	bio := "likes chunks"
	gender := GenderFemale
	birthday := int64(650000000)
	updated, err := service.UpdateProfile(context.Background(), registered.ID, ProfileUpdate{
		Bio:             &bio,
		Gender:          &gender,
		BirthdaySeconds: &birthday,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Bio != bio || updated.Gender != gender {
		t.Fatalf("expected profile changes to apply, got %#v", updated)
	}
	if updated.BirthdaySeconds == nil || *updated.BirthdaySeconds != birthday {
		t.Fatalf("expected birthday to apply")
	}
	if updated.Handle != "alice" {
		t.Fatalf("handle must be unchanged")
	}
}

func TestUpdateProfileRejectsUnknownGender(t *testing.T) {
	service, _ := newTestService(t, nil)
	registered := mustRegister(t, service, "alice")

	gender := Gender("Robot")
	_, err := service.UpdateProfile(context.Background(), registered.ID, ProfileUpdate{Gender: &gender})
	if faults.KindOf(err) != faults.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUpdateProfileMissingUser(t *testing.T) {
	service, _ := newTestService(t, nil)

	bio := "bio"
	_, err := service.UpdateProfile(context.Background(), "no-such-user", ProfileUpdate{Bio: &bio})
	if faults.KindOf(err) != faults.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListFiltersByFollowEdges(t *testing.T) {
	service, _ := newTestService(t, nil)
	alice := mustRegister(t, service, "alice")
	bob := mustRegister(t, service, "bob")
	carol := mustRegister(t, service, "carol")

	ctx := context.Background()
	if err := service.Follow(ctx, alice.ID, bob.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := service.Follow(ctx, carol.ID, bob.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	followers, total, err := service.List(ctx, Filter{FollowersOf: "bob"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 || len(followers) != 2 {
		t.Fatalf("expected both followers of bob, got %d/%d", len(followers), total)
	}

	following, total, err := service.List(ctx, Filter{FollowingOf: "alice"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || following[0].ID != bob.ID {
		t.Fatalf("expected alice to follow only bob")
	}

	_, _, err = service.List(ctx, Filter{FollowersOf: "ghost"})
	if faults.KindOf(err) != faults.KindNotFound {
		t.Fatalf("expected not found for unknown filter handle, got %v", err)
	}
}

func TestShortProfilesResolveFollowerCounts(t *testing.T) {
	service, _ := newTestService(t, nil)
	alice := mustRegister(t, service, "alice")
	bob := mustRegister(t, service, "bob")

	ctx := context.Background()
	if err := service.Follow(ctx, alice.ID, bob.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	profiles, err := service.ShortProfiles(ctx, []string{alice.ID, bob.ID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if profiles[bob.ID].Followers != 1 {
		t.Fatalf("expected bob to have one follower, got %d", profiles[bob.ID].Followers)
	}
	if profiles[alice.ID].Followers != 0 {
		t.Fatalf("expected alice to have no followers")
	}
	if profiles[alice.ID].Handle != "alice" {
		t.Fatalf("expected handle in short profile")
	}
}
