package cli

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/haulage/internal/shared"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

func (a *App) credentials() (string, []byte, error) {
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return "", nil, err
	}
	password, err := getPassword(a.out)
	if err != nil {
		return "", nil, err
	}
	return email, password, nil
}

// Register prompts for an email and password and creates an account.
//
// When the backend confirms the account immediately the user is signed in
// and the bootstrapper picks the session up through its auth listener.
// Otherwise a hint to confirm the address is printed. The password byte
// slice is wiped before returning.
func (a *App) Register(ctx context.Context) error {
	email, password, err := a.credentials()
	if err != nil {
		return err
	}
	defer shared.WipeByteArray(password)

	s, err := a.state.SignUp(ctx, email, string(password))
	if err != nil {
		a.log.Warn(ctx, "sign up failed", "email", email, "error", err)
		return err
	}
	if s == nil {
		fmt.Fprintln(a.out, "Check your inbox to confirm the address, then log in.")
		return nil
	}
	fmt.Fprintln(a.out, "Success!")
	return nil
}

// Login prompts for credentials and signs in. Profile loading happens in
// the background; its progress shows up as printed snapshots.
func (a *App) Login(ctx context.Context) error {
	email, password, err := a.credentials()
	if err != nil {
		return err
	}
	defer shared.WipeByteArray(password)

	if _, err := a.state.SignIn(ctx, email, string(password)); err != nil {
		a.log.Warn(ctx, "login unsuccessful", "email", email, "error", err)
		return err
	}
	a.log.Info(ctx, "login successful", "email", email)
	return nil
}

// Logout signs out. The bootstrapper clears the device markers of the
// departing user.
func (a *App) Logout(ctx context.Context) error {
	if !a.isLoggedIn() {
		fmt.Fprintln(a.out, "Not logged in")
		return nil
	}
	return a.state.SignOut(ctx)
}
