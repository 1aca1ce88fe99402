/*
Package authsdk is the Go client for the trackr auth service, and the home
of the wire types the server itself encodes.

# Client vs Session

  - Client: public endpoints (register, login, verification, password
    recovery, health)
  - Session: endpoints that need a bearer token

	client := authsdk.NewClient("https://trackr.example.com")

	_, err := client.Register(ctx, authsdk.RegisterRequest{
		Username:  "alice@example.com",
		Password:  "Sup3r-secret!",
		FirstName: "Alice",
		LastName:  "Liddell",
	})

	// After following the emailed link:
	_, err = client.VerifyAccount(ctx, token)

	session, err := client.Login(ctx, "alice@example.com", "Sup3r-secret!")
	if session.CredentialsStale() {
		// prompt for a password change
	}

	me, err := session.Me(ctx)

# Tokens

Session tokens are HS256 JWTs and cannot be refreshed. A token stops working
when it expires, when the account is disabled or deleted, when the username
changes, or when the password changes. Log in again to get a new one.

# Errors

Every non-2xx response decodes into *APIError:

	_, err := client.Login(ctx, "alice@example.com", "wrong")
	var apiErr *authsdk.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
		fmt.Println(apiErr.Description) // "Invalid credentials. Remaining attempts: 4"
	}

Validation failures carry the failed rules in APIError.Fields.

# Authorization

Administrative calls need a permission such as READ_USER or UPDATE_ROLE,
granted through roles. Reading a user or their roles is also allowed for
the user themselves.
*/
package authsdk
