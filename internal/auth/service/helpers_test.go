package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/trackr/internal/auth/domain"
	"github.com/aussiebroadwan/trackr/internal/auth/store"
	"github.com/aussiebroadwan/trackr/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/trackr/pkg/cryptox"
	"github.com/aussiebroadwan/trackr/pkg/jwtx"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

const testPassword = "Sup3r-secret!"

// plainHasher keeps tests fast; argon2 is covered in pkg/cryptox.
type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "plain$" + password, nil }

func (plainHasher) Verify(password, encoded string) error {
	stored, ok := strings.CutPrefix(encoded, "plain$")
	if !ok {
		return cryptox.ErrMalformedHash
	}
	if stored != password {
		return cryptox.ErrMismatch
	}
	return nil
}

type sentToken struct {
	To    string
	Token domain.Token
}

type fakeNotifier struct {
	mu     sync.Mutex
	verify []sentToken
	reset  []sentToken
	err    error
}

func (n *fakeNotifier) SendVerification(_ context.Context, to string, t domain.Token) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.verify = append(n.verify, sentToken{To: to, Token: t})
	return nil
}

func (n *fakeNotifier) SendPasswordReset(_ context.Context, to string, t domain.Token) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.reset = append(n.reset, sentToken{To: to, Token: t})
	return nil
}

func (n *fakeNotifier) lastVerification(t *testing.T) domain.Token {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.verify, "no verification sent")
	return n.verify[len(n.verify)-1].Token
}

func (n *fakeNotifier) lastReset(t *testing.T) domain.Token {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.reset, "no reset sent")
	return n.reset[len(n.reset)-1].Token
}

type testEnv struct {
	store    store.Store
	clock    *clockwork.FakeClock
	issuer   *jwtx.HS256Issuer
	notifier *fakeNotifier
	auth     *AuthenticationService
	authz    *AuthorizationService
	accounts *AccountService
	roles    *RolesService
}

func newStore(t *testing.T) store.Store {
	t.Helper()
	s, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.ApplyMigrations())
	return s
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithStore(t, newStore(t))
}

func newTestEnvWithStore(t *testing.T, st store.Store) *testEnv {
	t.Helper()

	clock := clockwork.NewFakeClockAt(t0)
	issuer, err := jwtx.NewHS256Issuer([]byte(strings.Repeat("k", jwtx.MinSecretBytes)), jwtx.DefaultIssuer, jwtx.DefaultSessionTTL, clock)
	require.NoError(t, err)

	notifier := &fakeNotifier{}
	auth := &AuthenticationService{Store: st, Hasher: plainHasher{}, Issuer: issuer, Clock: clock}

	return &testEnv{
		store:    st,
		clock:    clock,
		issuer:   issuer,
		notifier: notifier,
		auth:     auth,
		authz:    &AuthorizationService{Store: st},
		accounts: &AccountService{
			Store:        st,
			Hasher:       plainHasher{},
			Auth:         auth,
			Verification: NewVerificationTokens(st, clock, 0),
			Reset:        NewResetTokens(st, clock, 0),
			Notifier:     notifier,
			Clock:        clock,
		},
		roles: &RolesService{Store: st, Clock: clock},
	}
}

// insertUser adds a verified account and moves the clock past its password
// stamp so tokens issued next are valid.
func (e *testEnv) insertUser(t *testing.T, username string) domain.Account {
	t.Helper()
	a, err := e.accounts.InsertVerified(context.Background(), RegisterParams{
		Username:  username,
		Password:  testPassword,
		FirstName: "Test",
		LastName:  "User",
	})
	require.NoError(t, err)
	e.clock.Advance(time.Second)
	return a
}

func (e *testEnv) bootstrap(t *testing.T) BootstrapResult {
	t.Helper()
	b := &BootstrapService{Store: e.store, Hasher: plainHasher{}, Clock: e.clock}
	res, err := b.Bootstrap(context.Background(), domain.BootstrapData{
		SuperuserUsername: "root@example.com",
		SuperuserPassword: testPassword,
	})
	require.NoError(t, err)
	return res
}

func (e *testEnv) reload(t *testing.T, uuid string) domain.Account {
	t.Helper()
	a, err := e.store.Accounts().GetByUUID(context.Background(), uuid)
	require.NoError(t, err)
	return a
}

// requireKind asserts err is a service error of kind with the given message.
func requireKind(t *testing.T, err error, kind error, msg string) {
	t.Helper()
	require.Error(t, err)
	require.ErrorIs(t, err, kind)
	if msg != "" {
		require.Equal(t, msg, Message(err))
	}
}

// conflictingStore makes the next n account saves lose their version race.
type conflictingStore struct {
	store.Store

	mu        sync.Mutex
	conflicts int
}

func (s *conflictingStore) takeConflict() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conflicts == 0 {
		return false
	}
	s.conflicts--
	return true
}

func (s *conflictingStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		return fn(&conflictingTx{innerTx: tx, parent: s})
	})
}

// innerTx is embedded under its own name. A field called Tx would shadow the
// Tx method store.Tx requires.
type innerTx = store.Tx

type conflictingTx struct {
	innerTx
	parent *conflictingStore
}

func (t *conflictingTx) Accounts() store.Accounts {
	return conflictingAccounts{Accounts: t.innerTx.Accounts(), parent: t.parent}
}

type conflictingAccounts struct {
	store.Accounts
	parent *conflictingStore
}

func (a conflictingAccounts) Save(ctx context.Context, acc domain.Account) (int64, error) {
	if a.parent.takeConflict() {
		return 0, store.ErrConflict
	}
	return a.Accounts.Save(ctx, acc)
}

var errSendFailed = errors.New("smtp: connection refused")
