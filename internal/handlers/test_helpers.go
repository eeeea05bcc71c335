package handlers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/phofmann/floodgate/internal/models"
)

// Shared test fakes for handler tests. These live in the package (not a
// _test.go file sibling per handler) so every handler test can construct
// the real services over in-memory stores.

type fakeFloodEventRepo struct {
	events    []models.FloodEvent
	countErr  error
	insertErr error
}

func (f *fakeFloodEventRepo) CountEvents(ctx context.Context, ip, actionType string, referenceKey int64, since time.Time) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	count := 0
	for _, event := range f.events {
		if event.IP == ip && event.ActionType == actionType && event.ReferenceKey == referenceKey && event.CreatedAt.After(since) {
			count++
		}
	}
	return count, nil
}

func (f *fakeFloodEventRepo) InsertEvent(ctx context.Context, event *models.FloodEvent) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.events = append(f.events, *event)
	return nil
}

func (f *fakeFloodEventRepo) DeleteOlderThan(ctx context.Context, actionType string, cutoff time.Time) (int64, error) {
	return 0, nil
}

type fakeEmailService struct {
	sent    []string
	sendErr error
}

func (f *fakeEmailService) SendPasswordResetEmail(ctx context.Context, email, resetLink string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, email)
	return nil
}

type fakeAccountRepo struct {
	accounts map[string]*models.Account
}

func newFakeAccountRepo(accounts ...*models.Account) *fakeAccountRepo {
	repo := &fakeAccountRepo{accounts: make(map[string]*models.Account)}
	for _, account := range accounts {
		copied := *account
		repo.accounts[account.ID] = &copied
	}
	return repo
}

func (f *fakeAccountRepo) GetByID(ctx context.Context, id string) (*models.Account, error) {
	account, ok := f.accounts[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *account
	return &copied, nil
}

func (f *fakeAccountRepo) GetByUsername(ctx context.Context, accountType models.AccountType, username string) (*models.Account, error) {
	for _, account := range f.accounts {
		if account.Type == accountType && account.Username == username {
			copied := *account
			return &copied, nil
		}
	}
	return nil, models.ErrNotFound
}

func (f *fakeAccountRepo) SetSecret(ctx context.Context, id, secret string) error {
	account, ok := f.accounts[id]
	if !ok {
		return models.ErrNotFound
	}
	account.TOTPSecret = secret
	account.TOTPEnabled = false
	return nil
}

func (f *fakeAccountRepo) SetEnabled(ctx context.Context, id string, enabled bool) error {
	account, ok := f.accounts[id]
	if !ok {
		return models.ErrNotFound
	}
	account.TOTPEnabled = enabled
	if !enabled {
		account.TOTPSecret = ""
	}
	return nil
}

type fakeEmergencyCodeRepo struct {
	hashes map[string][]string
}

func newFakeEmergencyCodeRepo() *fakeEmergencyCodeRepo {
	return &fakeEmergencyCodeRepo{hashes: make(map[string][]string)}
}

func (f *fakeEmergencyCodeRepo) ReplaceBatch(ctx context.Context, accountID string, hashes []string) error {
	f.hashes[accountID] = append([]string(nil), hashes...)
	return nil
}

func (f *fakeEmergencyCodeRepo) ListHashes(ctx context.Context, accountID string) ([]string, error) {
	return f.hashes[accountID], nil
}

func (f *fakeEmergencyCodeRepo) DeleteByHash(ctx context.Context, accountID, hash string) (int64, error) {
	var affected int64
	var kept []string
	for _, h := range f.hashes[accountID] {
		if h == hash {
			affected++
			continue
		}
		kept = append(kept, h)
	}
	f.hashes[accountID] = kept
	return affected, nil
}

func (f *fakeEmergencyCodeRepo) DeleteAll(ctx context.Context, accountID string) error {
	delete(f.hashes, accountID)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}
