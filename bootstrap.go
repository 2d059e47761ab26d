package rxdb

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/hoanglam10499/rxdb/pkg/ident"
	"github.com/hoanglam10499/rxdb/storage"
)

// Administrative document IDs.
const (
	passwordDocID     = "password"
	storageTokenDocID = "storage-token"
)

// tokenAttempts bounds the read-write-reread convergence loop.
const tokenAttempts = 3

// bootstrapIdentity establishes the handle's storage identity: it
// verifies the password against the stored hash and converges on the
// shared storage token. Runs once during Open, before the handle is
// returned.
//
// Both documents are written create-only. When two handles race, one
// create wins and the loser adopts the winner's value on re-read;
// a lost race is never an error. Other write failures are logged and
// tolerated unless StrictAdminWrites is set.
func (db *Database) bootstrapIdentity(ctx context.Context) error {
	if db.password != "" {
		if err := db.verifyPassword(ctx); err != nil {
			return err
		}
	}
	token, err := db.resolveStorageToken(ctx)
	if err != nil {
		return err
	}
	db.storageToken = token
	return nil
}

func (db *Database) verifyPassword(ctx context.Context) error {
	doc, err := db.adminStore.Get(ctx, passwordDocID)
	if errors.Is(err, storage.ErrNotFound) {
		hash, herr := ident.HashPassword(db.password)
		if herr != nil {
			return fmt.Errorf("hash password: %w", herr)
		}
		if werr := db.adminWrite(ctx, storage.NewDocument(passwordDocID, map[string]any{
			"hash": hash,
		})); werr != nil {
			return werr
		}
		doc, err = db.adminStore.Get(ctx, passwordDocID)
		if errors.Is(err, storage.ErrNotFound) {
			// Nobody persisted a hash; nothing to verify against.
			return nil
		}
	}
	if err != nil {
		return fmt.Errorf("read password document: %w", err)
	}

	stored, _ := doc.Data["hash"].(string)
	if !ident.VerifyPassword(db.password, stored) {
		return ErrPasswordMismatch.WithFields(map[string]any{
			"database":    db.name,
			"stored_hash": ident.Digest(stored)[:12],
		})
	}
	return nil
}

// resolveStorageToken reads the shared token, creating it when
// absent. Concurrent creators converge: exactly one create succeeds
// and everyone adopts whatever the following read returns.
func (db *Database) resolveStorageToken(ctx context.Context) (string, error) {
	for attempt := 0; attempt < tokenAttempts; attempt++ {
		doc, err := db.adminStore.Get(ctx, storageTokenDocID)
		if err == nil {
			token, _ := doc.Data["token"].(string)
			if token == "" {
				return "", fmt.Errorf("storage token document %q holds no token", storageTokenDocID)
			}
			return token, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return "", fmt.Errorf("read storage token: %w", err)
		}

		candidate, gerr := ident.Generate()
		if gerr != nil {
			return "", fmt.Errorf("generate storage token: %w", gerr)
		}
		if werr := db.adminWrite(ctx, storage.NewDocument(storageTokenDocID, map[string]any{
			"token": candidate,
		})); werr != nil {
			return "", werr
		}

		// Yield so a racing creator can commit, then adopt whatever
		// the store now holds.
		runtime.Gosched()
	}
	return "", fmt.Errorf("storage token did not converge after %d attempts", tokenAttempts)
}

// adminWrite persists an administrative document, swallowing lost
// races. Conflicts mean another handle got there first and are never
// errors; any other failure is fatal only under StrictAdminWrites.
func (db *Database) adminWrite(ctx context.Context, doc *storage.Document) error {
	_, err := db.adminStore.Put(ctx, doc)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrConflict):
		db.logger.Debug("administrative write lost race", "doc", doc.ID)
		return nil
	case db.strictAdminWrites:
		return fmt.Errorf("write administrative document %q: %w", doc.ID, err)
	default:
		db.logger.Warn("administrative write failed", "doc", doc.ID, "error", err)
		return nil
	}
}
