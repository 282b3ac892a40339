package storage

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/timshannon/badgerhold/v4"

	"ttharvest/pkg/logger"
	"ttharvest/pkg/models"
)

// BadgerStore keeps records in an embedded badgerhold database keyed by url
type BadgerStore struct {
	store  *badgerhold.Store
	logger logger.Logger
}

// NewBadgerStore opens or creates the database at dir
func NewBadgerStore(dir string, log logger.Logger) (*BadgerStore, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create record directory: %w", err)
	}

	options := badgerhold.DefaultOptions
	options.Dir = dir
	options.ValueDir = dir
	options.Logger = nil

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open record store: %w", err)
	}

	return &BadgerStore{
		store:  store,
		logger: log.WithField("component", "storage"),
	}, nil
}

func (b *BadgerStore) IsNew(ctx context.Context, url string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var existing models.AcquisitionRecord
	err := b.store.Get(url, &existing)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up %s: %w", url, err)
	}
	return false, nil
}

func (b *BadgerStore) Insert(ctx context.Context, r models.AcquisitionRecord) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	err := b.store.Insert(r.URL, r)
	if errors.Is(err, badgerhold.ErrKeyExists) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert %s: %w", r.URL, err)
	}
	return true, nil
}

// Count returns the number of stored records
func (b *BadgerStore) Count() (int, error) {
	n, err := b.store.Count(&models.AcquisitionRecord{}, nil)
	return int(n), err
}

func (b *BadgerStore) Close() error {
	return b.store.Close()
}
