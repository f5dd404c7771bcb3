package badger

import (
	"errors"
	"fmt"

	pkgerrors "github.com/absmach/flcoord/pkg/errors"
	"github.com/dgraph-io/badger/v4"
)

var (
	ErrDBConnection = errors.New("badger database connection error")
	ErrDBQuery      = errors.New("database query error")
	ErrCreate       = errors.New("create error")
	ErrUpdate       = errors.New("update error")
	ErrNotFound     = pkgerrors.ErrNotFound
	ErrEntityExists = pkgerrors.ErrEntityExists
)

type Database struct {
	db *badger.DB
}

func NewDatabase(path string) (*Database, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBConnection, err)
	}

	return &Database{db: db}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) get(key []byte) ([]byte, error) {
	var val []byte
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)

		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	return val, nil
}

func (d *Database) set(key, val []byte) error {
	err := d.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, val)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUpdate, err)
	}

	return nil
}

// create stores val under key only if key is absent.
func (d *Database) create(key, val []byte) error {
	err := d.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		switch {
		case err == nil:
			return ErrEntityExists
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		return txn.Set(key, val)
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrEntityExists):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrCreate, err)
	}
}

// replace overwrites an existing key.
func (d *Database) replace(key, val []byte) error {
	err := d.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}

			return err
		}

		return txn.Set(key, val)
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrUpdate, err)
	}
}

func (d *Database) listWithPrefix(prefix []byte, offset, limit uint64) ([][]byte, error) {
	var items [][]byte
	err := d.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		if limit < 100 {
			opts.PrefetchSize = int(limit) + 1
		}
		it := txn.NewIterator(opts)
		defer it.Close()

		skipped := uint64(0)
		count := uint64(0)

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if skipped < offset {
				skipped++

				continue
			}
			if count >= limit {
				break
			}

			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			items = append(items, val)
			count++
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	return items, nil
}

func (d *Database) countWithPrefix(prefix []byte) (uint64, error) {
	count := uint64(0)
	err := d.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	return count, nil
}

// lastWithPrefix returns the value of the greatest key under prefix.
func (d *Database) lastWithPrefix(prefix []byte) ([]byte, error) {
	var val []byte
	err := d.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(append([]byte{}, prefix...), 0xff)
		it.Seek(seek)
		if !it.ValidForPrefix(prefix) {
			return ErrNotFound
		}
		var err error
		val, err = it.Item().ValueCopy(nil)

		return err
	})
	switch {
	case err == nil:
		return val, nil
	case errors.Is(err, ErrNotFound):
		return nil, err
	default:
		return nil, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}
}
