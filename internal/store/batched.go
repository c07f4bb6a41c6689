package store

import (
	"slices"
	"sync"
)

// BatchedStore buffers snapshot inserts in memory using fake (negative)
// IDs so modules can be serialized in parallel and committed serially.
//
// The mutex protects fake ID allocation and slice appends. Read queries
// merge the buffer with the underlying Store.
type BatchedStore struct {
	store *Store
	mu    sync.Mutex

	// Replace lists modules whose existing rows CommitBatch deletes first.
	Replace      []int64
	Declarations []Declaration
	Annotations  []Annotation
	References   []Reference

	nextFakeID int64
}

// Compile-time check: *BatchedStore satisfies DataStore.
var _ DataStore = (*BatchedStore)(nil)

// NewBatchedStore creates a BatchedStore backed by s for read queries.
func NewBatchedStore(s *Store) *BatchedStore {
	return &BatchedStore{
		store:      s,
		nextFakeID: -1,
	}
}

func (b *BatchedStore) allocFakeID() int64 {
	id := b.nextFakeID
	b.nextFakeID--
	return id
}

// ReplaceModule marks moduleID for clearing before the batch is inserted.
func (b *BatchedStore) ReplaceModule(moduleID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !slices.Contains(b.Replace, moduleID) {
		b.Replace = append(b.Replace, moduleID)
	}
}

func (b *BatchedStore) InsertDeclaration(d *Declaration) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fakeID := b.allocFakeID()
	d.ID = fakeID
	b.Declarations = append(b.Declarations, *d)
	return fakeID, nil
}

func (b *BatchedStore) InsertAnnotation(a *Annotation) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fakeID := b.allocFakeID()
	a.ID = fakeID
	b.Annotations = append(b.Annotations, *a)
	return fakeID, nil
}

func (b *BatchedStore) InsertReference(r *Reference) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fakeID := b.allocFakeID()
	r.ID = fakeID
	r.TargetModule = keyModule(r.TargetKey)
	b.References = append(b.References, *r)
	return fakeID, nil
}

// DeclarationsByModule returns the buffered declarations of a module. Rows
// already in the database are included unless the module is marked for
// replacement.
func (b *BatchedStore) DeclarationsByModule(moduleID int64) ([]*Declaration, error) {
	b.mu.Lock()
	replaced := slices.Contains(b.Replace, moduleID)
	b.mu.Unlock()

	var decls []*Declaration
	if !replaced {
		db, err := b.store.DeclarationsByModule(moduleID)
		if err != nil {
			return nil, err
		}
		decls = db
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.Declarations {
		if b.Declarations[i].ModuleID == moduleID {
			decls = append(decls, &b.Declarations[i])
		}
	}
	return decls, nil
}
