package store

// DataStore is the interface for snapshot writes. Both Store (direct
// SQLite) and BatchedStore (in-memory buffering for parallel persistence)
// implement it.
type DataStore interface {
	InsertDeclaration(d *Declaration) (int64, error)
	InsertAnnotation(a *Annotation) (int64, error)
	InsertReference(r *Reference) (int64, error)

	DeclarationsByModule(moduleID int64) ([]*Declaration, error)
}

// Compile-time check: *Store satisfies DataStore.
var _ DataStore = (*Store)(nil)
