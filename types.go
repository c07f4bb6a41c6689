package mallard

import "github.com/jward/mallard/internal/store"

// Aliases for the snapshot rows returned by QueryBuilder.

type Store = store.Store
type Module = store.Module
type Declaration = store.Declaration
type Annotation = store.Annotation
type Reference = store.Reference
type Finding = store.Finding
