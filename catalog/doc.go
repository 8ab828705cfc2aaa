// Package catalog provides the in-memory library catalog: books, patrons and
// the loans that move a book between the Available and Borrowed states.
//
// A Store is an explicitly owned object; callers create one with New and pass it
// to whatever needs it. All methods are safe for concurrent use.
package catalog
