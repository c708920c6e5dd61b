// Package catalog loads the CATMAT item catalog and holds it in memory.
//
// A Store is immutable once loaded. Items keep their load order, which is
// also the order fed to the content hash, so the same file always yields
// the same fingerprint.
//
// Loaders accept CSV (comma, semicolon or tab separated; UTF-8, ISO-8859-1
// or Windows-1252) and XLSX (first sheet). The id and description columns
// are found through alias lists; every other column is preserved as an
// item attribute.
package catalog
