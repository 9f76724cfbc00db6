// Package sqlite provides a storage.RecordSource over a SQLite database of
// PubMed articles, using the pure-Go modernc.org/sqlite driver.
//
// The source reads the pubmed_articles table:
//
//	CREATE TABLE pubmed_articles (
//	    pmid           TEXT PRIMARY KEY,
//	    pmcid          TEXT,
//	    section_title  TEXT,
//	    article_title  TEXT,
//	    abstract       TEXT,
//	    date_revised   TEXT,
//	    date_completed TEXT,
//	    mesh_terms     TEXT  -- JSON array of strings
//	);
//
// Only rows with a non-null abstract are visible, in rowid order. NULL text
// columns read as empty strings and malformed MeSH JSON reads as an empty
// list; both are logged and never fail a page.
package sqlite
