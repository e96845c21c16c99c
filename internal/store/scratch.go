package store

import (
	"database/sql"
	"fmt"
)

// Scratch staging tables, connection-scoped and reused across commits.
// tx_lookup_before receives one row per candidate datom; tx_lookup_after
// carries the same columns plus the matched current-state row, if any.
// sv/svalue_type_tag hold the "search value" used to find a pre-existing
// row for dedup or retraction matching; NULL means match on (e0, a0) only.
const scratchSQL = `
CREATE TABLE IF NOT EXISTS temp.tx_lookup_before (
    e0 INTEGER NOT NULL,
    a0 INTEGER NOT NULL,
    v0 BLOB NOT NULL,
    tx0 INTEGER NOT NULL,
    added0 TINYINT NOT NULL,
    value_type_tag0 INTEGER NOT NULL,
    index_avet0 TINYINT,
    index_vaet0 TINYINT,
    index_fulltext0 TINYINT,
    unique_value0 TINYINT,
    sv BLOB,
    svalue_type_tag INTEGER
);

CREATE TABLE IF NOT EXISTS temp.tx_lookup_after (
    e0 INTEGER NOT NULL,
    a0 INTEGER NOT NULL,
    v0 BLOB NOT NULL,
    tx0 INTEGER NOT NULL,
    added0 TINYINT NOT NULL,
    value_type_tag0 INTEGER NOT NULL,
    index_avet0 TINYINT,
    index_vaet0 TINYINT,
    index_fulltext0 TINYINT,
    unique_value0 TINYINT,
    sv BLOB,
    svalue_type_tag INTEGER,
    rid INTEGER,
    e INTEGER,
    a INTEGER,
    v BLOB,
    tx INTEGER,
    value_type_tag INTEGER
);
`

// createScratch sets up the temp staging tables. They live as long as
// the store's single connection and are truncated between commits.
func createScratch(db *sql.DB) error {
	if _, err := db.Exec(scratchSQL); err != nil {
		return fmt.Errorf("create scratch tables: %w", err)
	}
	return nil
}
