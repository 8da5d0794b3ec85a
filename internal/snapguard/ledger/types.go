// Package ledger is the integrity root of the audit trail: an append-only, hash-sealed
// log with a single serialized writer. Each entry's hash covers its payload sealed with
// its block number and the previous entry's hash, so edits, deletions and reordering
// are all detectable by a full scan.
package ledger

import (
	"context"

	"github.com/vaibhaw-/snapguard/internal/snapguard/models"
)

// Reserved payload keys written by Append.
const (
	KeyBlockNumber  = "blockNumber"
	KeyPreviousHash = "previousHash"
)

// GenesisHash is the previousHash of block 1.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// VerifyReport is the result of a full integrity scan.
type VerifyReport struct {
	Valid           bool     `json:"valid"`
	Checked         int      `json:"checked"`
	CorruptedHashes []string `json:"corrupted_hashes"`       // payload no longer hashes to tx_hash
	BrokenLinks     []string `json:"broken_links,omitempty"` // previousHash does not match the preceding entry
	MissingBlocks   []int64  `json:"missing_blocks,omitempty"`
}

// Stats is a read-only aggregate of the chain.
type Stats struct {
	TotalEntries       int    `json:"total_entries"`
	CurrentBlockNumber int64  `json:"current_block_number"`
	HeadHash           string `json:"head_hash"`
}

// TamperFunc is called once per entry found corrupted by Verify or VerifyAll. A
// returned error means the observer's record of the corruption was not written.
type TamperFunc func(ctx context.Context, entry *models.LedgerEntry, reason string) error
