package types

// Version is the canonical project version.
// The CLI and the run ledger encoding share this version; ledger records
// written by one minor version are readable by the next.
const Version = "0.3.0"
