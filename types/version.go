package types

// Version is the canonical gobackup client version.
// The CLI, completion events and trace files all report this value.
const Version = "0.3.0"
