// Package storage persists the recipient registry and the operator audit log.
//
// The registry record is always rewritten wholesale, so readers never see a
// partially applied mutation:
//   - file driver: write <path>.tmp, then rename over <path>
//   - sqlite driver: delete + insert inside one transaction
package storage
