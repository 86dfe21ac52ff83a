// Package models defines the core domain models for Homeledger.
//
// # Models
//
//   - User: a registered account; everything else references users by ID
//   - Household: a group of users sharing expenses, with per-member roles
//   - Expense: a ledger entry recording who paid for what, with its
//     per-member reimbursement obligations embedded
//   - Obligation: one member's owed share of an expense and its settlement state
//   - AuditEntry: append-only record of every mutation to the ledger
//   - MilkDay: one day's milk quantity, aggregated monthly into an Expense
//
// # Design Principles
//
//  1. Money is always decimal.Decimal, never float64. Amounts are
//     currency-tagged and resolved to two decimal places.
//  2. Relationships use ID strings instead of pointers, avoiding circular
//     references between aggregates.
//  3. An Expense owns its Obligations and Attachments; they are persisted and
//     mutated together as one unit.
//  4. AuditEntry rows are write-once. Snapshots are explicit value copies
//     taken around each mutation, serialized to JSON.
package models
