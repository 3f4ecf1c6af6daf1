// Package models defines the domain models for OpenSplit.
//
// # Models
//
//   - Group / GroupMember: a set of users who share expenses. The creator is
//     always an admin member and a user appears at most once per group.
//   - Expense: one purchase, paid by a single member, divided among
//     participants by a SplitMode. Its ExpenseSplit rows always sum to the
//     expense total.
//   - ExpenseItem: a receipt line, only present for SplitItem expenses.
//   - Settlement: a recorded payment from one member to another.
//   - User: profile details shown to other members when settling up.
//
// # Conventions
//
// All amounts are money.Money in integer minor units. Percentages are stored
// as basis points (hundredths of a percent). Relationships are expressed as
// ID strings rather than pointers. Timestamps are Unix seconds, matching the
// storage layer.
package models
